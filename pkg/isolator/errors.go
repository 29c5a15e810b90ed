// Copyright 2024 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package isolator

import (
	"fmt"
	"strings"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// AlreadyPreparedError is returned when prepare is called twice for the
// same container.
type AlreadyPreparedError struct{ ID containerid.ID }

func (e *AlreadyPreparedError) Error() string {
	return fmt.Sprintf("container %q already prepared", e.ID)
}

// MissingRootError means the agent's own cgroup root does not exist; the
// engine cannot safely recreate it (doing so would silently break I2 for
// every future container) and must refuse to start.
type MissingRootError struct{ Root string }

func (e *MissingRootError) Error() string {
	return fmt.Sprintf("agent cgroup root %q does not exist", e.Root)
}

// FilesystemError wraps a create/destroy/chown/read/write failure.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// UpdateNotSupportedError is returned when update is called on a
// shared-cgroup nested container.
type UpdateNotSupportedError struct{ ID containerid.ID }

func (e *UpdateNotSupportedError) Error() string {
	return fmt.Sprintf("update not supported for shared-cgroup container %q", e.ID)
}

// UnknownContainerError is returned by any operation other than
// cleanup/prepare on an id with no Info.
type UnknownContainerError struct{ ID containerid.ID }

func (e *UnknownContainerError) Error() string {
	return fmt.Sprintf("unknown container %q", e.ID)
}

// DiscardedError models cooperative cancellation of an in-flight operation.
type DiscardedError struct{ ID containerid.ID }

func (e *DiscardedError) Error() string {
	return fmt.Sprintf("operation for %q was discarded", e.ID)
}

// ErrNoChownUser is returned by prepare when a command-task container with
// a rootfs carries no task user to chown the leaf to (a named user that
// cannot be looked up fails the chown with a FilesystemError instead). The
// original implementation
// silently skipped the chown in this case; this engine fails fast instead,
// since a payload that expects to create subtrees under an un-chowned leaf
// fails in a much more confusing way later.
var ErrNoChownUser = fmt.Errorf("command-task container has a rootfs but no resolvable chown user")

// ControllerFailure pairs a controller name with the error it returned.
type ControllerFailure struct {
	Controller string
	Err        error
}

func (f ControllerFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Controller, f.Err)
}

// CombinedFailure joins one or more ControllerFailures from a fan-out into
// a single error, as required by the propagation rules in §7.
type CombinedFailure struct {
	Failures []ControllerFailure
}

func (e *CombinedFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return "controller failures: " + strings.Join(parts, "; ")
}

// Join collects non-nil controller errors into a *CombinedFailure, or
// returns nil if every result was successful.
func Join(failures []ControllerFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return &CombinedFailure{Failures: failures}
}
