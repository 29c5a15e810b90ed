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

// Package isolator implements the per-container cgroup lifecycle engine:
// the prepare/isolate/update/watch/usage/status/cleanup state machine,
// orphan recovery, and the fan-out/fan-in across controllers that each of
// those operations performs.
package isolator

import (
	"sync"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// state is the per-container lifecycle position described in §4.3. Info
// records it (newInfo sets statePrepared) but nothing reads it; the engine
// does not gate operations on it beyond what Info's presence/absence
// already implies.
type state int

const (
	stateAbsent state = iota
	statePrepared
	stateIsolated
	stateRunning
	stateCleaning
)

// Info is the engine's per-container record (§3). It is created by
// prepare or recover and erased by cleanup; ownership of this table
// belongs exclusively to the engine actor.
type Info struct {
	ID          containerid.ID
	NonLeaf     string
	Leaf        string
	Controllers []string
	Isolate     bool

	state state

	mu         sync.Mutex
	limitation *controller.Limitation
	delivered  bool
	promiseCh  chan controller.Limitation
}

func newInfo(cid containerid.ID, nonLeaf, leaf string, isolate bool, controllers []string) *Info {
	return &Info{
		ID:          cid,
		NonLeaf:     nonLeaf,
		Leaf:        leaf,
		Controllers: controllers,
		Isolate:     isolate,
		state:       statePrepared,
		promiseCh:   make(chan controller.Limitation, 1),
	}
}

// deliver resolves the container's one-shot Limitation promise with the
// first value offered to it; every subsequent call is a no-op, upholding
// P9 (at most one Limitation is ever delivered).
func (i *Info) deliver(l controller.Limitation) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.delivered {
		return
	}
	i.delivered = true
	i.limitation = &l
	i.promiseCh <- l
	LimitationsDelivered.WithLabelValues(l.Controller).Inc()
}

// Request is the agent's resource request/limit vector for prepare/update,
// reusing the controller package's Limits shape directly since the engine
// does no translation of its own.
type Request = controller.Limits

// UsageSnapshot is the merged, per-container usage result returned by the
// engine's usage operation.
type UsageSnapshot = controller.UsageSnapshot

// Status is the merged per-container status result.
type Status struct {
	Container containerid.ID
	Sections  []controller.Status
}

// Limitation re-exports the controller package's event type for callers
// that only import pkg/isolator.
type Limitation = controller.Limitation

// ContainerConfig is what the agent supplies to prepare: the nesting
// relationship, resource request, and optional rootfs/user information
// needed to emit launch directives.
type ContainerConfig struct {
	Parent        *containerid.ID
	ShareCgroups  bool // only meaningful when Parent != nil
	Limits        Request
	RootfsPresent bool
	IsCommandTask bool
	TaskUser      string
	ContainerUser string
}

// resolvedUser returns the user to chown the leaf to, mirroring the v1
// rule: a command-task container with a rootfs uses the task's own user;
// anything else uses the container user. ok is false when neither is
// available and a chown was expected (rootfs present).
func (c ContainerConfig) resolvedUser() (user string, ok bool) {
	if !c.RootfsPresent {
		return "", false
	}
	if c.IsCommandTask {
		if c.TaskUser == "" {
			return "", false
		}
		return c.TaskUser, true
	}
	if c.ContainerUser == "" {
		return "", false
	}
	return c.ContainerUser, true
}

// LaunchInfo carries the namespace/mount directives prepare emits when the
// container has a rootfs (§4.3 step 11, §6).
type LaunchInfo struct {
	NewCgroupNamespace bool
	NewMountNamespace  bool
	BindMountSource    string // the container's leaf
	BindMountTarget    string // "/sys/fs/cgroup", inside the container's rootfs
	Nested             bool   // true for command-task containers
}

// CheckpointedState is one entry the agent supplies to recover (§4.4).
type CheckpointedState struct {
	ID           containerid.ID
	ShareCgroups bool
}

// RecoverInput is the full argument to Engine.Recover.
type RecoverInput struct {
	States  []CheckpointedState
	Orphans map[string]bool // ContainerId.String() -> true for "known orphan"
}
