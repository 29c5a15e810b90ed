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

package cgroups2

import "fmt"

// DestroyFailedError is returned by Destroy when pids remain in a cgroup
// after the kill-and-drain timeout has elapsed.
type DestroyFailedError struct {
	Path      string
	Remaining []uint64
}

func (e *DestroyFailedError) Error() string {
	return fmt.Sprintf("cgroup %q still has %d pid(s) after drain timeout", e.Path, len(e.Remaining))
}

// InvalidControllerError is returned by ControllersEnable when a requested
// controller name is not listed in the cgroup's cgroup.controllers. Unknown
// names are rejected earlier by the controller registry, and the names that
// may not be written into cgroup.subtree_control (core, perf_event,
// devices) are filtered out by the engine before it calls ControllersEnable.
type InvalidControllerError struct {
	Name string
	Path string
	Why  string
}

func (e *InvalidControllerError) Error() string {
	return fmt.Sprintf("controller %q invalid at %q: %s", e.Name, e.Path, e.Why)
}
