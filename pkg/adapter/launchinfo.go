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

package adapter

import (
	"encoding/json"

	"github.com/secretflow/cgroups2-isolator/pkg/isolator"
)

// cloneFlags mirrors the namespace clone flags the launcher applies,
// expressed symbolically rather than as raw unix.CLONE_* ints so that this
// package stays buildable on non-Linux hosts; the launcher resolves these
// to unix.CLONE_NEWCGROUP / unix.CLONE_NEWNS when it execs the container.
type cloneFlags struct {
	NewCgroupNamespace bool `json:"new_cgroup_namespace"`
	NewMountNamespace  bool `json:"new_mount_namespace"`
}

// bindMount describes the recursive bind mount of the container's leaf
// onto <rootfs>/sys/fs/cgroup.
type bindMount struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Recursive  bool   `json:"recursive"`
	ReadOnly   bool   `json:"read_only"`
}

// LaunchDirective is the container launch directive returned from Prepare
// when a rootfs is present (§4.3 step 11, §6). For command-task containers
// it is wrapped so that the outer executor re-exec does not apply it and
// only the inner task does.
type LaunchDirective struct {
	Namespaces cloneFlags `json:"namespaces"`
	Mount      bindMount  `json:"mount"`
	Nested     bool       `json:"-"`
}

func newLaunchDirective(l isolator.LaunchInfo) *LaunchDirective {
	return &LaunchDirective{
		Namespaces: cloneFlags{NewCgroupNamespace: l.NewCgroupNamespace, NewMountNamespace: l.NewMountNamespace},
		Mount: bindMount{
			Source:    l.BindMountSource,
			Target:    l.BindMountTarget,
			Recursive: true,
		},
		Nested: l.Nested,
	}
}

// nestedEnvelope is the stringified launch-argument wrapper applied for
// command-task containers (§6): the outer executor ignores the envelope
// key and leaves the directive for the re-exec'd inner task to apply.
type nestedEnvelope struct {
	InnerTaskLaunchInfo LaunchDirective `json:"inner_task_launch_info"`
}

// MarshalLaunchArgument stringifies l as the agent expects to receive it:
// wrapped in a nested envelope for command-task containers, bare
// otherwise.
func MarshalLaunchArgument(l *LaunchDirective) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	if !l.Nested {
		return json.Marshal(l)
	}
	return json.Marshal(nestedEnvelope{InnerTaskLaunchInfo: *l})
}
