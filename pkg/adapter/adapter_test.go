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
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
	"github.com/secretflow/cgroups2-isolator/pkg/isolator"
)

func TestResolveShareCgroupsTopLevelAlwaysUnshared(t *testing.T) {
	shared := true
	req := PrepareRequest{ShareCgroups: &shared}
	assert.False(t, resolveShareCgroups(req))
}

func TestResolveShareCgroupsNestedDefaultsTrue(t *testing.T) {
	parent := containerid.New("p1")
	req := PrepareRequest{Parent: &parent}
	assert.True(t, resolveShareCgroups(req))
}

func TestResolveShareCgroupsNestedHonorsExplicitFalse(t *testing.T) {
	parent := containerid.New("p1")
	shared := false
	req := PrepareRequest{Parent: &parent, ShareCgroups: &shared}
	assert.False(t, resolveShareCgroups(req))
}

func TestMarshalLaunchArgumentWrapsCommandTask(t *testing.T) {
	l := newLaunchDirective(isolator.LaunchInfo{
		NewCgroupNamespace: true,
		NewMountNamespace:  true,
		BindMountSource:    "/sys/fs/cgroup/mesos/c1/leaf",
		BindMountTarget:    "/sys/fs/cgroup",
		Nested:             true,
	})

	raw, err := MarshalLaunchArgument(l)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &envelope))
	_, ok := envelope["inner_task_launch_info"]
	assert.True(t, ok, "command-task directives must be wrapped so the outer executor skips them")
}

func TestMarshalLaunchArgumentBareForNonCommandTask(t *testing.T) {
	l := newLaunchDirective(isolator.LaunchInfo{Nested: false})

	raw, err := MarshalLaunchArgument(l)
	require.NoError(t, err)

	var direct map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &direct))
	_, wrapped := direct["inner_task_launch_info"]
	assert.False(t, wrapped)
}

func TestMarshalLaunchArgumentNilForSharedContainer(t *testing.T) {
	raw, err := MarshalLaunchArgument(nil)
	assert.NoError(t, err)
	assert.Nil(t, raw)
}

func TestControllerNamesExpandsAll(t *testing.T) {
	names, err := ControllerNames([]string{"cgroups/all"}, []string{"core", "cpu", "memory"}, func(string) bool { return true })
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core", "cpu", "memory"}, names)
}

func TestControllerNamesRejectsUnknown(t *testing.T) {
	_, err := ControllerNames([]string{"cgroups/bogus"}, nil, func(string) bool { return false })
	assert.Error(t, err)
}

func TestControllerNamesIgnoresNonCgroupsTokens(t *testing.T) {
	names, err := ControllerNames([]string{"switch_user/foo"}, nil, func(string) bool { return true })
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestInstallPFlagsRegistersExpectedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := InstallPFlags(fs)
	require.NoError(t, fs.Parse([]string{"--cgroups_root=/sys/fs/cgroup/mesos", "--isolation=cgroups/cpu,cgroups/memory"}))

	assert.Equal(t, "/sys/fs/cgroup/mesos", cfg.CgroupsRoot)
	assert.Equal(t, []string{"cgroups/cpu", "cgroups/memory"}, cfg.Isolation)
}
