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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// requireCgroup2 skips tests that need a real mounted cgroup v2 hierarchy
// with root privileges, the way containerd/cgroups' own test suite does:
// subtree_control and cgroup.controllers are populated by the kernel on
// mkdir, which no filesystem fake can reproduce faithfully.
func requireCgroup2(t *testing.T) string {
	t.Helper()
	if os.Getuid() != 0 {
		t.Skip("requires root")
	}
	if !cgroups2.Enabled() {
		t.Skip("requires cgroup v2")
	}
	root := filepath.Join(cgroups2.DefaultMountpoint, "cgroups2-isolator-test")
	if err := cgroups2.Create(root, true); err != nil {
		t.Skipf("could not create test root: %v", err)
	}
	t.Cleanup(func() { _ = cgroups2.Destroy(root) })
	return root
}

func TestHierarchyHopsIncludesRootAndEveryAncestor(t *testing.T) {
	root := "/sys/fs/cgroup/mesos"
	nonLeaf := filepath.Join(root, "p1", "c1")

	hops := hierarchyHops(root, nonLeaf)
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "p1"),
		filepath.Join(root, "p1", "c1"),
	}, hops)
}

func TestHierarchyHopsTopLevelContainer(t *testing.T) {
	root := "/sys/fs/cgroup/mesos"
	nonLeaf := filepath.Join(root, "c1")

	hops := hierarchyHops(root, nonLeaf)
	assert.Equal(t, []string{root, filepath.Join(root, "c1")}, hops)
}

func TestPrepareAndCleanupSingleContainer(t *testing.T) {
	root := requireCgroup2(t)

	reg := controller.NewRegistry()
	e, err := New(Config{Root: root, ControllerNames: []string{"core", "cpu", "memory"}, Registry: reg})
	require.NoError(t, err)

	cid := containerid.New("c1")
	launch, err := e.Prepare(context.Background(), cid, ContainerConfig{})
	require.NoError(t, err)
	assert.Nil(t, launch)

	nonLeaf := containerid.NonLeafPath(root, cid)
	leaf := containerid.LeafPath(root, cid)
	assert.True(t, cgroups2.Exists(nonLeaf))
	assert.True(t, cgroups2.Exists(leaf))

	require.NoError(t, e.Cleanup(context.Background(), cid))
	assert.False(t, cgroups2.Exists(nonLeaf))
}

func TestPrepareSharedNestedContainerHasNoOwnCgroupOrInfo(t *testing.T) {
	root := requireCgroup2(t)

	reg := controller.NewRegistry()
	e, err := New(Config{Root: root, ControllerNames: []string{"core", "cpu", "memory"}, Registry: reg})
	require.NoError(t, err)

	parent := containerid.New("p1")
	_, err = e.Prepare(context.Background(), parent, ContainerConfig{})
	require.NoError(t, err)

	child := parent.Child("c1")
	launch, err := e.Prepare(context.Background(), child, ContainerConfig{Parent: &parent, ShareCgroups: true})
	require.NoError(t, err)
	assert.Nil(t, launch)

	childNonLeaf := containerid.NonLeafPath(root, child)
	childLeaf := containerid.LeafPath(root, child)
	assert.False(t, cgroups2.Exists(childNonLeaf), "shared nested container must not get its own non-leaf cgroup (I4)")
	assert.False(t, cgroups2.Exists(childLeaf), "shared nested container must not get its own leaf cgroup (I4)")

	parentInfo, ok := e.cgroupInfo(parent)
	require.True(t, ok)
	childInfo, ok := e.cgroupInfo(child)
	require.True(t, ok)
	assert.Same(t, parentInfo, childInfo, "cgroup_info(c1/p1) must equal cgroup_info(p1) per I4/P4")

	err = e.Update(context.Background(), child, Request{})
	require.Error(t, err)
	var notSupported *UpdateNotSupportedError
	assert.ErrorAs(t, err, &notSupported)

	require.NoError(t, e.Cleanup(context.Background(), parent))
}
