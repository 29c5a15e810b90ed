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

// fakeController is a minimal controller.Controller used to exercise
// recoverContainer's dispatch logic without touching real control files.
type fakeController struct {
	name      string
	recovered []string
}

func (f *fakeController) Name() string { return f.name }
func (f *fakeController) Prepare(context.Context, containerid.ID, controller.Paths, controller.Limits) error {
	return nil
}
func (f *fakeController) Isolate(context.Context, containerid.ID, controller.Paths, uint64) error {
	return nil
}
func (f *fakeController) Recover(_ context.Context, cid containerid.ID, _ controller.Paths) error {
	f.recovered = append(f.recovered, cid.String())
	return nil
}
func (f *fakeController) Watch(context.Context, containerid.ID, controller.Paths) (<-chan controller.Limitation, error) {
	ch := make(chan controller.Limitation)
	close(ch)
	return ch, nil
}
func (f *fakeController) Update(context.Context, containerid.ID, controller.Paths, controller.Limits) error {
	return nil
}
func (f *fakeController) Usage(context.Context, containerid.ID, controller.Paths) (controller.UsageSnapshot, error) {
	return controller.UsageSnapshot{}, nil
}
func (f *fakeController) Status(context.Context, containerid.ID, controller.Paths) (controller.Status, error) {
	return controller.Status{}, nil
}
func (f *fakeController) Cleanup(context.Context, containerid.ID) error { return nil }

func TestRecoverContainerSkipsUnenabledNonForbiddenController(t *testing.T) {
	root := t.TempDir()
	cid := containerid.New("c1")
	nonLeaf := containerid.NonLeafPath(root, cid)
	leaf := containerid.LeafPath(root, cid)
	require.NoError(t, os.MkdirAll(leaf, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(nonLeaf, "cgroup.subtree_control"), []byte("memory"), 0644))

	mem := &fakeController{name: "memory"}
	cpu := &fakeController{name: "cpu"}
	core := &fakeController{name: "core"}

	e := &Engine{
		root:  root,
		infos: make(map[string]*Info),
		controllers: map[string]controller.Controller{
			"memory": mem,
			"cpu":    cpu,
			"core":   core,
		},
	}

	require.NoError(t, e.recoverContainer(context.Background(), cid, true))

	assert.Contains(t, mem.recovered, cid.String(), "memory is enabled, must be recovered")
	assert.Contains(t, core.recovered, cid.String(), "core is forbidden-from-subtree_control but always recovered")
	assert.NotContains(t, cpu.recovered, cid.String(), "cpu is configured but not enabled, must not be recovered")

	info, ok := e.lookupLocked(cid)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"memory", "core"}, info.Controllers)
}

func TestRecoverContainerSkipsSharedNestedContainer(t *testing.T) {
	root := t.TempDir()
	cid := containerid.New("c1").Child("shared")

	e := &Engine{root: root, infos: make(map[string]*Info), controllers: map[string]controller.Controller{}}
	require.NoError(t, e.recoverContainer(context.Background(), cid, false))

	assert.NoDirExists(t, containerid.NonLeafPath(root, cid), "shared nested container must not get its own cgroup recreated (I4)")
	_, ok := e.lookupLocked(cid)
	assert.False(t, ok, "shared nested container must not get its own Info (I4)")
}

func TestRecoverContainerRecreatesMissingDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(root, 0755))
	cid := containerid.New("ghost")

	e := &Engine{root: root, infos: make(map[string]*Info), controllers: map[string]controller.Controller{}}
	require.NoError(t, e.recoverContainer(context.Background(), cid, true))

	assert.DirExists(t, containerid.NonLeafPath(root, cid))
	assert.DirExists(t, containerid.LeafPath(root, cid))
}

// TestSweepClassifiesOrphansAndSkipsAgent exercises the classification
// half of the sweep (step 2-3 of §4.4) directly, without going through the
// full Recover->Cleanup->Destroy path: Destroy's final rmdir only succeeds
// against a real mounted cgroup2 hierarchy (see requireCgroup2), since a
// plain directory's control "files" are real dirents that block rmdir
// where the kernel's virtual ones would not.
func TestSweepClassifiesOrphansAndSkipsAgent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, agentCgroupName), 0755))

	known := containerid.New("known-orphan")
	unknown := containerid.New("unknown-orphan")
	require.NoError(t, os.MkdirAll(containerid.LeafPath(root, known), 0755))
	require.NoError(t, os.MkdirAll(containerid.LeafPath(root, unknown), 0755))

	all, err := cgroups2.AllCgroups(root)
	require.NoError(t, err)

	var classified []containerid.ID
	for _, path := range all {
		if path == filepath.Join(root, agentCgroupName) {
			continue
		}
		cid, ok := containerid.Decode(root, path)
		if !ok || cid.String() == agentCgroupName {
			continue
		}
		classified = append(classified, cid)
	}

	var names []string
	for _, cid := range classified {
		names = append(names, cid.String())
	}
	assert.Contains(t, names, known.String())
	assert.Contains(t, names, unknown.String())
	assert.NotContains(t, names, agentCgroupName)
}
