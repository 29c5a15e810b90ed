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

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
	"github.com/secretflow/cgroups2-isolator/pkg/log"
)

// agentCgroupName is the fixed name of the agent's own cgroup, skipped by
// the filesystem sweep (§6 hierarchy layout).
const agentCgroupName = "agent"

// Recover implements §4.4's three-phase recovery flow: checkpointed
// containers, then a filesystem sweep classifying the remainder into known
// and unknown orphans, all funneled through the same recoverContainer path
// so they can later be destroyed uniformly.
func (e *Engine) Recover(ctx context.Context, input RecoverInput) error {
	for _, cs := range input.States {
		if err := e.recoverContainer(ctx, cs.ID, !cs.ShareCgroups); err != nil {
			log.Warnf("failed to recover checkpointed container %q: %v", cs.ID, err)
		}
	}

	all, err := cgroups2.AllCgroups(e.root)
	if err != nil {
		return &FilesystemError{Op: "sweep", Path: e.root, Err: err}
	}

	var toCleanup []containerid.ID
	for _, path := range all {
		if path == e.root+"/"+agentCgroupName {
			continue
		}
		cid, ok := containerid.Decode(e.root, path)
		if !ok || cid.String() == agentCgroupName {
			continue
		}

		e.mu.Lock()
		_, known := e.lookupLocked(cid)
		e.mu.Unlock()
		if known {
			continue
		}

		isKnownOrphan := input.Orphans[cid.String()]
		if err := e.recoverContainer(ctx, cid, true); err != nil {
			log.Warnf("failed to recover orphan %q (known=%v): %v", cid, isKnownOrphan, err)
			continue
		}
		OrphansRecovered.Inc()

		if !isKnownOrphan {
			toCleanup = append(toCleanup, cid)
		}
	}

	for _, cid := range toCleanup {
		if err := e.Cleanup(ctx, cid); err != nil {
			log.Warnf("cleanup of unknown orphan %q failed: %v", cid, err)
		}
	}
	return nil
}

// recoverContainer implements §4.4 step 5: repair missing directories,
// read the enabled-controllers set, and invoke recover only on configured
// controllers that are either enabled in the non-leaf's subtree_control or
// one of the Forbidden names (which never appear there).
//
// A shared-cgroup checkpointed container (isolate == false) has no cgroup
// and no Info of its own (I4): it never appears in the filesystem sweep,
// and its own directories must not be recreated here — resource operations
// on its id resolve to the owning ancestor's Info via cgroupInfo.
func (e *Engine) recoverContainer(ctx context.Context, cid containerid.ID, isolate bool) error {
	if !isolate {
		return nil
	}

	nonLeaf := containerid.NonLeafPath(e.root, cid)
	leaf := containerid.LeafPath(e.root, cid)

	if !cgroups2.Exists(nonLeaf) {
		log.Warnf("recovering %q: non-leaf cgroup missing, recreating %q", cid, nonLeaf)
		if err := cgroups2.Create(nonLeaf, true); err != nil {
			return &FilesystemError{Op: "recreate", Path: nonLeaf, Err: err}
		}
	}
	if !cgroups2.Exists(leaf) {
		log.Warnf("recovering %q: leaf cgroup missing, recreating %q", cid, leaf)
		if err := cgroups2.Create(leaf, false); err != nil {
			return &FilesystemError{Op: "recreate", Path: leaf, Err: err}
		}
	}

	enabled, err := cgroups2.ControllersEnabled(nonLeaf)
	if err != nil {
		enabled = nil
	}
	enabledSet := make(map[string]bool, len(enabled))
	for _, n := range enabled {
		enabledSet[n] = true
	}

	paths := controller.Paths{NonLeaf: nonLeaf, Leaf: leaf}
	var recovered []string
	for name, c := range e.controllers {
		if controller.Forbidden[name] || enabledSet[name] {
			if err := c.Recover(ctx, cid, paths); err != nil {
				log.Warnf("controller %q failed to recover %q: %v", name, cid, err)
				continue
			}
			recovered = append(recovered, name)
		} else {
			log.Infof("controller %q configured but not enabled for %q, skipping recover", name, cid)
		}
	}

	info := newInfo(cid, nonLeaf, leaf, isolate, recovered)
	e.mu.Lock()
	e.infos[cid.String()] = info
	e.mu.Unlock()
	return nil
}
