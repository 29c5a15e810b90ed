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
	"os"
	"path/filepath"
	"strings"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// cgroupInfo implements §4.5: for an arbitrary ContainerId, walk upward via
// parent until an Info is found or the chain is exhausted. This is what
// lets isolate/watch/usage/status for a shared-cgroup nested container (I4)
// be answered by the owning ancestor's Info; update uses it to recognise
// such a container and refuse it, and cleanup does not use it at all.
func (e *Engine) cgroupInfo(cid containerid.ID) (*Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := cid
	for {
		if info, ok := e.lookupLocked(cur); ok {
			return info, true
		}
		if !cur.HasParent() {
			return nil, false
		}
		cur = *cur.Parent
	}
}

// relPath splits the path from root down to target into its individual
// path-segment components, used to derive every ancestor hop for
// subtree_control writes.
func relPath(root, target string) ([]string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return nil, err
	}
	if rel == "." {
		return nil, nil
	}
	return strings.Split(rel, string(filepath.Separator)), nil
}

func chownPath(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}
