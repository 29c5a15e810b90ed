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

package controller

import (
	"context"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// coreController manipulates the cgroup.* files present in every cgroup
// (cgroup.procs, cgroup.freeze, cgroup.subtree_control) rather than a
// kernel resource controller. It is one of the three names that must never
// be written into subtree_control: there is nothing to "enable", the files
// it touches always exist.
type coreController struct{}

func newCoreController() *coreController { return &coreController{} }

func (c *coreController) Name() string { return "core" }

func (c *coreController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return nil
}

func (c *coreController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *coreController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	return nil
}

func (c *coreController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *coreController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return nil
}

func (c *coreController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	pids, err := cgroups2.Procs(paths.Leaf)
	if err != nil {
		return UsageSnapshot{}, err
	}
	count := uint64(len(pids))
	return UsageSnapshot{ProcessCount: &count}, nil
}

func (c *coreController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	enabled, err := cgroups2.ControllersEnabled(paths.NonLeaf)
	if err != nil {
		return Status{}, err
	}
	return Status{Controller: "core", Fields: map[string]string{"enabled_controllers": joinTokens(enabled)}}, nil
}

func (c *coreController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}

func joinTokens(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
