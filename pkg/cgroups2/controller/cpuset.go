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

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// cpusetController writes cpuset.cpus/cpuset.mems. In the cgroup2 unified
// hierarchy these live in the same control-file family as cpu.*, but the
// isolator still exposes them as a distinct named controller per the
// agent's isolation-flag vocabulary (cgroups/cpuset).
type cpusetController struct{}

func newCPUSetController() *cpusetController { return &cpusetController{} }

func (c *cpusetController) Name() string { return "cpuset" }

func (c *cpusetController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *cpusetController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *cpusetController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

func (c *cpusetController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *cpusetController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *cpusetController) apply(paths Paths, limits Limits) error {
	if limits.CPUSetCPUs == "" && limits.CPUSetMems == "" {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}
	resources := &cgroup2.Resources{CPU: &cgroup2.CPU{Cpus: limits.CPUSetCPUs, Mems: limits.CPUSetMems}}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating cpuset at %q", paths.NonLeaf)
	}
	return nil
}

func (c *cpusetController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	return UsageSnapshot{}, nil
}

func (c *cpusetController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	cpus, _ := readFileString(controlFile(paths.NonLeaf, "cpuset.cpus"))
	mems, _ := readFileString(controlFile(paths.NonLeaf, "cpuset.mems"))
	return Status{Controller: "cpuset", Fields: map[string]string{"cpus": cpus, "mems": mems}}, nil
}

func (c *cpusetController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
