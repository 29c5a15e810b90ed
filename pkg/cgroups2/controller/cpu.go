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

type cpuController struct{}

func newCPUController() *cpuController { return &cpuController{} }

func (c *cpuController) Name() string { return "cpu" }

func (c *cpuController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *cpuController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *cpuController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

func (c *cpuController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *cpuController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *cpuController) apply(paths Paths, limits Limits) error {
	resources := cpuResources(limits)
	if resources.CPU == nil {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating cpu controls at %q", paths.NonLeaf)
	}
	return nil
}

func cpuResources(limits Limits) *cgroup2.Resources {
	resources := &cgroup2.Resources{}
	if limits.CPUQuota != nil || limits.CPUPeriod != nil || limits.CPUShares != nil {
		resources.CPU = &cgroup2.CPU{
			Max:    cgroup2.NewCPUMax(limits.CPUQuota, limits.CPUPeriod),
			Weight: limits.CPUShares,
		}
	}
	return resources
}

func (c *cpuController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return UsageSnapshot{}, err
	}
	stat, err := m.Stat()
	if err != nil {
		return UsageSnapshot{}, errors.Wrapf(err, "reading cpu stats at %q", paths.NonLeaf)
	}
	if stat.CPU == nil {
		return UsageSnapshot{}, nil
	}
	return UsageSnapshot{CPUTimeNanos: u64ptr(stat.CPU.UsageUsec * 1000)}, nil
}

func (c *cpuController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return Status{}, err
	}
	stat, err := m.Stat()
	if err != nil || stat.CPU == nil {
		return Status{Controller: "cpu", Fields: map[string]string{}}, nil
	}
	return Status{Controller: "cpu", Fields: map[string]string{
		"throttled_usec": itoa(stat.CPU.ThrottledUsec),
	}}, nil
}

func (c *cpuController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
