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

type hugetlbController struct{}

func newHugetlbController() *hugetlbController { return &hugetlbController{} }

func (c *hugetlbController) Name() string { return "hugetlb" }

func (c *hugetlbController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *hugetlbController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *hugetlbController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

func (c *hugetlbController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *hugetlbController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *hugetlbController) apply(paths Paths, limits Limits) error {
	if len(limits.HugetlbLimit) == 0 {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}

	entries := make(cgroup2.HugeTlb, 0, len(limits.HugetlbLimit))
	for pageSize, limit := range limits.HugetlbLimit {
		entries = append(entries, cgroup2.HugeTlbEntry{HugePageSize: pageSize, Limit: uint64(limit)})
	}
	resources := &cgroup2.Resources{HugeTlb: &entries}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating hugetlb limits at %q", paths.NonLeaf)
	}
	return nil
}

func (c *hugetlbController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	return UsageSnapshot{}, nil
}

func (c *hugetlbController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	return Status{Controller: "hugetlb", Fields: map[string]string{}}, nil
}

func (c *hugetlbController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
