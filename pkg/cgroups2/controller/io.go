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

type ioController struct{}

func newIOController() *ioController { return &ioController{} }

func (c *ioController) Name() string { return "io" }

func (c *ioController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *ioController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *ioController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

func (c *ioController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *ioController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *ioController) apply(paths Paths, limits Limits) error {
	if limits.IOWeight == nil {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}
	resources := &cgroup2.Resources{IO: &cgroup2.IO{Weight: limits.IOWeight}}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating io.weight at %q", paths.NonLeaf)
	}
	return nil
}

func (c *ioController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return UsageSnapshot{}, err
	}
	stat, err := m.Stat()
	if err != nil || stat.Io == nil || len(stat.Io.Usage) == 0 {
		return UsageSnapshot{}, nil
	}

	var readBytes, writeBytes uint64
	for _, entry := range stat.Io.Usage {
		readBytes += entry.Rbytes
		writeBytes += entry.Wbytes
	}
	return UsageSnapshot{IOReadBytes: &readBytes, IOWriteBytes: &writeBytes}, nil
}

func (c *ioController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	return Status{Controller: "io", Fields: map[string]string{}}, nil
}

func (c *ioController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
