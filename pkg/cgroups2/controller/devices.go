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

	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// devicesController is the out-of-tree controller (§6): device access
// control on cgroup v2 is enforced by attaching a BPF program, not by
// writing a subtree_control token, so this controller defers entirely to
// the injected DeviceManager collaborator and never touches a control
// file itself.
type devicesController struct {
	dm DeviceManager
}

func newDevicesController(dm DeviceManager) *devicesController {
	return &devicesController{dm: dm}
}

func (c *devicesController) Name() string { return "devices" }

func (c *devicesController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	if _, err := c.dm.Allowed(cid.String()); err != nil {
		return errors.Wrapf(err, "resolving device rules for %q", cid.String())
	}
	return nil
}

func (c *devicesController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *devicesController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	return nil
}

func (c *devicesController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *devicesController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return nil
}

func (c *devicesController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	return UsageSnapshot{}, nil
}

func (c *devicesController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	return Status{Controller: "devices", Fields: map[string]string{}}, nil
}

func (c *devicesController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
