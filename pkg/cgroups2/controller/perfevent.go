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

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// perfEventController is one of the three names forbidden from
// subtree_control: it is not advertised in cgroup.controllers at all on a
// v2-only kernel (perf_event attachment in v2 happens implicitly via the
// cgroup path passed to perf_event_open), so there is no control file to
// enable. It is kept as a registered controller purely so perf-event
// attachment points (recorded by an external profiling collaborator) have
// somewhere to hang their prepare/cleanup bookkeeping.
type perfEventController struct{}

func newPerfEventController() *perfEventController { return &perfEventController{} }

func (c *perfEventController) Name() string { return "perf_event" }

func (c *perfEventController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return nil
}

func (c *perfEventController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *perfEventController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	return nil
}

func (c *perfEventController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	ch := make(chan Limitation)
	close(ch)
	return ch, nil
}

func (c *perfEventController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return nil
}

func (c *perfEventController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	return UsageSnapshot{}, nil
}

func (c *perfEventController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	return Status{Controller: "perf_event", Fields: map[string]string{}}, nil
}

func (c *perfEventController) Cleanup(ctx context.Context, cid containerid.ID) error {
	return nil
}
