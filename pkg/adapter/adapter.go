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

package adapter

import (
	"context"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
	"github.com/secretflow/cgroups2-isolator/pkg/isolator"
	"github.com/secretflow/cgroups2-isolator/pkg/log"
)

// Isolator is the agent-facing surface: the hook protocol named in §6,
// implemented by delegating every operation to the engine and doing only
// the translation work (launch-info wrapping, default share_cgroups,
// capability probes) that belongs to this boundary rather than the engine.
type Isolator struct {
	engine *isolator.Engine
}

// New wraps engine as the agent-facing adapter.
func New(engine *isolator.Engine) *Isolator {
	return &Isolator{engine: engine}
}

// SupportsNesting reports that this isolator can be attached to nested
// containers.
func (a *Isolator) SupportsNesting() bool { return true }

// SupportsStandalone reports that this isolator functions without a
// running agent launcher coordinating every step (it only needs the
// cgroup v2 hierarchy and the container's pid).
func (a *Isolator) SupportsStandalone() bool { return true }

// PrepareRequest is the agent-facing request shape for Prepare; it adds
// the nesting defaulting the adapter, not the engine, is responsible for.
type PrepareRequest struct {
	ID            containerid.ID
	Parent        *containerid.ID
	ShareCgroups  *bool // nil means "use the default for this nesting level"
	Limits        isolator.Request
	RootfsPresent bool
	IsCommandTask bool
	TaskUser      string
	ContainerUser string
}

// resolveShareCgroups implements §4.3 step 3: a nested container defaults
// to share_cgroups=true unless told otherwise; a top-level container is
// always unshared regardless of what was passed.
func resolveShareCgroups(req PrepareRequest) bool {
	if req.Parent == nil {
		return false
	}
	if req.ShareCgroups == nil {
		return true
	}
	return *req.ShareCgroups
}

// Prepare translates PrepareRequest into the engine's ContainerConfig and,
// when a rootfs is present, wraps the resulting LaunchInfo in a nested
// envelope for command-task containers so the outer executor does not see
// the mount and the inner task does.
func (a *Isolator) Prepare(ctx context.Context, req PrepareRequest) (*LaunchDirective, error) {
	cfg := isolator.ContainerConfig{
		Parent:        req.Parent,
		ShareCgroups:  resolveShareCgroups(req),
		Limits:        req.Limits,
		RootfsPresent: req.RootfsPresent,
		IsCommandTask: req.IsCommandTask,
		TaskUser:      req.TaskUser,
		ContainerUser: req.ContainerUser,
	}

	launch, err := a.engine.Prepare(ctx, req.ID, cfg)
	if err != nil {
		return nil, err
	}
	if launch == nil {
		return nil, nil
	}
	return newLaunchDirective(*launch), nil
}

// Isolate places pid under the container's controllers; the launcher
// (external to this module) is responsible for having already put pid in
// the leaf's cgroup.procs.
func (a *Isolator) Isolate(ctx context.Context, cid containerid.ID, pid uint64) error {
	return a.engine.Isolate(ctx, cid, pid)
}

// Watch returns the container's one-shot Limitation channel.
func (a *Isolator) Watch(ctx context.Context, cid containerid.ID) (<-chan isolator.Limitation, error) {
	return a.engine.Watch(ctx, cid)
}

// Update re-applies the container's resource policy.
func (a *Isolator) Update(ctx context.Context, cid containerid.ID, limits isolator.Request) error {
	return a.engine.Update(ctx, cid, limits)
}

// Usage returns the container's merged usage snapshot.
func (a *Isolator) Usage(ctx context.Context, cid containerid.ID) (isolator.UsageSnapshot, error) {
	return a.engine.Usage(ctx, cid)
}

// Status returns the container's merged structured status.
func (a *Isolator) Status(ctx context.Context, cid containerid.ID) (isolator.Status, error) {
	return a.engine.StatusOf(ctx, cid)
}

// Cleanup tears the container's cgroup down; unknown containers are
// silently accepted as already clean.
func (a *Isolator) Cleanup(ctx context.Context, cid containerid.ID) error {
	return a.engine.Cleanup(ctx, cid)
}

// Recover replays checkpointed state and sweeps for orphans at startup.
func (a *Isolator) Recover(ctx context.Context, input isolator.RecoverInput) error {
	log.Infof("recovering %d checkpointed container(s)", len(input.States))
	return a.engine.Recover(ctx, input)
}
