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

// Package controller defines the uniform per-kernel-controller contract and
// the closed-set registry that the isolator engine dispatches through by
// name. Each controller owns only the in-memory state it keeps between
// Prepare and Cleanup for a given container; the cgroup directory itself
// belongs to the engine.
package controller

import (
	"context"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// Paths is the pair of cgroup directories a controller operates on: the
// non-leaf (where subtree_control and most controller files live) and the
// leaf (where the container's own processes live).
type Paths struct {
	NonLeaf string
	Leaf    string
}

// Limits is the agent's resource request/limit vector for one container.
// Every field is optional; a nil pointer means "no opinion" and the
// controller must leave the corresponding control file untouched or at its
// kernel default, never guess a value.
type Limits struct {
	CPUShares    *uint64
	CPUQuota     *int64
	CPUPeriod    *uint64
	CPUSetCPUs   string
	CPUSetMems   string
	MemorySoft   *int64
	MemoryHard   *int64
	IOWeight     *uint64
	PidsMax      *int64
	HugetlbLimit map[string]int64 // page size (e.g. "2MB") -> byte limit
	OOMScoreAdj  *int32
}

// Limitation is the single event a controller may deliver for the lifetime
// of a container: a kernel-reported policy violation.
type Limitation struct {
	Controller string
	Resource   string
	Message    string
}

// UsageSnapshot is the subset of usage statistics one controller
// contributes; the engine merges per-controller snapshots into one.
type UsageSnapshot struct {
	CPUTimeNanos   *uint64
	MemoryRSS      *uint64
	MemoryWorkingSet *uint64
	IOReadBytes    *uint64
	IOWriteBytes   *uint64
	ProcessCount   *uint64
	ThreadCount    *uint64
}

// Status is the structured status subset one controller contributes.
type Status struct {
	Controller string
	Fields     map[string]string
}

// Controller is implemented by every kernel-controller plugin, including
// the three that must never be written into cgroup.subtree_control: core,
// perf_event, devices (see Forbidden below).
type Controller interface {
	Name() string

	// Prepare sets initial control files from the container's config. May
	// be a no-op for controllers with nothing to configure up front.
	Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error

	// Isolate performs controller-specific post-fork work. The launcher
	// (not the controller) is responsible for placing pid in the leaf.
	Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error

	// Recover reconciles in-memory controller state with an existing
	// on-disk cgroup discovered at startup.
	Recover(ctx context.Context, cid containerid.ID, paths Paths) error

	// Watch returns a channel that receives at most one Limitation for
	// the container's lifetime, then is closed. It may never send.
	Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error)

	// Update idempotently re-applies the quantitative policy.
	Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error

	// Usage returns this controller's contribution to a usage snapshot.
	Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error)

	// Status returns this controller's structured status subset.
	Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error)

	// Cleanup releases controller-owned in-memory state. It must not
	// touch the cgroup directory tree itself.
	Cleanup(ctx context.Context, cid containerid.ID) error
}

// Forbidden names the controllers that must never appear in a
// cgroup.subtree_control write: core manipulates cgroup.* files present in
// every cgroup, perf_event is not advertised in cgroup.controllers at all,
// and devices is governed out-of-tree by a BPF/device manager.
var Forbidden = map[string]bool{
	"core":       true,
	"perf_event": true,
	"devices":    true,
}
