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
	"strings"
	"sync"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// memoryController owns one eventWatcher per container between Prepare and
// Cleanup, keyed by container id string, so that Watch can be called
// multiple times without spawning duplicate fsnotify watches and so that
// Cleanup can close the handle deterministically (design notes, "shared
// ownership of control-file watchers").
type memoryController struct {
	mu       sync.Mutex
	watchers map[string]*eventWatcher
}

func newMemoryController() *memoryController {
	return &memoryController{watchers: make(map[string]*eventWatcher)}
}

func (c *memoryController) Name() string { return "memory" }

func (c *memoryController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *memoryController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *memoryController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

// Watch starts (or reuses) a watcher on the non-leaf's memory.events file,
// resolving the returned channel's single value the first time the
// oom_kill, oom or max counters increase. This is the memory controller's
// contribution to invariant P9 (single limitation per container).
func (c *memoryController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cid.String()
	w, ok := c.watchers[key]
	if !ok {
		var err error
		w, err = newEventWatcher(paths.NonLeaf, "memory.events", "memory", memoryViolation)
		if err != nil {
			return nil, errors.Wrapf(err, "watching memory.events at %q", paths.NonLeaf)
		}
		c.watchers[key] = w
	}
	return w.Subscribe(), nil
}

// memoryViolation inspects a memory.events snapshot and reports a
// Limitation the first time oom_kill, oom or max (checked in that order) is
// observed to have increased.
func memoryViolation(prev, cur map[string]int64) (Limitation, bool) {
	for _, key := range []string{"oom_kill", "oom", "max"} {
		if cur[key] > prev[key] {
			return Limitation{Controller: "memory", Resource: "memory", Message: "memory." + key + " exceeded"}, true
		}
	}
	return Limitation{}, false
}

func (c *memoryController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *memoryController) apply(paths Paths, limits Limits) error {
	resources := memoryResources(limits)
	if resources.Memory == nil {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating memory controls at %q", paths.NonLeaf)
	}
	return nil
}

func memoryResources(limits Limits) *cgroup2.Resources {
	resources := &cgroup2.Resources{}
	if limits.MemoryHard != nil || limits.MemorySoft != nil {
		resources.Memory = &cgroup2.Memory{
			Max: limits.MemoryHard,
			Low: limits.MemorySoft,
		}
	}
	return resources
}

func (c *memoryController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return UsageSnapshot{}, err
	}
	stat, err := m.Stat()
	if err != nil {
		return UsageSnapshot{}, errors.Wrapf(err, "reading memory stats at %q", paths.NonLeaf)
	}
	if stat.Memory == nil {
		return UsageSnapshot{}, nil
	}
	return UsageSnapshot{
		MemoryRSS:        &stat.Memory.Anon,
		MemoryWorkingSet: &stat.Memory.Usage,
	}, nil
}

func (c *memoryController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	events, err := readEventsFile(controlFile(paths.NonLeaf, "memory.events"))
	if err != nil {
		return Status{}, err
	}
	fields := make(map[string]string, len(events))
	for k, v := range events {
		fields[k] = itoa(uint64(v))
	}
	return Status{Controller: "memory", Fields: fields}, nil
}

func (c *memoryController) Cleanup(ctx context.Context, cid containerid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cid.String()
	if w, ok := c.watchers[key]; ok {
		w.Close()
		delete(c.watchers, key)
	}
	return nil
}

func readEventsFile(path string) (map[string]int64, error) {
	content, err := readFileString(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		var v int64
		if _, err := parseInt(fields[1], &v); err == nil {
			out[fields[0]] = v
		}
	}
	return out, nil
}
