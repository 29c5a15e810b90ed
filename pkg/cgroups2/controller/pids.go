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
	"sync"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// pidsController mirrors memoryController's watcher-ownership pattern but
// against pids.events' "max" counter.
type pidsController struct {
	mu       sync.Mutex
	watchers map[string]*eventWatcher
}

func newPidsController() *pidsController {
	return &pidsController{watchers: make(map[string]*eventWatcher)}
}

func (c *pidsController) Name() string { return "pids" }

func (c *pidsController) Prepare(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *pidsController) Isolate(ctx context.Context, cid containerid.ID, paths Paths, pid uint64) error {
	return nil
}

func (c *pidsController) Recover(ctx context.Context, cid containerid.ID, paths Paths) error {
	_, err := loadManager(paths.NonLeaf)
	return err
}

func (c *pidsController) Watch(ctx context.Context, cid containerid.ID, paths Paths) (<-chan Limitation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cid.String()
	w, ok := c.watchers[key]
	if !ok {
		var err error
		w, err = newEventWatcher(paths.NonLeaf, "pids.events", "pids", pidsViolation)
		if err != nil {
			return nil, errors.Wrapf(err, "watching pids.events at %q", paths.NonLeaf)
		}
		c.watchers[key] = w
	}
	return w.Subscribe(), nil
}

func pidsViolation(prev, cur map[string]int64) (Limitation, bool) {
	if cur["max"] > prev["max"] {
		return Limitation{Controller: "pids", Resource: "pids", Message: "pids.max reached"}, true
	}
	return Limitation{}, false
}

func (c *pidsController) Update(ctx context.Context, cid containerid.ID, paths Paths, limits Limits) error {
	return c.apply(paths, limits)
}

func (c *pidsController) apply(paths Paths, limits Limits) error {
	if limits.PidsMax == nil {
		return nil
	}
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return err
	}
	resources := &cgroup2.Resources{Pids: &cgroup2.Pids{Max: *limits.PidsMax}}
	if err := m.Update(resources); err != nil {
		return errors.Wrapf(err, "updating pids.max at %q", paths.NonLeaf)
	}
	return nil
}

func (c *pidsController) Usage(ctx context.Context, cid containerid.ID, paths Paths) (UsageSnapshot, error) {
	m, err := loadManager(paths.NonLeaf)
	if err != nil {
		return UsageSnapshot{}, err
	}
	stat, err := m.Stat()
	if err != nil || stat.Pids == nil {
		return UsageSnapshot{}, nil
	}
	return UsageSnapshot{ProcessCount: &stat.Pids.Current}, nil
}

func (c *pidsController) Status(ctx context.Context, cid containerid.ID, paths Paths) (Status, error) {
	events, err := readEventsFile(controlFile(paths.NonLeaf, "pids.events"))
	if err != nil {
		return Status{}, err
	}
	fields := make(map[string]string, len(events))
	for k, v := range events {
		fields[k] = itoa(uint64(v))
	}
	return Status{Controller: "pids", Fields: fields}, nil
}

func (c *pidsController) Cleanup(ctx context.Context, cid containerid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cid.String()
	if w, ok := c.watchers[key]; ok {
		w.Close()
		delete(c.watchers, key)
	}
	return nil
}
