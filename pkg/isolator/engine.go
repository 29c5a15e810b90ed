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

package isolator

import (
	"context"
	"os/user"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
	"github.com/secretflow/cgroups2-isolator/pkg/log"
)

// Engine is the single logical actor described in §5: every public method
// serializes against the shared infos table via mu, but fans work out to
// controllers in parallel and awaits the collective result before
// transitioning state.
type Engine struct {
	root       string
	registry   *controller.Registry
	deviceMgr  controller.DeviceManager
	controllerNames []string

	mu        sync.Mutex
	infos     map[string]*Info
	controllers map[string]controller.Controller
}

// Config is the set of engine-startup parameters derived from the agent's
// configuration flags.
type Config struct {
	Root            string
	ControllerNames []string // the closed-set names enabled by --isolation
	Registry        *controller.Registry
	DeviceManager   controller.DeviceManager
}

// New constructs the engine. It fails with *MissingRootError if root does
// not already exist: the agent's own bootstrap logic is responsible for
// creating it and enabling the first hop of subtree_control, and
// recreating it here would silently violate I2 for every future container.
func New(cfg Config) (*Engine, error) {
	if !cgroups2.Exists(cfg.Root) {
		return nil, &MissingRootError{Root: cfg.Root}
	}

	e := &Engine{
		root:            cfg.Root,
		registry:        cfg.Registry,
		deviceMgr:       cfg.DeviceManager,
		controllerNames: cfg.ControllerNames,
		infos:           make(map[string]*Info),
		controllers:     make(map[string]controller.Controller),
	}

	for _, name := range cfg.ControllerNames {
		c, err := cfg.Registry.Create(name, cfg.DeviceManager)
		if err != nil {
			return nil, errors.Wrapf(err, "constructing controller %q", name)
		}
		e.controllers[name] = c
	}
	return e, nil
}

func (e *Engine) lookupLocked(cid containerid.ID) (*Info, bool) {
	info, ok := e.infos[cid.String()]
	return info, ok
}

// Prepare implements §4.3's prepare operation.
func (e *Engine) Prepare(ctx context.Context, cid containerid.ID, cfg ContainerConfig) (*LaunchInfo, error) {
	e.mu.Lock()
	if _, exists := e.lookupLocked(cid); exists {
		e.mu.Unlock()
		return nil, &AlreadyPreparedError{ID: cid}
	}
	e.mu.Unlock()

	isolate := true
	if cfg.Parent != nil {
		isolate = !cfg.ShareCgroups
	}

	// I4: a shared-cgroup nested container gets no cgroup and no Info of its
	// own. Resource operations on its id resolve to the owning ancestor via
	// cgroupInfo's upward walk (§4.5), so nothing is inserted into e.infos
	// here and no directories are created — only the parent's cgroup exists
	// (§8 scenario 2).
	if !isolate {
		ContainersPrepared.Inc()
		if !cfg.RootfsPresent {
			return nil, nil
		}
		parentInfo, ok := e.cgroupInfo(*cfg.Parent)
		if !ok {
			return nil, &UnknownContainerError{ID: *cfg.Parent}
		}
		return &LaunchInfo{
			NewCgroupNamespace: true,
			NewMountNamespace:  true,
			BindMountSource:    parentInfo.Leaf,
			BindMountTarget:    "/sys/fs/cgroup",
			Nested:             cfg.IsCommandTask,
		}, nil
	}

	nonLeaf := containerid.NonLeafPath(e.root, cid)
	leaf := containerid.LeafPath(e.root, cid)
	if cgroups2.Exists(nonLeaf) || cgroups2.Exists(leaf) {
		return nil, &FilesystemError{Op: "prepare", Path: nonLeaf, Err: errors.New("cgroup already exists")}
	}

	if err := cgroups2.Create(nonLeaf, true); err != nil {
		return nil, &FilesystemError{Op: "create", Path: nonLeaf, Err: err}
	}
	if err := cgroups2.Create(leaf, false); err != nil {
		return nil, &FilesystemError{Op: "create", Path: leaf, Err: err}
	}

	info := newInfo(cid, nonLeaf, leaf, isolate, nil)

	if err := e.enableSubtree(nonLeaf); err != nil {
		return nil, err
	}

	var names []string
	var failures []ControllerFailure
	var fmu sync.Mutex
	var wg sync.WaitGroup
	for name, c := range e.controllers {
		name, c := name, c
		names = append(names, name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths := controller.Paths{NonLeaf: nonLeaf, Leaf: leaf}
			if err := c.Prepare(ctx, cid, paths, cfg.Limits); err != nil {
				fmu.Lock()
				failures = append(failures, ControllerFailure{Controller: name, Err: err})
				fmu.Unlock()
			}
		}()
	}
	wg.Wait()
	info.Controllers = names

	if err := Join(failures); err != nil {
		return nil, err
	}

	if user, ok := cfg.resolvedUser(); ok {
		if err := chown(leaf, user); err != nil {
			return nil, &FilesystemError{Op: "chown", Path: leaf, Err: err}
		}
	} else if cfg.RootfsPresent && cfg.IsCommandTask {
		return nil, ErrNoChownUser
	}

	if err := e.updateLocked(ctx, info, cfg.Limits); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.infos[cid.String()] = info
	e.mu.Unlock()

	ContainersPrepared.Inc()

	if !cfg.RootfsPresent {
		return nil, nil
	}

	launch := &LaunchInfo{
		NewCgroupNamespace: true,
		NewMountNamespace:  true,
		BindMountSource:    leaf,
		BindMountTarget:    "/sys/fs/cgroup",
		Nested:             cfg.IsCommandTask,
	}
	return launch, nil
}

// enableSubtree walks every hop from e.root down to nonLeaf (exclusive of
// the leaf, which must never appear in subtree_control) enabling every
// non-forbidden configured controller, per §4.3 step 6.
func (e *Engine) enableSubtree(nonLeaf string) error {
	var names []string
	for name := range e.controllers {
		if controller.Forbidden[name] {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}

	for _, hop := range hierarchyHops(e.root, nonLeaf) {
		if err := cgroups2.ControllersEnable(hop, names); err != nil {
			return &FilesystemError{Op: "enable-subtree", Path: hop, Err: err}
		}
	}
	return nil
}

// hierarchyHops returns every ancestor directory from root down to and
// including nonLeaf, in top-down order. root itself is always the first
// hop: P2 requires every directory from <root> through <root>/<cid> to
// carry the controller in its subtree_control, root included.
func hierarchyHops(root, nonLeaf string) []string {
	hops := []string{root}
	rel, err := relPath(root, nonLeaf)
	if err != nil {
		return append(hops, nonLeaf)
	}
	cur := root
	for _, part := range rel {
		cur = cur + "/" + part
		hops = append(hops, cur)
	}
	return hops
}

// Isolate implements §4.3's isolate operation.
func (e *Engine) Isolate(ctx context.Context, cid containerid.ID, pid uint64) error {
	info, err := e.requireInfo(cid)
	if err != nil {
		return err
	}
	if !info.Isolate {
		return nil
	}

	var failures []ControllerFailure
	var fmu sync.Mutex
	var wg sync.WaitGroup
	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Isolate(ctx, cid, paths, pid); err != nil {
				fmu.Lock()
				failures = append(failures, ControllerFailure{Controller: name, Err: err})
				fmu.Unlock()
			}
		}()
	}
	wg.Wait()
	return Join(failures)
}

// Watch implements §4.3's watch operation: the first controller whose
// future resolves wins, and that Limitation is delivered on the
// container's one-shot promise (P9).
func (e *Engine) Watch(ctx context.Context, cid containerid.ID) (<-chan Limitation, error) {
	info, err := e.requireInfo(cid)
	if err != nil {
		return nil, err
	}

	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		ch, err := c.Watch(ctx, cid, paths)
		if err != nil {
			log.Warnf("controller %q failed to start watch for %q: %v", name, cid, err)
			continue
		}
		go func() {
			for l := range ch {
				info.deliver(l)
			}
		}()
	}
	return info.promiseCh, nil
}

// Update implements §4.3's update operation.
func (e *Engine) Update(ctx context.Context, cid containerid.ID, limits Request) error {
	info, err := e.requireInfo(cid)
	if err != nil {
		return err
	}
	// A shared-cgroup nested container has no Info of its own: cgroupInfo
	// resolves it to the owning ancestor's Info, which it must not update.
	if !info.Isolate || !info.ID.Equal(cid) {
		return &UpdateNotSupportedError{ID: cid}
	}
	return e.updateLocked(ctx, info, limits)
}

func (e *Engine) updateLocked(ctx context.Context, info *Info, limits Request) error {
	var failures []ControllerFailure
	var fmu sync.Mutex
	var wg sync.WaitGroup
	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Update(ctx, info.ID, paths, limits); err != nil {
				fmu.Lock()
				failures = append(failures, ControllerFailure{Controller: name, Err: err})
				fmu.Unlock()
			}
		}()
	}
	wg.Wait()
	return Join(failures)
}

// Usage implements §4.3's usage operation: partial failure is not
// propagated, unready shards are logged and dropped.
func (e *Engine) Usage(ctx context.Context, cid containerid.ID) (UsageSnapshot, error) {
	info, err := e.requireInfo(cid)
	if err != nil {
		return UsageSnapshot{}, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	merged := UsageSnapshot{}
	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := c.Usage(ctx, cid, paths)
			if err != nil {
				log.Warnf("controller %q usage failed for %q: %v", name, cid, err)
				return
			}
			mu.Lock()
			mergeUsage(&merged, snap)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return merged, nil
}

func mergeUsage(dst *UsageSnapshot, src UsageSnapshot) {
	if src.CPUTimeNanos != nil {
		dst.CPUTimeNanos = src.CPUTimeNanos
	}
	if src.MemoryRSS != nil {
		dst.MemoryRSS = src.MemoryRSS
	}
	if src.MemoryWorkingSet != nil {
		dst.MemoryWorkingSet = src.MemoryWorkingSet
	}
	if src.IOReadBytes != nil {
		dst.IOReadBytes = src.IOReadBytes
	}
	if src.IOWriteBytes != nil {
		dst.IOWriteBytes = src.IOWriteBytes
	}
	if src.ProcessCount != nil {
		dst.ProcessCount = src.ProcessCount
	}
	if src.ThreadCount != nil {
		dst.ThreadCount = src.ThreadCount
	}
}

// StatusOf implements §4.3's status operation.
func (e *Engine) StatusOf(ctx context.Context, cid containerid.ID) (Status, error) {
	info, err := e.requireInfo(cid)
	if err != nil {
		return Status{}, err
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	result := Status{Container: cid}
	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		name, c := name, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.Status(ctx, cid, paths)
			if err != nil {
				log.Warnf("controller %q status failed for %q: %v", name, cid, err)
				return
			}
			mu.Lock()
			result.Sections = append(result.Sections, s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return result, nil
}

// Cleanup implements §4.3's cleanup operation. Unknown containers are
// silently ignored; so is a shared-cgroup nested container, which has no
// Info of its own (its owning ancestor's cgroup is left untouched).
func (e *Engine) Cleanup(ctx context.Context, cid containerid.ID) error {
	e.mu.Lock()
	info, ok := e.lookupLocked(cid)
	e.mu.Unlock()
	if !ok {
		return nil
	}

	paths := controller.Paths{NonLeaf: info.NonLeaf, Leaf: info.Leaf}
	var wg sync.WaitGroup
	for _, name := range info.Controllers {
		c, ok := e.controllers[name]
		if !ok {
			continue
		}
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Cleanup(ctx, info.ID); err != nil {
				log.Warnf("controller cleanup failed for %q: %v", info.ID, err)
			}
		}()
	}
	wg.Wait()
	_ = paths

	if !cgroups2.Exists(info.NonLeaf) {
		ContainersCleaned.Inc()
		e.eraseInfo(info.ID)
		return nil
	}

	if err := cgroups2.Destroy(info.NonLeaf); err != nil {
		if _, ok := err.(*cgroups2.DestroyFailedError); ok {
			DestroyFailures.Inc()
		}
		return err
	}
	ContainersCleaned.Inc()
	e.eraseInfo(info.ID)
	return nil
}

func (e *Engine) eraseInfo(cid containerid.ID) {
	e.mu.Lock()
	delete(e.infos, cid.String())
	e.mu.Unlock()
}

func (e *Engine) requireInfo(cid containerid.ID) (*Info, error) {
	info, ok := e.cgroupInfo(cid)
	if !ok {
		return nil, &UnknownContainerError{ID: cid}
	}
	return info, nil
}

func chown(path, username string) error {
	u, err := user.Lookup(username)
	if err != nil {
		return errors.Wrapf(err, "looking up user %q", username)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}
	return chownPath(path, uid, gid)
}
