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

// Package cgroups2 is a thin facade over the mounted cgroup v2 unified
// hierarchy: mount detection, directory create/destroy, control-file I/O,
// and children/controller enumeration. It intentionally stays close to the
// raw control files (rather than wrapping containerd/cgroups/v3's Manager,
// which is scoped to a single cgroup's lifecycle) because several of its
// operations -- walking every ancestor to enable a controller, sweeping
// every cgroup under an arbitrary root -- act on the whole hierarchy at
// once, something no single-cgroup Manager handle can express.
package cgroups2

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/cgroups/v3"
	mobymount "github.com/moby/sys/mount"
	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/secretflow/cgroups2-isolator/pkg/log"
	"github.com/secretflow/cgroups2-isolator/pkg/pathutil"
)

// DefaultMountpoint is where the kernel expects the unified hierarchy.
const DefaultMountpoint = "/sys/fs/cgroup"

const (
	fileControllers     = "cgroup.controllers"
	fileSubtreeControl  = "cgroup.subtree_control"
	fileProcs           = "cgroup.procs"
	fileFreeze          = "cgroup.freeze"
	drainBackoffInitial = 50 * time.Millisecond
	drainBackoffMax     = 1 * time.Second
	drainAttempts       = 10
)

// Enabled reports whether the kernel advertises cgroup v2 support.
func Enabled() bool {
	return cgroups.Mode() == cgroups.Unified
}

// Mounted reports whether the cgroup2 filesystem is mounted at mountpoint.
func Mounted(mountpoint string) (bool, error) {
	mounted, err := mountinfo.Mounted(mountpoint)
	if err != nil {
		return false, errors.Wrapf(err, "checking mount at %q", mountpoint)
	}
	if !mounted {
		return false, nil
	}

	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(mountpoint))
	if err != nil {
		return false, errors.Wrapf(err, "reading mount table for %q", mountpoint)
	}
	for _, m := range mounts {
		if m.FSType == "cgroup2" {
			return true, nil
		}
	}
	return false, nil
}

// Mount mounts the cgroup2 filesystem at mountpoint. It fails if something
// is already mounted there.
func Mount(mountpoint string) error {
	if mounted, err := mountinfo.Mounted(mountpoint); err != nil {
		return errors.Wrapf(err, "checking mount at %q", mountpoint)
	} else if mounted {
		return errors.Errorf("something is already mounted at %q", mountpoint)
	}

	if err := pathutil.EnsurePath(mountpoint, true); err != nil {
		return errors.Wrapf(err, "creating mountpoint %q", mountpoint)
	}

	if err := mobymount.Mount("cgroup2", mountpoint, "cgroup2", ""); err != nil {
		return errors.Wrapf(err, "mounting cgroup2 at %q", mountpoint)
	}
	return nil
}

// Unmount unmounts the cgroup2 filesystem from mountpoint. The caller is
// responsible for having destroyed every descendant cgroup first.
func Unmount(mountpoint string) error {
	children, err := ListChildren(mountpoint)
	if err != nil {
		return errors.Wrapf(err, "listing children of %q before unmount", mountpoint)
	}
	if len(children) > 0 {
		return errors.Errorf("refusing to unmount %q: %d child cgroup(s) remain", mountpoint, len(children))
	}

	if err := mobymount.Unmount(mountpoint); err != nil {
		return errors.Wrapf(err, "unmounting %q", mountpoint)
	}
	return nil
}

// Exists reports whether path is an existing cgroup directory.
func Exists(path string) bool {
	return pathutil.CheckDirExist(path)
}

// Create creates the cgroup directory at path. When recursive is true,
// missing ancestor directories are created as well.
func Create(path string, recursive bool) error {
	if recursive {
		return os.MkdirAll(path, 0755)
	}
	return os.Mkdir(path, 0755)
}

// Path returns the canonical on-disk path for a cgroup path (a hook for
// future mountpoint-relative indirection; currently the identity).
func Path(path string) string {
	return path
}

// ListChildren enumerates the direct sub-cgroups of path.
func ListChildren(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}

	var children []string
	for _, e := range entries {
		if e.IsDir() {
			children = append(children, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(children)
	return children, nil
}

// AllCgroups recursively enumerates every cgroup directory under root,
// root itself excluded.
func AllCgroups(root string) ([]string, error) {
	var all []string
	var walk func(string) error
	walk = func(dir string) error {
		children, err := ListChildren(dir)
		if err != nil {
			return err
		}
		for _, c := range children {
			all = append(all, c)
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	sort.Strings(all)
	return all, nil
}

// ControllersAvailable returns the controllers listed in path's
// cgroup.controllers file.
func ControllersAvailable(path string) ([]string, error) {
	return readTokenFile(filepath.Join(path, fileControllers))
}

// ControllersEnabled returns the controllers listed in path's
// cgroup.subtree_control file.
func ControllersEnabled(path string) ([]string, error) {
	tokens, err := readTokenFile(filepath.Join(path, fileSubtreeControl))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range tokens {
		out = append(out, strings.TrimPrefix(t, "+"))
	}
	return out, nil
}

// ControllersEnable enables names in path's cgroup.subtree_control. It is
// idempotent: names already enabled are re-written harmlessly.
func ControllersEnable(path string, names []string) error {
	available, err := ControllersAvailable(path)
	if err != nil {
		return err
	}
	availableSet := make(map[string]bool, len(available))
	for _, a := range available {
		availableSet[a] = true
	}

	for _, name := range names {
		if !availableSet[name] {
			return &InvalidControllerError{Name: name, Path: path, Why: "not listed in cgroup.controllers"}
		}
		if err := writeControlFile(filepath.Join(path, fileSubtreeControl), "+"+name); err != nil {
			return errors.Wrapf(err, "enabling %q in %q", name, path)
		}
	}
	return nil
}

// Procs returns the pids currently in path's cgroup.procs.
func Procs(path string) ([]uint64, error) {
	tokens, err := readTokenFile(filepath.Join(path, fileProcs))
	if err != nil {
		return nil, err
	}
	pids := make([]uint64, 0, len(tokens))
	for _, t := range tokens {
		pid, err := strconv.ParseUint(t, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing pid %q", t)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// Freeze writes "1" to path's cgroup.freeze, suspending all its processes.
func Freeze(path string) error {
	return writeControlFile(filepath.Join(path, fileFreeze), "1")
}

// Thaw writes "0" to path's cgroup.freeze, resuming its processes.
func Thaw(path string) error {
	return writeControlFile(filepath.Join(path, fileFreeze), "0")
}

// Destroy tears down the cgroup at path: freeze it, kill every pid in its
// subtree, wait with bounded backoff for cgroup.procs to drain, then rmdir
// bottom-up. It returns *DestroyFailedError if pids remain after the
// deadline. On any error return path it thaws the cgroup first, so a
// caller's retry never races a still-frozen cgroup.
func Destroy(path string) (err error) {
	if !Exists(path) {
		return nil
	}

	if ferr := Freeze(path); ferr != nil {
		log.Warnf("failed to freeze %q before destroy: %v", path, ferr)
	}
	defer func() {
		if err != nil {
			if terr := Thaw(path); terr != nil {
				log.Warnf("failed to thaw %q after failed destroy: %v", path, terr)
			}
		}
	}()

	if err = killAll(path); err != nil {
		return errors.Wrapf(err, "killing processes in %q", path)
	}

	remaining, err := drainProcs(path)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return &DestroyFailedError{Path: path, Remaining: remaining}
	}

	if err = removeBottomUp(path); err != nil {
		return errors.Wrapf(err, "removing %q", path)
	}
	return nil
}

func killAll(path string) error {
	cgroups, err := AllCgroups(path)
	if err != nil {
		return err
	}
	cgroups = append(cgroups, path)

	for _, cg := range cgroups {
		pids, err := Procs(cg)
		if err != nil {
			continue
		}
		for _, pid := range pids {
			if err := unix.Kill(int(pid), unix.SIGKILL); err != nil && err != unix.ESRCH {
				log.Warnf("failed to kill pid %d in %q: %v", pid, cg, err)
			}
		}
	}
	return nil
}

func drainProcs(path string) ([]uint64, error) {
	backoff := drainBackoffInitial
	var remaining []uint64
	for attempt := 0; attempt < drainAttempts; attempt++ {
		var total []uint64
		cgroups, err := AllCgroups(path)
		if err != nil {
			return nil, err
		}
		cgroups = append(cgroups, path)
		for _, cg := range cgroups {
			pids, err := Procs(cg)
			if err != nil {
				continue
			}
			total = append(total, pids...)
		}

		if len(total) == 0 {
			return nil, nil
		}
		remaining = total

		time.Sleep(backoff)
		backoff *= 2
		if backoff > drainBackoffMax {
			backoff = drainBackoffMax
		}
	}
	return remaining, nil
}

func removeBottomUp(path string) error {
	children, err := ListChildren(path)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := removeBottomUp(c); err != nil {
			return err
		}
	}
	return os.Remove(path)
}

func readTokenFile(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	return strings.Fields(string(content)), nil
}

func writeControlFile(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return errors.Wrapf(err, "writing %q to %q", value, path)
	}
	return nil
}

// MountedPath is a convenience combining Mounted with a fixed error message
// for the common "is cgroup2 mounted at the default location" question.
func MountedPath() (string, error) {
	mounted, err := Mounted(DefaultMountpoint)
	if err != nil {
		return "", err
	}
	if !mounted {
		return "", fmt.Errorf("cgroup2 is not mounted at %q", DefaultMountpoint)
	}
	return DefaultMountpoint, nil
}
