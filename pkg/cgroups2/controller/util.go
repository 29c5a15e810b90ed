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
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/containerd/cgroups/v3/cgroup2"
	"github.com/pkg/errors"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
)

// loadManager opens the containerd/cgroups/v3 handle for an existing
// non-leaf cgroup directory. Every controller that needs Update/Stat
// semantics goes through this rather than re-implementing control-file I/O,
// mirroring how the facade's single-cgroup operations are delegated.
func loadManager(path string) (*cgroup2.Manager, error) {
	group := relGroup(path)
	m, err := cgroup2.Load(group)
	if err != nil {
		return nil, errors.Wrapf(err, "loading cgroup2 manager for %q", path)
	}
	return m, nil
}

// relGroup converts an absolute cgroup path into the mountpoint-relative
// group name containerd/cgroups/v3 expects.
func relGroup(path string) string {
	rel := strings.TrimPrefix(path, cgroups2.DefaultMountpoint)
	if rel == "" {
		return "/"
	}
	return rel
}

func readIntFile(path string) (int64, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(content))
	if s == "max" {
		return -1, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

func controlFile(dir, name string) string {
	return filepath.Join(dir, name)
}

func u64ptr(v uint64) *uint64 { return &v }
func i64ptr(v int64) *int64   { return &v }

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }

func readFileString(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func parseInt(s string, out *int64) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	*out = v
	return v, nil
}
