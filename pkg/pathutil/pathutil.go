// Copyright 2023 Ant Group Co., Ltd.
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

// Package pathutil holds the small filesystem helpers the cgroup2 facade
// needs for directory existence checks and creation.
package pathutil

import (
	"fmt"
	"os"
)

const defaultDirMode = 0755

// CheckDirExist reports whether path exists and is a directory.
func CheckDirExist(path string) bool {
	src, err := os.Stat(path)
	if err != nil {
		return false
	}
	return src.Mode().IsDir()
}

// EnsurePath checks that path exists, optionally creating it (and its
// parents) as a directory when it does not.
func EnsurePath(path string, autoCreate bool) error {
	_, err := os.Stat(path)
	if autoCreate && os.IsNotExist(err) {
		return os.MkdirAll(path, defaultDirMode)
	}
	return err
}

// RemoveIfExist removes path (recursively) if present; a no-op otherwise.
func RemoveIfExist(path string) error {
	if _, err := os.Lstat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check %q: %w", path, err)
	}
	return nil
}
