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

package log

// Config describes the on-disk/rotation behavior of the zap-backed writer.
type Config struct {
	Level string
	Path  string

	// MaxFileSizeMB is the maximum size in megabytes of the log file before
	// it gets rotated.
	MaxFileSizeMB int

	// MaxFiles is the maximum number of old log files to retain.
	MaxFiles int
}
