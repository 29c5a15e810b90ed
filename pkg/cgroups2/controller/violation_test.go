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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryViolationFiresOnOOMKillIncrease(t *testing.T) {
	prev := map[string]int64{"oom_kill": 0, "max": 2}
	cur := map[string]int64{"oom_kill": 1, "max": 2}

	lim, hit := memoryViolation(prev, cur)
	assert.True(t, hit)
	assert.Equal(t, "memory", lim.Controller)
	assert.Equal(t, "memory", lim.Resource)
}

func TestMemoryViolationSilentWhenUnchanged(t *testing.T) {
	prev := map[string]int64{"oom_kill": 1, "max": 2}
	cur := map[string]int64{"oom_kill": 1, "max": 2}

	_, hit := memoryViolation(prev, cur)
	assert.False(t, hit)
}

func TestPidsViolationFiresOnMaxIncrease(t *testing.T) {
	prev := map[string]int64{"max": 0}
	cur := map[string]int64{"max": 1}

	lim, hit := pidsViolation(prev, cur)
	assert.True(t, hit)
	assert.Equal(t, "pids", lim.Controller)
}

func TestPidsViolationSilentWhenUnchanged(t *testing.T) {
	prev := map[string]int64{"max": 3}
	cur := map[string]int64{"max": 3}

	_, hit := pidsViolation(prev, cur)
	assert.False(t, hit)
}
