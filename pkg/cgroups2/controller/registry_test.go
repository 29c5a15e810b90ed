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
	"github.com/stretchr/testify/require"
)

type fakeDeviceManager struct{}

func (fakeDeviceManager) Allowed(cid string) ([]string, error) { return nil, nil }

func TestRegistryCreatesEveryClosedSetName(t *testing.T) {
	r := NewRegistry()
	for _, name := range Names {
		c, err := r.Create(name, fakeDeviceManager{})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestRegistryRejectsUnknownName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("bogus", nil)
	assert.Error(t, err)
}

func TestDevicesRequiresDeviceManager(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("devices", nil)
	assert.Error(t, err)
}

func TestForbiddenSetMatchesSpec(t *testing.T) {
	assert.True(t, Forbidden["core"])
	assert.True(t, Forbidden["perf_event"])
	assert.True(t, Forbidden["devices"])
	assert.False(t, Forbidden["cpu"])
	assert.False(t, Forbidden["memory"])
}

func TestValidRejectsUnknown(t *testing.T) {
	assert.True(t, Valid("cpuset"))
	assert.False(t, Valid("bogus"))
}
