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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
)

// TestDeliverIsSingleShot asserts P9: at most one Limitation is ever
// delivered, even when multiple controllers race to report one.
func TestDeliverIsSingleShot(t *testing.T) {
	info := newInfo(containerid.New("c1"), "/root/c1", "/root/c1/leaf", true, nil)

	info.deliver(controller.Limitation{Controller: "memory", Resource: "memory", Message: "oom"})
	info.deliver(controller.Limitation{Controller: "pids", Resource: "pids", Message: "max"})

	got := <-info.promiseCh
	assert.Equal(t, "memory", got.Controller)

	select {
	case v := <-info.promiseCh:
		t.Fatalf("a second value must never be queued, got %+v", v)
	default:
	}
}

func TestResolvedUserCommandTaskRequiresTaskUser(t *testing.T) {
	cfg := ContainerConfig{RootfsPresent: true, IsCommandTask: true}
	_, ok := cfg.resolvedUser()
	assert.False(t, ok)

	cfg.TaskUser = "nobody"
	user, ok := cfg.resolvedUser()
	assert.True(t, ok)
	assert.Equal(t, "nobody", user)
}

func TestResolvedUserNonCommandTaskUsesContainerUser(t *testing.T) {
	cfg := ContainerConfig{RootfsPresent: true, ContainerUser: "appuser"}
	user, ok := cfg.resolvedUser()
	assert.True(t, ok)
	assert.Equal(t, "appuser", user)
}

func TestResolvedUserNoRootfsNeverChowns(t *testing.T) {
	cfg := ContainerConfig{ContainerUser: "appuser"}
	_, ok := cfg.resolvedUser()
	assert.False(t, ok)
}
