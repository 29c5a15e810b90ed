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

func newBareEngine() *Engine {
	return &Engine{
		infos:       make(map[string]*Info),
		controllers: make(map[string]controller.Controller),
	}
}

func TestCgroupInfoFindsOwningAncestor(t *testing.T) {
	e := newBareEngine()
	p1 := containerid.New("p1")
	e.infos[p1.String()] = newInfo(p1, "/root/p1", "/root/p1/leaf", true, nil)

	nested := p1.Child("c1") // share_cgroups=true: no Info of its own
	info, ok := e.cgroupInfo(nested)
	assert.True(t, ok)
	assert.True(t, info.ID.Equal(p1))
}

func TestCgroupInfoMissingReturnsFalse(t *testing.T) {
	e := newBareEngine()
	_, ok := e.cgroupInfo(containerid.New("ghost"))
	assert.False(t, ok)
}

func TestRelPathTopLevel(t *testing.T) {
	parts, err := relPath("/root", "/root/c1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"c1"}, parts)
}

func TestRelPathNested(t *testing.T) {
	parts, err := relPath("/root", "/root/p1/c1")
	assert.NoError(t, err)
	assert.Equal(t, []string{"p1", "c1"}, parts)
}
