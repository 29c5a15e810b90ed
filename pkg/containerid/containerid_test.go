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

package containerid

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathsRoundTrip(t *testing.T) {
	root := "/sys/fs/cgroup/mesos"

	top := New("c1")
	assert.Equal(t, filepath.Join(root, "c1"), NonLeafPath(root, top))
	assert.Equal(t, filepath.Join(root, "c1", "leaf"), LeafPath(root, top))

	nested := top.Child("p1")
	assert.Equal(t, filepath.Join(root, "c1", "p1"), NonLeafPath(root, nested))
	assert.Equal(t, "c1.p1", nested.String())

	decoded, ok := Decode(root, NonLeafPath(root, nested))
	require.True(t, ok)
	assert.True(t, decoded.Equal(nested))
}

func TestDecodeRejectsLeafRootAndOutsidePaths(t *testing.T) {
	root := "/sys/fs/cgroup/mesos"

	_, ok := Decode(root, filepath.Join(root, "c1", "leaf"))
	assert.False(t, ok, "leaf directories do not decode to a distinct container id")

	_, ok = Decode(root, filepath.Join(root, "agent"))
	assert.True(t, ok, "the literal 'agent' path decodes; callers must special-case it themselves")

	_, ok = Decode(root, root)
	assert.False(t, ok, "the root itself is not a container")

	_, ok = Decode(root, "/somewhere/else")
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	a := New("p").Child("c")
	b := New("p").Child("c")
	c := New("p").Child("other")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(New("p")))
}
