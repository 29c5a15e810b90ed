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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinReturnsNilForNoFailures(t *testing.T) {
	assert.NoError(t, Join(nil))
}

func TestJoinCombinesControllerNames(t *testing.T) {
	err := Join([]ControllerFailure{
		{Controller: "memory", Err: errors.New("boom")},
		{Controller: "cpu", Err: errors.New("kaboom")},
	})
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "memory:"))
	assert.True(t, strings.Contains(err.Error(), "cpu:"))
}

func TestFilesystemErrorUnwraps(t *testing.T) {
	cause := errors.New("enoent")
	err := &FilesystemError{Op: "create", Path: "/x", Err: cause}
	assert.ErrorIs(t, err, cause)
}
