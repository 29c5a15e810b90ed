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

// Package containerid defines the hierarchical container identity used
// across the isolator, and the reversible mapping between a ContainerID and
// its on-disk cgroup path.
package containerid

import (
	"context"
	"path/filepath"
	"strings"
)

// leafDir is the fixed name of the cgroup that holds a container's own
// processes; it is never itself a valid container path component.
const leafDir = "leaf"

// ID is a nestable container identity: a value plus an optional parent,
// mirroring the agent's own ContainerID type. Two IDs are equal when their
// full parent chains match.
type ID struct {
	Value  string
	Parent *ID
}

// New returns a top-level container id.
func New(value string) ID {
	return ID{Value: value}
}

// Child returns a nested container id whose parent is id.
func (id ID) Child(value string) ID {
	parent := id
	return ID{Value: value, Parent: &parent}
}

// HasParent reports whether id is nested.
func (id ID) HasParent() bool {
	return id.Parent != nil
}

// Equal reports whether id and other name the same container.
func (id ID) Equal(other ID) bool {
	if id.Value != other.Value {
		return false
	}
	switch {
	case id.Parent == nil && other.Parent == nil:
		return true
	case id.Parent == nil || other.Parent == nil:
		return false
	default:
		return id.Parent.Equal(*other.Parent)
	}
}

// components returns the chain of values from the oldest ancestor down to id.
func (id ID) components() []string {
	if id.Parent == nil {
		return []string{id.Value}
	}
	return append(id.Parent.components(), id.Value)
}

// String renders id as its dot-joined component chain, e.g. "p1.c1".
func (id ID) String() string {
	return strings.Join(id.components(), ".")
}

// NonLeafPath returns the on-disk path of id's non-leaf cgroup under root.
func NonLeafPath(root string, id ID) string {
	return filepath.Join(append([]string{root}, id.components()...)...)
}

// LeafPath returns the on-disk path of id's leaf cgroup under root.
func LeafPath(root string, id ID) string {
	return filepath.Join(NonLeafPath(root, id), leafDir)
}

// Decode recovers the ContainerID that a non-leaf cgroup path corresponds
// to, given the agent's cgroups root. It returns ok=false for root itself,
// for leaf directories (which are not themselves a distinct container id),
// and for any path that does not cleanly nest under root. The agent's own
// cgroup decodes like any other directory; callers skip it themselves.
func Decode(root, path string) (ID, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ID{}, false
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) == 0 {
		return ID{}, false
	}
	for _, p := range parts {
		if p == "" || p == leafDir {
			return ID{}, false
		}
	}

	id := New(parts[0])
	for _, p := range parts[1:] {
		id = id.Child(p)
	}
	return id, true
}

type contextKey struct{}

// WithContext stashes id on ctx for the logging formatter to pick up.
func WithContext(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext retrieves an ID previously stored with WithContext.
func FromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(contextKey{}).(ID)
	return id, ok
}
