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

import "github.com/pkg/errors"

// DeviceManager is the out-of-tree collaborator (§6, "device/BPF manager")
// the devices controller defers all enforcement decisions to; the isolator
// never constructs allow/deny rules itself.
type DeviceManager interface {
	// Allowed returns the device-access rule program for a container,
	// expressed as raw eBPF/cgroup-device rule strings. The devices
	// controller calls it in Prepare only to surface a resolution error; it
	// neither interprets nor writes the returned rules.
	Allowed(cid string) ([]string, error)
}

// Names lists the closed set of controller names the registry accepts.
var Names = []string{"core", "cpu", "memory", "io", "pids", "cpuset", "hugetlb", "perf_event", "devices"}

// simpleFactory builds controllers that need nothing beyond construction
// flags (everything but devices).
type simpleFactory func() Controller

// deviceFactory builds the devices controller, which additionally needs a
// handle to the external device manager.
type deviceFactory func(DeviceManager) Controller

// Registry is the engine-startup, name-keyed dispatch table described in
// the design notes: a small map from controller name to its constructor,
// built once and never mutated after.
type Registry struct {
	simple  map[string]simpleFactory
	devices deviceFactory
}

// NewRegistry builds the registry. The device manager is supplied later, per
// Create call; it may be nil when the "devices" controller is not created.
func NewRegistry() *Registry {
	return &Registry{
		simple: map[string]simpleFactory{
			"core":       func() Controller { return newCoreController() },
			"cpu":        func() Controller { return newCPUController() },
			"memory":     func() Controller { return newMemoryController() },
			"io":         func() Controller { return newIOController() },
			"pids":       func() Controller { return newPidsController() },
			"cpuset":     func() Controller { return newCPUSetController() },
			"hugetlb":    func() Controller { return newHugetlbController() },
			"perf_event": func() Controller { return newPerfEventController() },
		},
		devices: func(dm DeviceManager) Controller { return newDevicesController(dm) },
	}
}

// Create constructs the named controller. The devices controller requires
// a non-nil DeviceManager; every other name ignores it.
func (r *Registry) Create(name string, dm DeviceManager) (Controller, error) {
	if name == "devices" {
		if dm == nil {
			return nil, errors.New("devices controller requires a device manager")
		}
		return r.devices(dm), nil
	}
	factory, ok := r.simple[name]
	if !ok {
		return nil, errors.Errorf("unknown controller %q", name)
	}
	return factory(), nil
}

// Valid reports whether name is one of the closed set of controller names.
func Valid(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}
