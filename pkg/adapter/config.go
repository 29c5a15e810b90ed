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

// Package adapter translates between the isolator engine's contract and
// the agent's isolator hook protocol: prepare/isolate/watch/update/usage
// /status/cleanup/recover, plus the supports_nesting/supports_standalone
// capability probes and the flag-driven controller set.
package adapter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const allControllersToken = "cgroups/all"

// Config is the set of flags the agent passes to this isolator, named the
// way the agent's own flag vocabulary names them (§6, "Configuration flags
// consumed").
type Config struct {
	CgroupsRoot string
	Isolation   []string
	SwitchUser  string
}

// InstallPFlags registers this isolator's flags on flagset and returns the
// Config they populate, mirroring zlogwriter.InstallPFlags's shape.
func InstallPFlags(flagset *pflag.FlagSet) *Config {
	cfg := &Config{}
	flagset.StringVar(&cfg.CgroupsRoot, "cgroups_root", "/sys/fs/cgroup/mesos", "path prefix of the agent's cgroup v2 hierarchy; must already exist")
	flagset.StringSliceVar(&cfg.Isolation, "isolation", nil, "comma-separated isolator tokens; cgroups/<controller> or cgroups/all")
	flagset.StringVar(&cfg.SwitchUser, "switch_user", "", "user to run containers as when no container-specific user is given")
	return cfg
}

// ControllerNames resolves the --isolation flag into the closed set of
// controller names to construct, per §6: tokens starting with "cgroups/"
// name a controller, or the literal "cgroups/all" enables every one. An
// unrecognized "cgroups/<x>" token is a fatal configuration error.
func ControllerNames(isolation []string, allNames []string, valid func(string) bool) ([]string, error) {
	var requested []string
	for _, token := range isolation {
		if !strings.HasPrefix(token, "cgroups/") {
			continue
		}
		if token == allControllersToken {
			return append([]string(nil), allNames...), nil
		}
		name := strings.TrimPrefix(token, "cgroups/")
		if !valid(name) {
			return nil, errors.Errorf("unknown cgroups controller %q in --isolation", name)
		}
		requested = append(requested, name)
	}
	return requested, nil
}
