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

// Command isolator is the agent-facing entrypoint for the cgroups v2
// container isolator: it wires configuration, the controller registry,
// and the engine together, then exposes the hook protocol as
// subcommands the launching agent invokes once per lifecycle event.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/secretflow/cgroups2-isolator/pkg/adapter"
	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2"
	"github.com/secretflow/cgroups2-isolator/pkg/cgroups2/controller"
	"github.com/secretflow/cgroups2-isolator/pkg/containerid"
	"github.com/secretflow/cgroups2-isolator/pkg/isolator"
	"github.com/secretflow/cgroups2-isolator/pkg/log"
	"github.com/secretflow/cgroups2-isolator/pkg/log/zlogwriter"
)

// noopDeviceManager is used when no device manager collaborator is wired
// in; it is only ever consulted by the devices controller, which is
// configured when --isolation names cgroups/devices or cgroups/all, or
// names no cgroups/ controller at all (every controller is then used). In
// that case Allowed always permitting everything is an explicit, visible
// default rather than a silent one.
type noopDeviceManager struct{}

func (noopDeviceManager) Allowed(cid string) ([]string, error) { return nil, nil }

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := pflag.NewFlagSet("isolator", pflag.ExitOnError)
	cfg := adapter.InstallPFlags(flags)
	logCfg := zlogwriter.InstallPFlags(flags)

	root := &cobra.Command{
		Use:           "isolator",
		Short:         "cgroups v2 container isolator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddFlagSet(flags)

	var a *adapter.Isolator
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		writer, err := zlogwriter.New(logCfg)
		if err != nil {
			return errors.Wrap(err, "constructing logger")
		}
		log.Setup(log.SetWriter(writer))

		built, err := buildIsolator(*cfg)
		if err != nil {
			return err
		}
		a = built
		return nil
	}

	root.AddCommand(
		newPrepareCommand(&a),
		newIsolateCommand(&a),
		newUpdateCommand(&a),
		newUsageCommand(&a),
		newStatusCommand(&a),
		newCleanupCommand(&a),
		newRecoverCommand(&a),
	)
	return root
}

func buildIsolator(cfg adapter.Config) (*adapter.Isolator, error) {
	if !cgroups2.Exists(cfg.CgroupsRoot) {
		return nil, errors.Errorf("cgroups_root %q does not exist", cfg.CgroupsRoot)
	}

	names, err := adapter.ControllerNames(cfg.Isolation, controller.Names, controller.Valid)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = controller.Names
	}

	reg := controller.NewRegistry()
	engine, err := isolator.New(isolator.Config{
		Root:            cfg.CgroupsRoot,
		ControllerNames: names,
		Registry:        reg,
		DeviceManager:   noopDeviceManager{},
	})
	if err != nil {
		return nil, err
	}

	if err := isolator.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Warnf("failed to register metrics: %v", err)
	}

	return adapter.New(engine), nil
}

func parseContainerID(s string) containerid.ID {
	id := containerid.New("")
	first := true
	cur := &id
	for _, part := range splitDot(s) {
		if first {
			*cur = containerid.New(part)
			first = false
			continue
		}
		*cur = cur.Child(part)
	}
	return *cur
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
