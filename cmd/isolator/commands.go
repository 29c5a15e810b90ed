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

package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/secretflow/cgroups2-isolator/pkg/adapter"
	"github.com/secretflow/cgroups2-isolator/pkg/isolator"
)

// Each subcommand below is a one-shot invocation of a single hook method:
// the launching agent execs this binary once per lifecycle event rather
// than holding a long-lived RPC connection open, so isolator here carries
// no state across invocations beyond what Recover reconstructs from the
// cgroup tree itself.

func newPrepareCommand(a **adapter.Isolator) *cobra.Command {
	var parent string
	var shareCgroups bool
	var shareCgroupsSet bool
	var rootfsPresent bool
	var isCommandTask bool
	var taskUser, containerUser string
	var cpuShares uint64
	var pidsMax int64

	cmd := &cobra.Command{
		Use:   "prepare <container-id>",
		Short: "prepare a container's cgroup before its process is launched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := adapter.PrepareRequest{
				ID:            parseContainerID(args[0]),
				RootfsPresent: rootfsPresent,
				IsCommandTask: isCommandTask,
				TaskUser:      taskUser,
				ContainerUser: containerUser,
			}
			if parent != "" {
				id := parseContainerID(parent)
				req.Parent = &id
			}
			if shareCgroupsSet {
				req.ShareCgroups = &shareCgroups
			}
			if cpuShares > 0 {
				req.Limits.CPUShares = &cpuShares
			}
			if pidsMax > 0 {
				req.Limits.PidsMax = &pidsMax
			}

			launch, err := (*a).Prepare(cmd.Context(), req)
			if err != nil {
				return err
			}
			raw, err := adapter.MarshalLaunchArgument(launch)
			if err != nil {
				return errors.Wrap(err, "marshalling launch directive")
			}
			if raw == nil {
				return nil
			}
			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&parent, "parent", "", "parent container id, dot-separated")
	flags.BoolVar(&shareCgroups, "share_cgroups", false, "share the parent's cgroup instead of creating a new one")
	flags.BoolVar(&rootfsPresent, "rootfs", false, "the container has its own rootfs and needs a bind-mounted /sys/fs/cgroup")
	flags.BoolVar(&isCommandTask, "command_task", false, "the container is a command task launched via an outer executor re-exec")
	flags.StringVar(&taskUser, "task_user", "", "user to chown the leaf to for a command task")
	flags.StringVar(&containerUser, "container_user", "", "user to chown the leaf to for a non-command-task container")
	flags.Uint64Var(&cpuShares, "cpu_shares", 0, "cpu.weight-equivalent shares, 0 means unset")
	flags.Int64Var(&pidsMax, "pids_max", 0, "pids.max, 0 means unset")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		shareCgroupsSet = cmd.Flags().Changed("share_cgroups")
	}
	return cmd
}

func newIsolateCommand(a **adapter.Isolator) *cobra.Command {
	return &cobra.Command{
		Use:   "isolate <container-id> <pid>",
		Short: "run controller post-launch work for a container whose process the launcher placed in its leaf",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return errors.Wrap(err, "parsing pid")
			}
			return (*a).Isolate(cmd.Context(), parseContainerID(args[0]), pid)
		},
	}
}

func newUpdateCommand(a **adapter.Isolator) *cobra.Command {
	var cpuShares uint64
	var pidsMax int64

	cmd := &cobra.Command{
		Use:   "update <container-id>",
		Short: "re-apply a container's resource limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var limits isolator.Request
			if cpuShares > 0 {
				limits.CPUShares = &cpuShares
			}
			if pidsMax > 0 {
				limits.PidsMax = &pidsMax
			}
			return (*a).Update(cmd.Context(), parseContainerID(args[0]), limits)
		},
	}
	cmd.Flags().Uint64Var(&cpuShares, "cpu_shares", 0, "cpu.weight-equivalent shares, 0 means unset")
	cmd.Flags().Int64Var(&pidsMax, "pids_max", 0, "pids.max, 0 means unset")
	return cmd
}

func newUsageCommand(a **adapter.Isolator) *cobra.Command {
	return &cobra.Command{
		Use:   "usage <container-id>",
		Short: "print the container's merged resource usage snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := (*a).Usage(cmd.Context(), parseContainerID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(usage)
		},
	}
}

func newStatusCommand(a **adapter.Isolator) *cobra.Command {
	return &cobra.Command{
		Use:   "status <container-id>",
		Short: "print the container's merged per-controller status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := (*a).Status(cmd.Context(), parseContainerID(args[0]))
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func newCleanupCommand(a **adapter.Isolator) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <container-id>",
		Short: "tear down a container's cgroup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).Cleanup(cmd.Context(), parseContainerID(args[0]))
		},
	}
}

func newRecoverCommand(a **adapter.Isolator) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "replay checkpointed containers and sweep orphaned cgroups at startup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*a).Recover(cmd.Context(), isolator.RecoverInput{})
		},
	}
}
