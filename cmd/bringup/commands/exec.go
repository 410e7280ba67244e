// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/remote"
)

func ExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <command>",
		Short: "Run a shell command on the device",
		Long: `Run a shell command on the device and print its output.

The arguments are joined with spaces and run by the remote shell. The exit
status of 'bringup exec' is non-zero if the command failed.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := ensurePassword(cfg); err != nil {
				return err
			}
			logger := newLogger(cmd)

			ctx := cmd.Context()
			session, err := dial(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer session.Close()

			outcome, err := session.Run(ctx, remote.Command{Line: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, outcome.Stdout)
			fmt.Fprint(os.Stderr, outcome.Stderr)
			if !outcome.OK() {
				return &remote.CommandError{Outcome: outcome}
			}
			return nil
		},
	}

	addDeviceFlags(cmd.Flags())
	return cmd
}
