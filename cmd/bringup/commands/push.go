// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
)

func PushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <path>...",
		Short: "Copy files to the device",
		Long: `Copy files to the device.

Directories are copied without their subdirectories. The files end up in
the scratch directory of the config unless --dest is given.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := cmd.Flags().GetString("dest")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := ensurePassword(cfg); err != nil {
				return err
			}
			if dest == "" {
				dest = cfg.Remote.ScratchDir
			}

			ctx := cmd.Context()
			session, err := dial(ctx, cfg, newLogger(cmd), true)
			if err != nil {
				return err
			}
			defer session.Close()

			for _, path := range args {
				stat, err := os.Stat(path)
				if err != nil {
					return err
				}
				fmt.Printf("Copying %s to %s\n", path, dest)
				if !stat.IsDir() {
					if err := session.Push(ctx, path, dest); err != nil {
						return err
					}
					continue
				}
				count, err := session.PushDir(ctx, path, dest)
				if err != nil {
					return err
				}
				if count == 0 {
					status.Warn(os.Stdout, "%s contains no files", path)
				}
			}
			status.Success(os.Stdout, "Copied %d path(s) to %s", len(args), dest)
			return nil
		},
	}

	addDeviceFlags(cmd.Flags())
	cmd.Flags().StringP("dest", "d", "", "remote directory")
	return cmd
}
