// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
)

func UbootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uboot",
		Short: "Rewrite the boot loader environment over the serial console",
		Long: `Rewrite the boot loader environment over the serial console.

Start the command, then power cycle or reboot the device. Bringup interrupts
the autoboot countdown and sends the configured boot loader commands.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			driver := newConsoleDriver(cfg, newLogger(cmd))
			if err := driver.Check(); err != nil {
				return err
			}
			if err := driver.Run(cmd.Context()); err != nil {
				explain(err)
				return err
			}
			status.Success(os.Stdout, "Boot loader configured")
			return nil
		},
	}

	addSerialFlags(cmd.Flags())
	return cmd
}
