// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/probe"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
)

func WaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "wait",
		Short:        "Wait until the device is reachable on the network",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = cfg.Probe.Timeout
			}
			prober, err := newProber(cfg, newLogger(cmd))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return status.Run(status.New(os.Stdout), fmt.Sprintf("Waiting for %s to come online", cfg.Device.Address), func() error {
				online, err := prober.WaitOnline(ctx, cfg.Device.Address, timeout, cfg.Probe.Interval)
				if err != nil || online {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return &probe.OfflineError{Address: cfg.Device.Address, Timeout: timeout}
			})
		},
	}

	addDeviceFlags(cmd.Flags())
	cmd.Flags().DurationP("timeout", "t", 0, "how long to wait (default is probe.timeout of the config)")
	return cmd
}
