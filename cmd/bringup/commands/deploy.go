// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
	"github.com/wick2006/embedded-development/cmd/bringup/provision"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
)

func DeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision a freshly imaged device",
		Long: `Provision a freshly imaged device.

The device is first waited for on the network. Then:
  1. the USB audio patch is copied and installed, and the device rebooted,
  2. the newest application package is copied and installed, and the device
     rebooted,
  3. the boot logo is written,
  4. after your confirmation the device is rebooted a last time and the boot
     loader environment is rewritten over the serial console.

Every stage runs once. If a stage fails, fix the cause and run 'bringup deploy'
again from the start.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, err := cmd.Flags().GetBool("yes")
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd)

			audioDir, err := directory.GetAudioPatchDir(cfg.Inputs.AudioPatchDir)
			if err != nil {
				return err
			}
			packageDir, err := directory.GetPackageDir(cfg.Inputs.PackageDir)
			if err != nil {
				return err
			}
			prober, err := newProber(cfg, logger)
			if err != nil {
				return err
			}
			bootLoader := newConsoleDriver(cfg, logger)
			if err := bootLoader.Check(); err != nil {
				return err
			}
			if err := ensurePassword(cfg); err != nil {
				return err
			}

			machine := &provision.Machine{
				Address: cfg.Device.Address,
				Policy: provision.Policy{
					InitialTimeout:   cfg.Probe.Timeout,
					ReconnectTimeout: cfg.Probe.ReconnectTimeout,
					Interval:         cfg.Probe.Interval,
					OfflineSettle:    cfg.Probe.OfflineSettle,
				},
				RebootCommand: cfg.Stages.Reboot,
				Dial:          dialer(cfg, logger),
				Prober:        prober,
				Indicator:     status.New(os.Stdout),
				Out:           os.Stdout,
				Logger:        logger,
			}
			plan := &provision.Plan{
				ScratchDir:    cfg.Remote.ScratchDir,
				AudioPatchDir: audioDir,
				LocatePackage: func() (*directory.Package, error) {
					return directory.FindNewestPackage(packageDir, cfg.Inputs.PackagePattern)
				},
				Audio:      cfg.Stages.Audio,
				App:        cfg.Stages.App,
				Logo:       cfg.Stages.Logo,
				Confirm:    confirmer(yes),
				BootLoader: bootLoader,
			}

			fmt.Printf("Provisioning %s (serial console on %s)\n", cfg.Device.Address, cfg.Serial.Port)
			start := time.Now()
			if err := machine.Run(cmd.Context(), plan.Stages()); err != nil {
				explain(err)
				return err
			}
			status.Success(os.Stdout, "Device provisioned in %s", time.Since(start).Round(time.Second))
			return nil
		},
	}

	addDeviceFlags(cmd.Flags())
	addSerialFlags(cmd.Flags())
	addInputFlags(cmd.Flags())
	cmd.Flags().BoolP("yes", "y", false, "don't ask for confirmation before configuring the boot loader")
	return cmd
}
