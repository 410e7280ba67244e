// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/config"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
	"gopkg.in/yaml.v2"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure bringup",
		Long: `Configure the bringup command line tool.

Settings are read from the config file, then from BRINGUP_* environment
variables (BRINGUP_DEVICE_ADDRESS for 'device.address'), and finally from
command line flags.`,
	}

	cmd.AddCommand(
		ConfigShowCmd(),
		ConfigInitCmd(),
		ConfigSetCmd(),
	)
	return cmd
}

func ConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "show",
		Short:        "Print the effective configuration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			settings := v.AllSettings()
			if device, ok := settings["device"].(map[string]interface{}); ok {
				device["password"] = cfg.Redacted().Device.Password
			}
			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			if file := v.ConfigFileUsed(); file != "" {
				fmt.Printf("# %s\n", file)
			}
			fmt.Print(string(out))
			return nil
		},
	}
	return cmd
}

func ConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "init",
		Short:        "Write a config file with the default settings",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			file := v.ConfigFileUsed()
			if _, err := os.Stat(file); err == nil && !force {
				return fmt.Errorf("'%s' already exists, use --force to overwrite it", file)
			}
			config.SetDefaults(v)
			if err := directory.WriteConfig(v); err != nil {
				return err
			}
			fmt.Printf("Wrote the default configuration to '%s'\n", file)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func ConfigSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set <key> <value>",
		Short:        "Change a single setting, e.g. 'bringup config set device.address 10.0.0.2'",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			v.Set(args[0], args[1])
			if _, err := config.Load(v); err != nil {
				return err
			}
			if err := directory.WriteConfig(v); err != nil {
				return err
			}
			fmt.Printf("Set '%s' in '%s'\n", args[0], v.ConfigFileUsed())
			return nil
		},
	}
	return cmd
}
