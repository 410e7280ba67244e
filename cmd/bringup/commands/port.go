// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/console"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
)

func PortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "port",
		Short:        "List the serial ports of this machine",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			ports, err := listPorts(all)
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports detected. Is the USB-serial adapter plugged in?")
				return nil
			}
			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			configured := v.GetString("serial.port")
			for _, p := range ports {
				marker := " "
				if p.Name == configured {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, p)
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	cmd.AddCommand(SetPortCmd())
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "set",
		Short:        "Select the serial port of the boot loader console",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			port, err := pickPort(all)
			if err != nil {
				return err
			}

			v, err := loadViper(cmd)
			if err != nil {
				return err
			}
			v.Set("serial.port", port)
			if err := directory.WriteConfig(v); err != nil {
				return err
			}
			fmt.Printf("Serial port set to '%s'\n", port)
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

func listPorts(all bool) ([]console.PortInfo, error) {
	ports, err := console.ListPorts()
	if err != nil {
		return nil, err
	}
	if !all {
		ports = console.FilterPorts(ports)
	}
	return ports, nil
}

func pickPort(all bool) (string, error) {
	ports, err := listPorts(all)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports detected. Is the USB-serial adapter plugged in?")
	}

	prompt := promptui.Select{
		Label:     "Choose the serial port of the device console",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i].Name, nil
}
