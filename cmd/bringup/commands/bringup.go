// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
)

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

func GetInfo(ctx context.Context) Info {
	info, _ := ctx.Value(ctxKeyInfo).(Info)
	return info
}

func BringupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bringup",
		Short: "Provision SS528 based devices",
		Long: "Bringup provisions a freshly imaged SS528 based device.\n\n" +
			"It installs the USB audio patch and the application package over SSH, rebooting\n" +
			"and reconnecting in between, writes the boot logo, and finally rewrites the boot\n" +
			"loader environment over the serial console.",
	}

	cmd.PersistentFlags().String("config", "", "config file (default is $"+directory.ConfigPathEnv+" or ~/.config/bringup/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log diagnostics to stderr")

	cmd.AddCommand(
		DeployCmd(),
		WaitCmd(),
		ExecCmd(),
		PushCmd(),
		UbootCmd(),
		PortCmd(),
		ConfigCmd(),
		VersionCmd(),
	)
	return cmd
}
