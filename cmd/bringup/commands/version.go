// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func VersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the version of bringup",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			info := GetInfo(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Version:\t%s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Build date:\t%s\n", info.Date)
			fmt.Fprintf(cmd.OutOrStdout(), "Platform:\t%s/%s (%s)\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
	return cmd
}
