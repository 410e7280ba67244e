// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wick2006/embedded-development/cmd/bringup/commands"
)

var (
	version   = "v0.3.0"
	buildDate = "unknown"
)

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	// Canceling the context closes open sessions and the serial port before
	// the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = commands.SetInfo(ctx, info)
	cmd := commands.BringupCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
