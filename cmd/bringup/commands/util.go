// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wick2006/embedded-development/cmd/bringup/config"
	"github.com/wick2006/embedded-development/cmd/bringup/console"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
	"github.com/wick2006/embedded-development/cmd/bringup/logging"
	"github.com/wick2006/embedded-development/cmd/bringup/probe"
	"github.com/wick2006/embedded-development/cmd/bringup/provision"
	"github.com/wick2006/embedded-development/cmd/bringup/remote"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
	"golang.org/x/term"
)

// flagKeys maps command line flags to the config keys they override. Flags
// are only registered on the commands that use them.
var flagKeys = map[string]string{
	"address":     "device.address",
	"ssh-port":    "device.ssh_port",
	"user":        "device.username",
	"password":    "device.password",
	"serial-port": "serial.port",
	"baud":        "serial.baud",
	"audio-dir":   "inputs.audio_patch_dir",
	"package-dir": "inputs.package_dir",
}

func addDeviceFlags(fs *pflag.FlagSet) {
	fs.StringP("address", "a", "", "address of the device (default "+config.DefaultAddress+")")
	fs.Int("ssh-port", 0, "SSH port of the device")
	fs.StringP("user", "u", "", "SSH user (default "+config.DefaultUsername+")")
	fs.String("password", "", "SSH password")
}

func addSerialFlags(fs *pflag.FlagSet) {
	fs.StringP("serial-port", "p", "", "serial port of the boot loader console")
	fs.Int("baud", 0, "baud rate of the serial console")
}

func addInputFlags(fs *pflag.FlagSet) {
	fs.String("audio-dir", "", "directory with the USB audio patch")
	fs.String("package-dir", "", "directory searched for the application package")
}

// loadViper reads the config file and binds the flags of cmd.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	v, err := directory.GetConfig(path)
	if err != nil {
		return nil, err
	}
	for flag, key := range flagKeys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// loadConfig returns the effective configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := loadViper(cmd)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

// ensurePassword asks for an empty SSH password when stdin is a terminal.
// Only commands that open a session call it.
func ensurePassword(cfg *config.Config) error {
	return askPassword(cfg, term.IsTerminal(int(os.Stdin.Fd())), ReadPassword)
}

func askPassword(cfg *config.Config, interactive bool, read func() ([]byte, error)) error {
	if cfg.Device.Password != "" || !interactive {
		return nil
	}
	fmt.Printf("Password for %s@%s: ", cfg.Device.Username, cfg.Device.Address)
	pw, err := read()
	if err != nil {
		return err
	}
	cfg.Device.Password = string(pw)
	return nil
}

func ReadPassword() ([]byte, error) {
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return pw, err
}

// newLogger creates the diagnostic logger. Every invocation gets a run id
// to tell interleaved logs apart.
func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return logging.New(logging.Level(verbose)).With("run", uuid.NewString())
}

func endpoint(cfg *config.Config) remote.Endpoint {
	return remote.Endpoint{
		Address:        cfg.Device.Address,
		Port:           cfg.Device.SSHPort,
		Username:       cfg.Device.Username,
		Password:       cfg.Device.Password,
		KnownHosts:     cfg.Device.KnownHosts,
		ConnectTimeout: cfg.Device.ConnectTimeout,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// dial opens a session. With progress set, pushed files show a progress bar
// on terminals.
func dial(ctx context.Context, cfg *config.Config, logger *slog.Logger, progress bool) (*remote.Session, error) {
	session, err := remote.Dial(ctx, endpoint(cfg), logger)
	if err != nil {
		return nil, err
	}
	if progress && isTerminal(os.Stdout) {
		session.Progress = func(name string, total int64, r io.Reader) (io.Reader, func()) {
			return status.Progress(os.Stdout, name, total, r)
		}
	}
	return session, nil
}

func dialer(cfg *config.Config, logger *slog.Logger) provision.Dialer {
	return func(ctx context.Context) (provision.Remote, error) {
		session, err := dial(ctx, cfg, logger, false)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

func newProber(cfg *config.Config, logger *slog.Logger) (*probe.Prober, error) {
	pinger, err := probe.New(cfg.Probe.Method, cfg.Probe.Privileged, cfg.Device.SSHPort)
	if err != nil {
		return nil, err
	}
	return &probe.Prober{
		Pinger:         pinger,
		Logger:         logger,
		AttemptTimeout: cfg.Probe.AttemptTimeout,
		Settle:         cfg.Probe.Settle,
	}, nil
}

// newConsoleDriver prints a dot for every poll without a prompt.
func newConsoleDriver(cfg *config.Config, logger *slog.Logger) *console.Driver {
	d := console.NewDriver(console.Options{
		Port:              cfg.Serial.Port,
		Baud:              cfg.Serial.Baud,
		ReadTimeout:       cfg.Serial.ReadTimeout,
		Window:            cfg.Bootloader.Window,
		KeepaliveInterval: cfg.Bootloader.KeepaliveInterval,
		Markers:           cfg.Bootloader.Markers,
		InterruptBurst:    cfg.Bootloader.InterruptBurst,
		InterruptSettle:   cfg.Bootloader.InterruptSettle,
		Commands:          cfg.Bootloader.Commands,
		CommandSettle:     cfg.Bootloader.CommandSettle,
	}, logger)
	d.OnPoll = func() {
		fmt.Print(".")
	}
	d.OnState = func(s console.State) {
		switch s {
		case console.PollingForPrompt:
			fmt.Printf("Waiting up to %s for the boot loader prompt on %s ", cfg.Bootloader.Window, cfg.Serial.Port)
		case console.Interrupted:
			fmt.Println()
			status.Success(os.Stdout, "Boot loader interrupted")
		case console.Failed:
			fmt.Println()
		}
	}
	return d
}

// explain prints the possible causes of a missing boot loader prompt.
func explain(err error) {
	var timeoutErr *console.PromptTimeoutError
	if !errors.As(err, &timeoutErr) {
		return
	}
	fmt.Println("Possible causes:")
	for _, h := range timeoutErr.Hypotheses() {
		fmt.Printf("  - %s\n", h)
	}
}

func confirmer(yes bool) provision.Confirmer {
	return func(ctx context.Context, message string) error {
		if yes {
			return nil
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("confirmation needs a terminal, use --yes to skip it")
		}
		prompt := promptui.Prompt{
			Label:     message,
			IsConfirm: true,
		}
		if _, err := prompt.Run(); err != nil {
			return errors.New("aborted by the operator")
		}
		return nil
	}
}
