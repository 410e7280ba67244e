// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wick2006/embedded-development/cmd/bringup/config"
	"github.com/wick2006/embedded-development/cmd/bringup/console"
	"github.com/wick2006/embedded-development/cmd/bringup/directory"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := BringupCmd()
	root.SetArgs(args)
	root.SetOut(&discard{})
	root.SetErr(&discard{})
	return root.ExecuteContext(SetInfo(context.Background(), Info{Version: "test", Date: "today"}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  address: 10.1.1.1
  username: operator
  password: secret
serial:
  port: /dev/ttyUSB3
`), 0644))
	t.Setenv("BRINGUP_DEVICE_USERNAME", "admin")

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().Bool("verbose", false, "")
	addDeviceFlags(cmd.Flags())
	addSerialFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--address", "10.9.9.9", "--baud", "9600"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "10.9.9.9", cfg.Device.Address)
	assert.Equal(t, "admin", cfg.Device.Username)
	assert.Equal(t, "secret", cfg.Device.Password)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, 22, cfg.Device.SSHPort)
	assert.Equal(t, 120*time.Second, cfg.Probe.ReconnectTimeout)

	ep := endpoint(cfg)
	assert.Equal(t, "10.9.9.9", ep.Address)
	assert.Equal(t, 22, ep.Port)
}

func TestConfigInitAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bringup", "config.yaml")
	t.Setenv(directory.ConfigPathEnv, path)

	require.NoError(t, execute(t, "config", "init"))
	v, err := directory.GetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.2", v.GetString("device.address"))
	assert.Equal(t, "5m0s", v.GetString("probe.timeout"))

	assert.Error(t, execute(t, "config", "init"))
	require.NoError(t, execute(t, "config", "init", "--force"))

	require.NoError(t, execute(t, "config", "set", "device.address", "10.0.0.9"))
	v, err = directory.GetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", v.GetString("device.address"))

	assert.Error(t, execute(t, "config", "set", "probe.method", "arp"))
	require.NoError(t, execute(t, "config", "show"))
}

func TestConfirmer(t *testing.T) {
	assert.NoError(t, confirmer(true)(context.Background(), "continue?"))
}

func TestNewProber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("probe:\n  method: tcp\n  settle: 1s\n"), 0644))
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", path, "")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	prober, err := newProber(cfg, newLogger(cmd))
	require.NoError(t, err)
	assert.Equal(t, time.Second, prober.Settle)
	assert.Equal(t, time.Second, prober.AttemptTimeout)
}

func TestAskPassword(t *testing.T) {
	cfg := &config.Config{}
	cfg.Device.Username = "root"
	cfg.Device.Address = "192.168.1.2"

	asked := 0
	read := func() ([]byte, error) {
		asked++
		return []byte("hunter2"), nil
	}
	require.NoError(t, askPassword(cfg, false, read))
	assert.Equal(t, 0, asked)
	assert.Empty(t, cfg.Device.Password)

	require.NoError(t, askPassword(cfg, true, read))
	assert.Equal(t, 1, asked)
	assert.Equal(t, "hunter2", cfg.Device.Password)

	require.NoError(t, askPassword(cfg, true, read))
	assert.Equal(t, 1, asked)
}

func TestVersion(t *testing.T) {
	root := BringupCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.ExecuteContext(SetInfo(context.Background(), Info{Version: "v1.2.3", Date: "2026-10-18"})))
	assert.Contains(t, out.String(), "Version:\tv1.2.3\n")
	assert.Contains(t, out.String(), "Build date:\t2026-10-18\n")

	assert.Equal(t, Info{}, GetInfo(context.Background()))
}

func TestUbootMissingPort(t *testing.T) {
	t.Setenv(directory.ConfigPathEnv, filepath.Join(t.TempDir(), "config.yaml"))
	missing := filepath.Join(t.TempDir(), "ttyUSB9")

	err := execute(t, "uboot", "--serial-port", missing)
	var openErr *console.OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, missing, openErr.Port)
}
