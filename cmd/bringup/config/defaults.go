// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultAddress        = "192.168.1.2"
	DefaultSSHPort        = 22
	DefaultUsername       = "root"
	DefaultPassword       = "root"
	DefaultScratchDir     = "/dev/shm"
	DefaultBaud           = 115200
	DefaultPackagePattern = "install_dt-*-ss528v100-Linux.tar.gz"
)

// DefaultSerialPort is the port the USB-serial adapter usually shows up as.
func DefaultSerialPort() string {
	switch runtime.GOOS {
	case "windows":
		return "COM9"
	case "darwin":
		return "/dev/cu.usbserial-0001"
	default:
		return "/dev/ttyUSB0"
	}
}

// Defaults is the configuration used when no file, environment variable or
// flag overrides a value.
func Defaults() Config {
	return Config{
		Device: Device{
			Address:        DefaultAddress,
			SSHPort:        DefaultSSHPort,
			Username:       DefaultUsername,
			Password:       DefaultPassword,
			ConnectTimeout: 10 * time.Second,
		},
		Serial: Serial{
			Port:        DefaultSerialPort(),
			Baud:        DefaultBaud,
			ReadTimeout: 100 * time.Millisecond,
		},
		Probe: Probe{
			Method:           "icmp",
			Timeout:          300 * time.Second,
			ReconnectTimeout: 120 * time.Second,
			Interval:         2 * time.Second,
			AttemptTimeout:   time.Second,
			Settle:           5 * time.Second,
			OfflineSettle:    10 * time.Second,
		},
		Remote: Remote{
			ScratchDir: DefaultScratchDir,
		},
		Inputs: Inputs{
			PackagePattern: DefaultPackagePattern,
		},
		// No bare "#" marker: the Linux root shell still answers keepalives
		// while the device shuts down.
		Bootloader: Bootloader{
			Window:            60 * time.Second,
			KeepaliveInterval: 500 * time.Millisecond,
			Markers:           []string{"stop autoboot", "hisilicon #", "=>"},
			InterruptBurst:    4,
			InterruptSettle:   500 * time.Millisecond,
			CommandSettle:     time.Second,
			Commands: []string{
				`setenv bootcmd "setvobg 0 0; run run_logo; run update_script;"`,
				"saveenv",
				"reset",
			},
		},
		Stages: Stages{
			Reboot: "reboot",
			Audio: []Command{
				{Run: "cd {{.ScratchDir}} && chmod +x ./fip.bin.sh"},
				{Run: "cd {{.ScratchDir}} && ./fip.bin.sh"},
				{Run: "mount -o remount,rw /"},
				{Run: "cd {{.ScratchDir}} && tar -xzvf alsa-lib_utils.tar.gz"},
				{Run: "cd {{.ScratchDir}} && cp -f alsa-utils-1.2.9/bin/* /usr/bin/"},
				{Run: "mkdir -p /root/hi626/lib-36a/_install/"},
				{Run: "cd {{.ScratchDir}} && cp -rf alsa-lib-1.2.9/ /root/hi626/lib-36a/_install/"},
				// The group survives re-provisioning.
				{Run: "addgroup audio", Tolerate: true},
			},
			App: []Command{
				{Run: "ls -l {{.RemotePackage}}", Verbose: true},
				{Run: "cd {{.ScratchDir}} && tar -xzvf {{.Package}}", Verbose: true},
				{Run: "cd {{.RemotePackageDir}} && chmod +x ./install.sh", Verbose: true},
				{Run: "cd {{.RemotePackageDir}} && ./install.sh", Verbose: true},
			},
			Logo: Logo{
				Source:    "/app/dt/cfg/bootlogo-hg.jpg",
				Staging:   "/recovery/bootlogo.jpg",
				Device:    "/dev/mmcblk0p4",
				BlockSize: 1024,
				Commands: []Command{
					{Run: "cp {{.LogoSource}} {{.LogoStaging}}"},
					{Run: "dd if={{.LogoStaging}} of={{.LogoDevice}} bs={{.BlockSize}}"},
				},
			},
		},
	}
}

// SetDefaults registers every default with v, so that written config files
// and 'config show' contain the complete set of keys. Durations are stored
// as strings to keep written files readable.
func SetDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("device.address", d.Device.Address)
	v.SetDefault("device.ssh_port", d.Device.SSHPort)
	v.SetDefault("device.username", d.Device.Username)
	v.SetDefault("device.password", d.Device.Password)
	v.SetDefault("device.known_hosts", d.Device.KnownHosts)
	v.SetDefault("device.connect_timeout", d.Device.ConnectTimeout.String())

	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud", d.Serial.Baud)
	v.SetDefault("serial.read_timeout", d.Serial.ReadTimeout.String())

	v.SetDefault("probe.method", d.Probe.Method)
	v.SetDefault("probe.privileged", d.Probe.Privileged)
	v.SetDefault("probe.timeout", d.Probe.Timeout.String())
	v.SetDefault("probe.reconnect_timeout", d.Probe.ReconnectTimeout.String())
	v.SetDefault("probe.interval", d.Probe.Interval.String())
	v.SetDefault("probe.attempt_timeout", d.Probe.AttemptTimeout.String())
	v.SetDefault("probe.settle", d.Probe.Settle.String())
	v.SetDefault("probe.offline_settle", d.Probe.OfflineSettle.String())

	v.SetDefault("remote.scratch_dir", d.Remote.ScratchDir)

	v.SetDefault("inputs.audio_patch_dir", d.Inputs.AudioPatchDir)
	v.SetDefault("inputs.package_dir", d.Inputs.PackageDir)
	v.SetDefault("inputs.package_pattern", d.Inputs.PackagePattern)

	v.SetDefault("bootloader.window", d.Bootloader.Window.String())
	v.SetDefault("bootloader.keepalive_interval", d.Bootloader.KeepaliveInterval.String())
	v.SetDefault("bootloader.markers", d.Bootloader.Markers)
	v.SetDefault("bootloader.interrupt_burst", d.Bootloader.InterruptBurst)
	v.SetDefault("bootloader.interrupt_settle", d.Bootloader.InterruptSettle.String())
	v.SetDefault("bootloader.command_settle", d.Bootloader.CommandSettle.String())
	v.SetDefault("bootloader.commands", d.Bootloader.Commands)

	v.SetDefault("stages.reboot", d.Stages.Reboot)
	v.SetDefault("stages.audio", commandMaps(d.Stages.Audio))
	v.SetDefault("stages.app", commandMaps(d.Stages.App))
	v.SetDefault("stages.logo.source", d.Stages.Logo.Source)
	v.SetDefault("stages.logo.staging", d.Stages.Logo.Staging)
	v.SetDefault("stages.logo.device", d.Stages.Logo.Device)
	v.SetDefault("stages.logo.block_size", d.Stages.Logo.BlockSize)
	v.SetDefault("stages.logo.commands", commandMaps(d.Stages.Logo.Commands))
}

// commandMaps converts commands to the generic form viper stores, which is
// also what a YAML config file decodes to.
func commandMaps(cmds []Command) []map[string]interface{} {
	res := make([]map[string]interface{}, 0, len(cmds))
	for _, c := range cmds {
		m := map[string]interface{}{"run": c.Run}
		if c.Tolerate {
			m["tolerate"] = true
		}
		if c.Verbose {
			m["verbose"] = true
		}
		res = append(res, m)
	}
	return res
}
