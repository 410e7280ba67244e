// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package config holds the typed configuration of a provisioning run: the
// device endpoint, the probing policy, the boot loader protocol and the
// command lists executed by each stage.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Device     Device     `mapstructure:"device" yaml:"device"`
	Serial     Serial     `mapstructure:"serial" yaml:"serial"`
	Probe      Probe      `mapstructure:"probe" yaml:"probe"`
	Remote     Remote     `mapstructure:"remote" yaml:"remote"`
	Inputs     Inputs     `mapstructure:"inputs" yaml:"inputs"`
	Bootloader Bootloader `mapstructure:"bootloader" yaml:"bootloader"`
	Stages     Stages     `mapstructure:"stages" yaml:"stages"`
}

// Device is the network side of the device endpoint.
type Device struct {
	Address        string        `mapstructure:"address" yaml:"address" validate:"required,hostname|ip"`
	SSHPort        int           `mapstructure:"ssh_port" yaml:"ssh_port" validate:"min=1,max=65535"`
	Username       string        `mapstructure:"username" yaml:"username" validate:"required"`
	Password       string        `mapstructure:"password" yaml:"password"`
	KnownHosts     string        `mapstructure:"known_hosts" yaml:"known_hosts"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" validate:"gt=0"`
}

// Serial is the serial side of the device endpoint.
type Serial struct {
	Port        string        `mapstructure:"port" yaml:"port" validate:"required"`
	Baud        int           `mapstructure:"baud" yaml:"baud" validate:"gt=0"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
}

type Probe struct {
	// Method is either "icmp" or "tcp" (dial the SSH port).
	Method           string        `mapstructure:"method" yaml:"method" validate:"oneof=icmp tcp"`
	Privileged       bool          `mapstructure:"privileged" yaml:"privileged"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout" yaml:"reconnect_timeout" validate:"gt=0"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout" validate:"gt=0"`
	Settle           time.Duration `mapstructure:"settle" yaml:"settle" validate:"gte=0"`
	OfflineSettle    time.Duration `mapstructure:"offline_settle" yaml:"offline_settle" validate:"gte=0"`
}

type Remote struct {
	ScratchDir string `mapstructure:"scratch_dir" yaml:"scratch_dir" validate:"required,startswith=/"`
}

// Inputs locates the local files pushed to the device.
type Inputs struct {
	AudioPatchDir  string `mapstructure:"audio_patch_dir" yaml:"audio_patch_dir"`
	PackageDir     string `mapstructure:"package_dir" yaml:"package_dir"`
	PackagePattern string `mapstructure:"package_pattern" yaml:"package_pattern" validate:"required"`
}

// Bootloader configures the serial interrupt protocol. Markers and commands
// differ between device revisions, so neither is hard-coded.
type Bootloader struct {
	Window            time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval" validate:"gt=0"`
	Markers           []string      `mapstructure:"markers" yaml:"markers" validate:"min=1,dive,required"`
	InterruptBurst    int           `mapstructure:"interrupt_burst" yaml:"interrupt_burst" validate:"min=1"`
	InterruptSettle   time.Duration `mapstructure:"interrupt_settle" yaml:"interrupt_settle" validate:"gte=0"`
	CommandSettle     time.Duration `mapstructure:"command_settle" yaml:"command_settle" validate:"gte=0"`
	Commands          []string      `mapstructure:"commands" yaml:"commands" validate:"min=1,dive,required"`
}

// Command is one remote shell command of a stage. Run is a text/template
// rendered with shell-quoted values before execution.
type Command struct {
	Run      string `mapstructure:"run" yaml:"run" validate:"required"`
	Tolerate bool   `mapstructure:"tolerate" yaml:"tolerate,omitempty"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
}

type Stages struct {
	Reboot string    `mapstructure:"reboot" yaml:"reboot" validate:"required"`
	Audio  []Command `mapstructure:"audio" yaml:"audio" validate:"min=1,dive"`
	App    []Command `mapstructure:"app" yaml:"app" validate:"min=1,dive"`
	Logo   Logo      `mapstructure:"logo" yaml:"logo"`
}

type Logo struct {
	Source    string    `mapstructure:"source" yaml:"source" validate:"required"`
	Staging   string    `mapstructure:"staging" yaml:"staging" validate:"required"`
	Device    string    `mapstructure:"device" yaml:"device" validate:"required"`
	BlockSize int       `mapstructure:"block_size" yaml:"block_size" validate:"gt=0"`
	Commands  []Command `mapstructure:"commands" yaml:"commands" validate:"min=1,dive"`
}

// Load decodes the settings of v on top of the defaults and validates the
// result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	var msgs []string
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s' (got '%v')", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (got '%v')", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Device.Password != "" {
		maskedLength := len(c.Device.Password)
		if maskedLength > 8 {
			maskedLength = 8
		}
		c.Device.Password = strings.Repeat("*", maskedLength)
	}
	return c
}
