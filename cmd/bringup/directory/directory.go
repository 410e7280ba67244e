// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigPathEnv if set, will load the config from that path.
	ConfigPathEnv = "BRINGUP_CONFIG_PATH"
	// EnvPrefix is the prefix of environment variables overriding config
	// keys, e.g. BRINGUP_DEVICE_ADDRESS for 'device.address'.
	EnvPrefix = "BRINGUP"

	// AudioPatchDirName is the directory holding the USB audio patch, next to
	// the directory of the executable.
	AudioPatchDirName = "ss528v100增加USB音频"
)

func GetConfigPath() (string, error) {
	if path, ok := os.LookupEnv(ConfigPathEnv); ok {
		return path, nil
	}

	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".config", "bringup", "config.yaml"), nil
}

// GetConfig loads the config file at path (or the default location if path
// is empty) with environment overrides enabled. A missing file is not an
// error.
func GetConfig(path string) (*viper.Viper, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg := viper.New()
	cfg.SetConfigType("yaml")
	cfg.SetConfigFile(path)
	cfg.SetEnvPrefix(EnvPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	if _, err := os.Stat(path); err == nil {
		if err := cfg.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config '%s': %w", path, err)
		}
	}
	return cfg, nil
}

func WriteConfig(cfg *viper.Viper) error {
	file := cfg.ConfigFileUsed()
	dir := filepath.Dir(file)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpFile := filepath.Join(dir, ".config.tmp.yaml")
	if err := cfg.WriteConfigAs(tmpFile); err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	return os.Rename(tmpFile, file)
}

// GetResourceDir returns the directory the provisioning inputs are stored
// in: the parent of the directory holding the executable.
func GetResourceDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	return filepath.Dir(filepath.Dir(execPath)), nil
}

// GetAudioPatchDir returns configured if set, otherwise the default audio
// patch directory in the resource directory.
func GetAudioPatchDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	resourceDir, err := GetResourceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(resourceDir, AudioPatchDirName), nil
}

// GetPackageDir returns configured if set, otherwise the resource directory.
func GetPackageDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return GetResourceDir()
}
