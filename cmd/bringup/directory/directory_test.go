// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPattern = "install_dt-*-ss528v100-Linux.tar.gz"

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestFindNewestPackage(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(dir, "install_dt-01.02.03.0004-ss528v100-Linux.tar.gz"), base)
	touch(t, filepath.Join(dir, "install_dt-01.02.03.0010-ss528v100-Linux.tar.gz"), base.Add(time.Minute))
	touch(t, filepath.Join(dir, "install_dt-09.00.00.0000-ss528v100-Linux.tar.gz"), base.Add(-time.Minute))
	touch(t, filepath.Join(dir, "unrelated.tar.gz"), base.Add(2*time.Minute))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "install_dt-dir-ss528v100-Linux.tar.gz"), 0755))

	pkg, err := FindNewestPackage(dir, testPattern)
	require.NoError(t, err)
	assert.Equal(t, "install_dt-01.02.03.0010-ss528v100-Linux.tar.gz", pkg.Name())
	assert.Equal(t, "install_dt-01.02.03.0010-ss528v100-Linux", pkg.UnpackedName())
	require.NotNil(t, pkg.Version)
	assert.Equal(t, []int{1, 2, 3, 10}, pkg.Version.Segments())
	assert.Contains(t, pkg.String(), "version 01.02.03.0010")
}

func TestFindNewestPackageWithoutVersion(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "install_dt-beta-ss528v100-Linux.tar.gz"), time.Now())

	pkg, err := FindNewestPackage(dir, testPattern)
	require.NoError(t, err)
	assert.Nil(t, pkg.Version)
	assert.Equal(t, "install_dt-beta-ss528v100-Linux.tar.gz", pkg.String())
}

func TestFindNewestPackageMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FindNewestPackage(dir, testPattern)
	require.Error(t, err)
	var notFound *PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, dir, notFound.Dir)
	assert.Contains(t, err.Error(), testPattern)
}

func TestGetConfigFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  address: 10.1.1.1\n"), 0644))
	t.Setenv(ConfigPathEnv, path)
	t.Setenv("BRINGUP_SERIAL_PORT", "/dev/ttyACM0")

	cfg, err := GetConfig("")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", cfg.GetString("device.address"))
	assert.Equal(t, "/dev/ttyACM0", cfg.GetString("serial.port"))
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := GetConfig(path)
	require.NoError(t, err)
	cfg.Set("serial.port", "/dev/ttyUSB3")
	require.NoError(t, WriteConfig(cfg))

	reread, err := GetConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", reread.GetString("serial.port"))
	_, err = os.Stat(filepath.Join(filepath.Dir(path), ".config.tmp.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestGetAudioPatchDir(t *testing.T) {
	dir, err := GetAudioPatchDir("/opt/patch")
	require.NoError(t, err)
	assert.Equal(t, "/opt/patch", dir)

	dir, err = GetAudioPatchDir("")
	require.NoError(t, err)
	assert.Equal(t, AudioPatchDirName, filepath.Base(dir))
}
