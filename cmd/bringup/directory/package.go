// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
)

// Package is an application package archive found on the local disk.
type Package struct {
	Path    string
	ModTime time.Time
	// Version is nil if the file name didn't contain a parsable version.
	Version *version.Version
}

// Name is the file name of the archive.
func (p *Package) Name() string {
	return filepath.Base(p.Path)
}

// UnpackedName is the directory the archive unpacks to.
func (p *Package) UnpackedName() string {
	return strings.TrimSuffix(p.Name(), ".tar.gz")
}

func (p *Package) String() string {
	if p.Version == nil {
		return p.Name()
	}
	return fmt.Sprintf("%s (version %s)", p.Name(), p.Version.Original())
}

// PackageNotFoundError is returned when no file matches the package pattern.
type PackageNotFoundError struct {
	Dir     string
	Pattern string
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("no application package in '%s'; the file name must match '%s'", e.Dir, e.Pattern)
}

var packageVersionRegexp = regexp.MustCompile(`\d+(\.\d+)+`)

// FindNewestPackage returns the most recently modified regular file in dir
// whose name matches pattern.
func FindNewestPackage(dir string, pattern string) (*Package, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid package pattern '%s': %w", pattern, err)
	}

	var newest *Package
	for _, m := range matches {
		stat, err := os.Stat(m)
		if err != nil || !stat.Mode().IsRegular() {
			continue
		}
		if newest == nil || stat.ModTime().After(newest.ModTime) {
			newest = &Package{Path: m, ModTime: stat.ModTime()}
		}
	}
	if newest == nil {
		return nil, &PackageNotFoundError{Dir: dir, Pattern: pattern}
	}

	if v := packageVersionRegexp.FindString(newest.Name()); v != "" {
		if parsed, err := version.NewVersion(v); err == nil {
			newest.Version = parsed
		}
	}
	return newest, nil
}
