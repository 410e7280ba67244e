// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"
)

// copier is the part of the scp client used by Push.
type copier interface {
	CopyPassThru(ctx context.Context, r io.Reader, remotePath string, permission string, size int64, passThru scp.PassThru) error
}

func newSCP(client *ssh.Client) (copier, error) {
	c, err := scp.NewClientBySSH(client)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TransferError reports a failed file copy.
type TransferError struct {
	Local  string
	Remote string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("failed to copy '%s' to '%s': %v", e.Local, e.Remote, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Push copies the regular file local into remoteDir, keeping its name and
// permissions.
func (s *Session) Push(ctx context.Context, local string, remoteDir string) error {
	remotePath := path.Join(remoteDir, filepath.Base(local))
	cp := s.copier
	if cp == nil {
		return &TransferError{Local: local, Remote: remotePath, Err: errors.New("session is closed")}
	}

	f, err := os.Open(local)
	if err != nil {
		return &TransferError{Local: local, Remote: remotePath, Err: err}
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return &TransferError{Local: local, Remote: remotePath, Err: err}
	}
	if !stat.Mode().IsRegular() {
		return &TransferError{Local: local, Remote: remotePath, Err: errors.New("not a regular file")}
	}

	var r io.Reader = f
	if s.Progress != nil {
		var finish func()
		r, finish = s.Progress(filepath.Base(local), stat.Size(), f)
		defer finish()
	}

	perms := fmt.Sprintf("%#o", stat.Mode().Perm())
	s.logger.Debug("pushing file", "local", local, "remote", remotePath, "size", stat.Size(), "mode", perms)
	err = s.watch(ctx, func() error {
		return cp.CopyPassThru(ctx, r, remotePath, perms, stat.Size(), nil)
	})
	if err != nil {
		return &TransferError{Local: local, Remote: remotePath, Err: err}
	}
	return nil
}

// PushDir copies every regular file directly inside localDir to remoteDir.
// Subdirectories are skipped. It returns the number of files copied.
func (s *Session) PushDir(ctx context.Context, localDir string, remoteDir string) (int, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return 0, &TransferError{Local: localDir, Remote: remoteDir, Err: err}
	}

	count := 0
	for _, entry := range entries {
		local := filepath.Join(localDir, entry.Name())
		// Stat follows symlinks.
		stat, err := os.Stat(local)
		if err != nil || !stat.Mode().IsRegular() {
			s.logger.Debug("skipping entry", "path", local)
			continue
		}
		if err := s.Push(ctx, local, remoteDir); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
