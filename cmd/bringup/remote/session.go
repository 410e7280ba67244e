// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package remote holds the authenticated connection to the device and the
// command executor and file transfer client that share it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
)

// ErrConnect marks failures to establish a Session.
var ErrConnect = errors.New("failed to connect to the device")

// Endpoint is the network side of the device.
type Endpoint struct {
	Address  string
	Port     int
	Username string
	Password string
	// KnownHosts is an OpenSSH known_hosts file. If empty, host keys are not
	// verified; freshly imaged devices generate a new key on first boot.
	KnownHosts     string
	ConnectTimeout time.Duration
}

func (e Endpoint) hostPort() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// A Session is one live SSH connection. It is never reused after the device
// rebooted; dial a new one instead.
type Session struct {
	client   *ssh.Client
	copier   copier
	logger   *slog.Logger
	endpoint string

	// Progress, if set, wraps the reader of every pushed file.
	Progress ProgressFunc
}

// ProgressFunc wraps r, which yields total bytes of the file name. The
// returned function is called when the transfer ended.
type ProgressFunc func(name string, total int64, r io.Reader) (io.Reader, func())

// Dial connects and authenticates with the password. Keyboard-interactive
// prompts are answered with the password as well, since several embedded
// SSH daemons only offer that method.
func Dial(ctx context.Context, ep Endpoint, logger *slog.Logger) (*Session, error) {
	addr := ep.hostPort()
	config := &ssh.ClientConfig{
		User: ep.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(ep.Password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = ep.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         ep.ConnectTimeout,
	}
	if ep.KnownHosts != "" {
		kh, err := knownhosts.New(ep.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts '%s': %w", ep.KnownHosts, err)
		}
		config.HostKeyCallback = kh.HostKeyCallback()
		config.HostKeyAlgorithms = kh.HostKeyAlgorithms(addr)
	}

	dialer := net.Dialer{Timeout: ep.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrConnect, addr, err)
	}
	if ep.ConnectTimeout > 0 {
		conn.SetDeadline(time.Now().Add(ep.ConnectTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w at %s: %w", ErrConnect, addr, err)
	}
	conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	cp, err := newSCP(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w at %s: %w", ErrConnect, addr, err)
	}
	logger.Debug("session established", "endpoint", addr, "server", string(c.ServerVersion()))
	return &Session{
		client:   client,
		copier:   cp,
		logger:   logger,
		endpoint: addr,
	}, nil
}

// Close is safe to call several times. A connection that was already torn
// down by the device is not an error.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.copier = nil
	s.logger.Debug("session closed", "endpoint", s.endpoint)
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to close the session to %s: %w", s.endpoint, err)
	}
	return nil
}
