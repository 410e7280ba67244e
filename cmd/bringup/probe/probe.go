// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package probe polls the network reachability of a device.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

const (
	MethodICMP = "icmp"
	MethodTCP  = "tcp"
)

// A Pinger sends a single probe and reports whether the device answered
// before the context expired. An unreachable device is not an error; errors
// are reserved for local failures that make probing impossible.
type Pinger interface {
	Ping(ctx context.Context, address string) (bool, error)
}

// SetupError reports that no probe could be sent at all. Retrying does not
// help.
type SetupError struct {
	Method string
	Err    error
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("cannot send %s probes: %v", e.Method, e.Err)
	if e.Method == MethodICMP {
		msg += " (set probe.privileged, allow the group in net.ipv4.ping_group_range, or use probe.method tcp)"
	}
	return msg
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ICMP sends one echo request.
type ICMP struct {
	// Privileged uses raw sockets instead of unprivileged datagram sockets.
	// On Linux the latter need net.ipv4.ping_group_range to include the user.
	Privileged bool
}

func (p ICMP) Ping(ctx context.Context, address string) (bool, error) {
	// Resolution fails for names the device only announces once it's up.
	pinger, err := probing.NewPinger(address)
	if err != nil {
		return false, nil
	}
	pinger.Count = 1
	pinger.Timeout = time.Second
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}
	if pinger.Timeout <= 0 {
		return false, nil
	}
	pinger.SetPrivileged(p.Privileged)
	if err := pinger.Run(); err != nil {
		if isSetupError(err) {
			return false, &SetupError{Method: MethodICMP, Err: err}
		}
		return false, nil
	}
	return pinger.Statistics().PacketsRecv > 0, nil
}

// isSetupError reports whether err came from opening the socket rather than
// from sending on it.
func isSetupError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "listen" {
		return true
	}
	return errors.Is(err, os.ErrPermission)
}

// TCP treats an accepted connection on Port as a successful probe. It is
// useful where ICMP is filtered or raw sockets aren't available.
type TCP struct {
	Port int
}

func (p TCP) Ping(ctx context.Context, address string) (bool, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(p.Port)))
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}

// New returns the pinger for the configured probe method.
func New(method string, privileged bool, port int) (Pinger, error) {
	switch method {
	case MethodICMP:
		return ICMP{Privileged: privileged}, nil
	case MethodTCP:
		return TCP{Port: port}, nil
	}
	return nil, fmt.Errorf("unknown probe method '%s'", method)
}

// OfflineError is returned by callers when WaitOnline gave up.
type OfflineError struct {
	Address string
	Timeout time.Duration
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("device at %s did not come online within %s", e.Address, e.Timeout)
}

type Prober struct {
	Pinger Pinger
	Logger *slog.Logger
	// AttemptTimeout bounds a single probe.
	AttemptTimeout time.Duration
	// Settle is slept after the first successful probe, giving the SSH
	// daemon time to start.
	Settle time.Duration
	// OnAttempt, if set, is called after every failed probe.
	OnAttempt func()
}

// WaitOnline probes address every interval until a probe succeeds or timeout
// has passed. It returns false on timeout or when ctx is done. An unreachable
// device is not an error; a *SetupError from the Pinger is returned at once.
func (p *Prober) WaitOnline(ctx context.Context, address string, timeout time.Duration, interval time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		online, err := p.ping(ctx, address, deadline)
		if err != nil {
			p.Logger.Warn("probing failed", "address", address, "error", err)
			return false, err
		}
		if online {
			p.Logger.Debug("device online", "address", address, "attempts", attempt)
			return sleep(ctx, p.Settle), nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt()
		}

		now := time.Now()
		if !now.Before(deadline) {
			p.Logger.Debug("device offline", "address", address, "attempts", attempt, "timeout", timeout)
			return false, nil
		}
		wait := interval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if !sleep(ctx, wait) {
			return false, nil
		}
	}
}

func (p *Prober) ping(ctx context.Context, address string, deadline time.Time) (bool, error) {
	attemptDeadline := time.Now().Add(p.AttemptTimeout)
	if deadline.Before(attemptDeadline) {
		attemptDeadline = deadline
	}
	ctx, cancel := context.WithDeadline(ctx, attemptDeadline)
	defer cancel()
	return p.Pinger.Ping(ctx, address)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
