// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package provision sequences the provisioning stages of a device. Stages run
// strictly one after the other; the first failure ends the run.
package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wick2006/embedded-development/cmd/bringup/probe"
	"github.com/wick2006/embedded-development/cmd/bringup/remote"
	"github.com/wick2006/embedded-development/cmd/bringup/status"
	"go.uber.org/multierr"
)

// Remote is an open session to the device.
type Remote interface {
	Run(ctx context.Context, cmd remote.Command) (remote.Outcome, error)
	Push(ctx context.Context, local string, remoteDir string) error
	PushDir(ctx context.Context, localDir string, remoteDir string) (int, error)
	Close() error
}

// A Dialer establishes a new session.
type Dialer func(ctx context.Context) (Remote, error)

type Prober interface {
	WaitOnline(ctx context.Context, address string, timeout time.Duration, interval time.Duration) (bool, error)
}

// Kind tells the machine what to do after a stage.
type Kind int

const (
	Continue Kind = iota
	// Reboot reboots the device and closes the session. The next stage that
	// needs a session waits for the device and reconnects.
	Reboot
	Abort
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Reboot:
		return "reboot"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the outcome of one stage.
type Result struct {
	Kind    Kind
	Message string
	// Err is set for Abort.
	Err error
}

func Proceed(message string) Result {
	return Result{Kind: Continue, Message: message}
}

func RebootDevice(message string) Result {
	return Result{Kind: Reboot, Message: message}
}

func Fail(err error) Result {
	return Result{Kind: Abort, Err: err}
}

type Stage struct {
	Name string
	// Remote stages are given a connected session.
	Remote bool
	Run    func(ctx context.Context, m *Machine) Result
}

// StageError reports the stage that ended the run.
type StageError struct {
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Policy bounds the connectivity waits.
type Policy struct {
	// InitialTimeout is used for the first connection of a run.
	InitialTimeout time.Duration
	// ReconnectTimeout is used after a reboot.
	ReconnectTimeout time.Duration
	Interval         time.Duration
	// OfflineSettle is waited after a reboot before probing, so the device
	// isn't seen online while it is still shutting down.
	OfflineSettle time.Duration
}

type Machine struct {
	Address       string
	Policy        Policy
	RebootCommand string
	Dial          Dialer
	Prober        Prober
	Indicator     status.Indicator
	Out           io.Writer
	Logger        *slog.Logger

	session  Remote
	rebooted bool
}

// Session returns the open session. It is nil outside of remote stages.
func (m *Machine) Session() Remote {
	return m.session
}

// Run executes stages in order. Any open session is closed before Run
// returns.
func (m *Machine) Run(ctx context.Context, stages []Stage) (err error) {
	defer func() {
		err = multierr.Append(err, m.release())
	}()

	for i, stage := range stages {
		index := i + 1
		fmt.Fprintf(m.Out, "[%d/%d] %s\n", index, len(stages), stage.Name)
		m.Logger.Info("stage started", "stage", stage.Name, "index", index)
		start := time.Now()

		if stage.Remote && m.session == nil {
			if err := m.connect(ctx); err != nil {
				return &StageError{Stage: stage.Name, Index: index, Err: err}
			}
		}

		res := stage.Run(ctx, m)
		m.Logger.Info("stage finished", "stage", stage.Name, "result", res.Kind, "duration", time.Since(start))
		switch res.Kind {
		case Abort:
			return &StageError{Stage: stage.Name, Index: index, Err: res.Err}
		case Reboot:
			if res.Message != "" {
				status.Success(m.Out, "%s", res.Message)
			}
			if err := m.reboot(ctx); err != nil {
				return &StageError{Stage: stage.Name, Index: index, Err: err}
			}
		default:
			if res.Message != "" {
				status.Success(m.Out, "%s", res.Message)
			}
		}
	}
	return nil
}

func (m *Machine) connect(ctx context.Context) error {
	timeout := m.Policy.InitialTimeout
	if m.rebooted {
		timeout = m.Policy.ReconnectTimeout
		m.Logger.Debug("waiting for the device to go offline", "delay", m.Policy.OfflineSettle)
		if err := sleep(ctx, m.Policy.OfflineSettle); err != nil {
			return err
		}
	}

	err := status.Run(m.Indicator, fmt.Sprintf("Waiting for %s to come online", m.Address), func() error {
		online, err := m.Prober.WaitOnline(ctx, m.Address, timeout, m.Policy.Interval)
		if err != nil || online {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &probe.OfflineError{Address: m.Address, Timeout: timeout}
	})
	if err != nil {
		return err
	}

	var session Remote
	err = status.Run(m.Indicator, fmt.Sprintf("Connecting to %s", m.Address), func() error {
		var err error
		session, err = m.Dial(ctx)
		return err
	})
	if err != nil {
		return err
	}
	m.session = session
	m.rebooted = false
	return nil
}

// reboot issues the reboot command and drops the session. The command is
// always tolerated: the device may cut the connection before it answers.
func (m *Machine) reboot(ctx context.Context) error {
	if m.session == nil {
		if err := m.connect(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintln(m.Out, "Rebooting the device")
	outcome, err := m.session.Run(ctx, remote.Command{Line: m.RebootCommand, Tolerate: true})
	if err != nil {
		return fmt.Errorf("failed to reboot the device: %w", err)
	}
	m.Logger.Debug("reboot issued", "exit_status", outcome.ExitStatus)
	if err := m.release(); err != nil {
		m.Logger.Warn("failed to close the session", "error", err)
	}
	m.rebooted = true
	return nil
}

func (m *Machine) release() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
