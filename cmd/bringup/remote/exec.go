// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Command is one shell command line. Every command gets its own remote
// shell, so state like the working directory must be set up within Line.
type Command struct {
	Line string
	// Tolerate accepts a non-zero exit status and a connection dropped before
	// the exit status arrived. Reboot commands are always tolerated.
	Tolerate bool
	// Verbose commands have their outcome shown to the operator.
	Verbose bool
}

// Outcome is the result of one command.
type Outcome struct {
	Command string
	// ExitStatus is -1 if the command ended without reporting one.
	ExitStatus int
	Stdout     string
	Stderr     string
	// Tolerated is set when a failure was accepted because of
	// Command.Tolerate.
	Tolerated bool
}

// OK reports whether the calling stage may continue.
func (o Outcome) OK() bool {
	return o.ExitStatus == 0 || o.Tolerated
}

// CommandError reports a command that ended with a non-zero exit status.
type CommandError struct {
	Outcome Outcome
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command '%s' failed with exit status %d", e.Outcome.Command, e.Outcome.ExitStatus)
	if stderr := strings.TrimSpace(e.Outcome.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Run executes cmd in a new channel and waits for it to finish. A non-zero
// exit status is not an error; check Outcome.OK. Errors are returned for
// transport failures, unless cmd is tolerated, and when ctx is done. A done
// ctx closes the whole Session.
func (s *Session) Run(ctx context.Context, cmd Command) (Outcome, error) {
	outcome := Outcome{Command: cmd.Line, ExitStatus: -1}
	client := s.client
	if client == nil {
		return outcome, errors.New("session is closed")
	}

	var stdout, stderr bytes.Buffer
	var opened bool
	s.logger.Debug("running command", "command", cmd.Line)
	runErr := s.watch(ctx, func() error {
		sess, err := client.NewSession()
		if err != nil {
			return err
		}
		defer sess.Close()
		opened = true
		sess.Stdout = &stdout
		sess.Stderr = &stderr
		return sess.Run(cmd.Line)
	})
	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		return outcome, runErr
	}
	if !opened {
		return outcome, fmt.Errorf("failed to open a channel for '%s': %w", cmd.Line, runErr)
	}

	outcome, err := classify(cmd, runErr, stdout.String(), stderr.String())
	s.logger.Debug("command finished",
		"command", cmd.Line,
		"exit_status", outcome.ExitStatus,
		"tolerated", outcome.Tolerated,
		"stdout", Truncate(outcome.Stdout, 200),
		"stderr", outcome.Stderr)
	return outcome, err
}

// watch runs fn and tears down the connection if ctx is done first. fn must
// not touch the Session fields, which Close resets.
func (s *Session) watch(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.logger.Debug("interrupted, dropping the connection", "endpoint", s.endpoint)
		s.Close()
		<-done
		return ctx.Err()
	}
}

type exitStatuser interface {
	ExitStatus() int
}

func classify(cmd Command, runErr error, stdout string, stderr string) (Outcome, error) {
	outcome := Outcome{
		Command: cmd.Line,
		Stdout:  stdout,
		Stderr:  stderr,
	}
	var exitErr exitStatuser
	switch {
	case runErr == nil:
		outcome.ExitStatus = 0
	case errors.As(runErr, &exitErr):
		outcome.ExitStatus = exitErr.ExitStatus()
		outcome.Tolerated = cmd.Tolerate
	default:
		outcome.ExitStatus = -1
		if !cmd.Tolerate {
			return outcome, fmt.Errorf("command '%s' did not complete: %w", cmd.Line, runErr)
		}
		outcome.Tolerated = true
	}
	return outcome, nil
}

// Truncate shortens s to at most n characters, marking the cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
