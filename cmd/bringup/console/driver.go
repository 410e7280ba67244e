// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

// Package console drives the boot loader over the serial line: it stops the
// autoboot countdown and sends configuration commands before the device
// continues booting.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding/unicode"
)

type State int

const (
	WaitingForPort State = iota
	PollingForPrompt
	Interrupted
	SendingCommands
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case WaitingForPort:
		return "WAITING_FOR_PORT"
	case PollingForPrompt:
		return "POLLING_FOR_PROMPT"
	case Interrupted:
		return "INTERRUPTED"
	case SendingCommands:
		return "SENDING_COMMANDS"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transcriptSize bounds the serial input kept for marker matching.
const transcriptSize = 4096

type Options struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration

	// Window is how long to wait for a boot loader prompt.
	Window time.Duration
	// KeepaliveInterval is the cadence of the newlines sent while waiting.
	KeepaliveInterval time.Duration
	// Markers are matched case-insensitively against the serial input.
	Markers []string
	// InterruptBurst is the number of newlines sent once a marker was seen.
	InterruptBurst  int
	InterruptSettle time.Duration

	Commands      []string
	CommandSettle time.Duration
}

// OpenError is returned when the serial port could not be opened.
type OpenError struct {
	Port string
	Err  error
	// Available lists the ports present when opening failed.
	Available []PortInfo
}

func (e *OpenError) Error() string {
	msg := fmt.Sprintf("failed to open serial port '%s': %v", e.Port, e.Err)
	if len(e.Available) == 0 {
		return msg + "; no serial ports detected"
	}
	names := make([]string, len(e.Available))
	for i, p := range e.Available {
		names[i] = p.String()
	}
	return msg + "; available ports: " + strings.Join(names, ", ")
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// PromptTimeoutError is returned when no marker was seen within the window.
// Both causes look the same from this side of the line.
type PromptTimeoutError struct {
	Port   string
	Window time.Duration
	// Received is the number of bytes read during the window.
	Received int
}

func (e *PromptTimeoutError) Hypotheses() []string {
	return []string{
		"TX and RX of the serial adapter are swapped or not connected",
		"the boot loader did not pause for input (autoboot delay is zero or the device wasn't rebooted)",
	}
}

func (e *PromptTimeoutError) Error() string {
	h := e.Hypotheses()
	return fmt.Sprintf("no boot loader prompt on '%s' within %s (%d bytes received); either %s, or %s",
		e.Port, e.Window, e.Received, h[0], h[1])
}

// Driver runs the boot loader interrupt protocol once.
type Driver struct {
	Options
	Open      Opener
	ListPorts func() ([]PortInfo, error)
	Logger    *slog.Logger
	// OnState is called for every state transition.
	OnState func(State)
	// OnPoll is called after every poll that didn't find a marker.
	OnPoll func()

	state State
}

func NewDriver(opts Options, logger *slog.Logger) *Driver {
	return &Driver{
		Options:   opts,
		Open:      OpenSerial,
		ListPorts: ListPorts,
		Logger:    logger,
	}
}

func (d *Driver) State() State {
	return d.state
}

func (d *Driver) transition(s State) {
	d.Logger.Debug("serial console state", "from", d.state, "to", s)
	d.state = s
	if d.OnState != nil {
		d.OnState(s)
	}
}

// ErrPortMissing is reported by Check when the port isn't attached.
var ErrPortMissing = errors.New("port is not attached")

// Check verifies that the configured port is attached, so a missing adapter
// is noticed before the device is touched. A port list that can't be read
// passes the check; Run reports the real error later.
func (d *Driver) Check() error {
	if d.ListPorts == nil {
		return nil
	}
	ports, err := d.ListPorts()
	if err != nil {
		d.Logger.Warn("failed to list serial ports", "error", err)
		return nil
	}
	if PortExists(ports, d.Port) {
		return nil
	}
	return &OpenError{Port: d.Port, Err: ErrPortMissing, Available: ports}
}

// Run opens the port, waits for a prompt, interrupts the boot loader and
// sends the commands. The port is closed before Run returns. Nothing
// confirms that the device accepted the commands.
func (d *Driver) Run(ctx context.Context) (err error) {
	d.transition(WaitingForPort)

	port, err := d.Open(d.Port, d.Baud)
	if err != nil {
		d.transition(Failed)
		return d.openError(err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = multierr.Append(err, fmt.Errorf("serial console on '%s' failed: %v", d.Port, r))
		}
		if closeErr := port.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close '%s': %w", d.Port, closeErr))
		}
		if err != nil {
			d.transition(Failed)
		} else {
			d.transition(Done)
		}
	}()

	if err := port.SetReadTimeout(d.ReadTimeout); err != nil {
		return fmt.Errorf("failed to configure '%s': %w", d.Port, err)
	}

	d.transition(PollingForPrompt)
	marker, err := d.pollForPrompt(ctx, port)
	if err != nil {
		return err
	}
	d.Logger.Info("boot loader prompt detected", "marker", marker)

	if err := d.interrupt(ctx, port); err != nil {
		return err
	}
	d.transition(Interrupted)

	d.transition(SendingCommands)
	return d.sendCommands(ctx, port)
}

func (d *Driver) openError(err error) error {
	openErr := &OpenError{Port: d.Port, Err: err}
	if d.ListPorts != nil {
		ports, listErr := d.ListPorts()
		if listErr != nil {
			d.Logger.Warn("failed to list serial ports", "error", listErr)
		}
		openErr.Available = ports
	}
	return openErr
}

func (d *Driver) pollForPrompt(ctx context.Context, port Port) (string, error) {
	deadline := time.Now().Add(d.Window)
	transcript := newTranscript(transcriptSize)
	received := 0
	buf := make([]byte, 1024)
	for {
		if _, err := port.Write([]byte("\n")); err != nil {
			return "", fmt.Errorf("failed to write to '%s': %w", d.Port, err)
		}
		for {
			n, err := port.Read(buf)
			if err != nil {
				return "", fmt.Errorf("failed to read from '%s': %w", d.Port, err)
			}
			received += n
			transcript.Write(buf[:n])
			if n < len(buf) {
				break
			}
		}
		if marker := transcript.Match(d.Markers); marker != "" {
			return marker, nil
		}
		if d.OnPoll != nil {
			d.OnPoll()
		}

		now := time.Now()
		if !now.Before(deadline) {
			d.Logger.Debug("no prompt", "tail", transcript.String())
			return "", &PromptTimeoutError{Port: d.Port, Window: d.Window, Received: received}
		}
		wait := d.KeepaliveInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

func (d *Driver) interrupt(ctx context.Context, port Port) error {
	if _, err := port.Write([]byte(strings.Repeat("\n", d.InterruptBurst))); err != nil {
		return fmt.Errorf("failed to interrupt the boot loader: %w", err)
	}
	if err := sleep(ctx, d.InterruptSettle); err != nil {
		return err
	}
	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to flush '%s': %w", d.Port, err)
	}
	return nil
}

func (d *Driver) sendCommands(ctx context.Context, port Port) error {
	buf := make([]byte, 1024)
	for _, cmd := range d.Commands {
		d.Logger.Info("sending boot loader command", "command", cmd)
		if _, err := port.Write([]byte(cmd + "\n")); err != nil {
			return fmt.Errorf("failed to send '%s': %w", cmd, err)
		}
		if err := sleep(ctx, d.CommandSettle); err != nil {
			return err
		}
		// The echo isn't checked.
		if n, err := port.Read(buf); err == nil && n > 0 {
			d.Logger.Debug("boot loader echo", "data", decode(buf[:n]))
		}
	}
	return nil
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

// transcript keeps the most recent bytes read from the line, so markers
// split over several reads are still found.
type transcript struct {
	data []byte
	max  int
}

func newTranscript(max int) *transcript {
	return &transcript{max: max}
}

func (t *transcript) Write(b []byte) {
	t.data = append(t.data, b...)
	if over := len(t.data) - t.max; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
}

func (t *transcript) String() string {
	return decode(t.data)
}

// Match returns the first marker contained in the transcript.
func (t *transcript) Match(markers []string) string {
	text := strings.ToLower(t.String())
	for _, m := range markers {
		if m != "" && strings.Contains(text, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}

// decode replaces invalid UTF-8 with U+FFFD. Boot loaders print binary noise
// while the line settles.
func decode(b []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(decoded)
}
