// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wick2006/embedded-development/cmd/bringup/logging"
)

var bootLoaderCommands = []string{
	`setenv bootcmd "setvobg 0 0; run run_logo; run update_script;"`,
	"saveenv",
	"reset",
}

type chunk struct {
	at   time.Duration
	data []byte
}

type write struct {
	at   time.Time
	data string
}

// fakePort delivers chunks once their time since opening has passed.
type fakePort struct {
	mu      sync.Mutex
	opened  time.Time
	chunks  []chunk
	writes  []write
	resets  int
	closed  bool
	panicOn string
}

func newFakePort(chunks ...chunk) *fakePort {
	return &fakePort{opened: time.Now(), chunks: chunks}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if len(p.chunks) == 0 || time.Since(p.opened) < p.chunks[0].at {
		return 0, nil
	}
	n := copy(b, p.chunks[0].data)
	if n < len(p.chunks[0].data) {
		p.chunks[0].data = p.chunks[0].data[n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.panicOn != "" && string(b) == p.panicOn {
		panic("device vanished")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	p.writes = append(p.writes, write{time.Now(), string(b)})
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	elapsed := time.Since(p.opened)
	for len(p.chunks) > 0 && p.chunks[0].at <= elapsed {
		p.chunks = p.chunks[1:]
	}
	return nil
}

func (p *fakePort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]string, len(p.writes))
	for i, w := range p.writes {
		res[i] = w.data
	}
	return res
}

func testOptions() Options {
	return Options{
		Port:              "/dev/ttyUSB0",
		Baud:              115200,
		ReadTimeout:       10 * time.Millisecond,
		Window:            2 * time.Second,
		KeepaliveInterval: 10 * time.Millisecond,
		Markers:           []string{"stop autoboot", "hisilicon #", "=>"},
		InterruptBurst:    4,
		InterruptSettle:   5 * time.Millisecond,
		Commands:          bootLoaderCommands,
		CommandSettle:     20 * time.Millisecond,
	}
}

func newTestDriver(opts Options, port *fakePort) (*Driver, *[]State) {
	var states []State
	d := NewDriver(opts, logging.NewNop())
	d.Open = func(name string, baud int) (Port, error) {
		return port, nil
	}
	d.ListPorts = func() ([]PortInfo, error) { return nil, nil }
	d.OnState = func(s State) { states = append(states, s) }
	return d, &states
}

// commandsAfterBurst returns the writes following the interrupt burst. It
// fails if anything but keepalives was written before.
func commandsAfterBurst(t *testing.T, writes []string, burst int) []string {
	t.Helper()
	for i, w := range writes {
		if w == strings.Repeat("\n", burst) {
			return writes[i+1:]
		}
		require.Equal(t, "\n", w, "unexpected write before the interrupt")
	}
	require.Fail(t, "no interrupt burst written")
	return nil
}

func TestAutobootInterrupted(t *testing.T) {
	port := newFakePort(
		chunk{at: 0, data: []byte("U-Boot 2016.11 (Jun 01 2023)\r\nDRAM: 2 GiB\r\n")},
		chunk{at: 50 * time.Millisecond, data: []byte("...Hit any key to stop autoboot...\n=> ")},
	)
	d, states := newTestDriver(testOptions(), port)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Done, d.State())
	assert.Equal(t, []State{WaitingForPort, PollingForPrompt, Interrupted, SendingCommands, Done}, *states)
	assert.True(t, port.closed)
	assert.Equal(t, 1, port.resets)

	sent := commandsAfterBurst(t, port.written(), 4)
	assert.Equal(t, []string{
		bootLoaderCommands[0] + "\n",
		bootLoaderCommands[1] + "\n",
		bootLoaderCommands[2] + "\n",
	}, sent)

	writes := port.writes[len(port.writes)-3:]
	for i := 1; i < len(writes); i++ {
		assert.GreaterOrEqual(t, writes[i].at.Sub(writes[i-1].at), 20*time.Millisecond)
	}
}

func TestMarkerSplitAcrossReads(t *testing.T) {
	port := newFakePort(
		chunk{at: 0, data: []byte("Hit any key to st")},
		chunk{at: 30 * time.Millisecond, data: []byte("OP AUTOBOOT: 1")},
	)
	opts := testOptions()
	opts.Markers = []string{"stop autoboot"}
	d, _ := newTestDriver(opts, port)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Done, d.State())
}

func TestInvalidUTF8Tolerated(t *testing.T) {
	port := newFakePort(chunk{at: 0, data: []byte{0xff, 0xfe, 0x00, 0xc3, '\r', '\n', 'h', 'i', 's', 'i', 'l', 'i', 'c', 'o', 'n', ' ', '#', ' '}})
	d, _ := newTestDriver(testOptions(), port)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Done, d.State())
}

func TestSilentLineFails(t *testing.T) {
	port := newFakePort()
	opts := testOptions()
	opts.Window = 150 * time.Millisecond
	opts.KeepaliveInterval = 20 * time.Millisecond
	d, states := newTestDriver(opts, port)

	polls := 0
	d.OnPoll = func() { polls++ }
	start := time.Now()
	err := d.Run(context.Background())
	elapsed := time.Since(start)

	var timeoutErr *PromptTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 0, timeoutErr.Received)
	assert.Len(t, timeoutErr.Hypotheses(), 2)
	assert.Contains(t, err.Error(), "TX and RX")
	assert.Contains(t, err.Error(), "did not pause")

	assert.GreaterOrEqual(t, elapsed, opts.Window)
	assert.Equal(t, Failed, d.State())
	assert.Equal(t, []State{WaitingForPort, PollingForPrompt, Failed}, *states)
	assert.True(t, port.closed)
	assert.Greater(t, polls, 3)
	for _, w := range port.written() {
		assert.Equal(t, "\n", w)
	}
}

func TestMarkerAfterWindowIgnored(t *testing.T) {
	port := newFakePort(chunk{at: time.Second, data: []byte("=> ")})
	opts := testOptions()
	opts.Window = 100 * time.Millisecond
	d, _ := newTestDriver(opts, port)

	var timeoutErr *PromptTimeoutError
	require.ErrorAs(t, d.Run(context.Background()), &timeoutErr)
	assert.Equal(t, Failed, d.State())
}

func TestOpenFailureListsPorts(t *testing.T) {
	d := NewDriver(testOptions(), logging.NewNop())
	d.Open = func(name string, baud int) (Port, error) {
		return nil, errors.New("the port '/dev/ttyUSB0' was not found")
	}
	d.ListPorts = func() ([]PortInfo, error) {
		return []PortInfo{
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "10c4", PID: "ea60", Product: "CP2102"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	err := d.Run(context.Background())
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Len(t, openErr.Available, 2)
	assert.Contains(t, err.Error(), "/dev/ttyUSB1 (USB 10c4:ea60 CP2102)")
	assert.Contains(t, err.Error(), "/dev/ttyS0")
	assert.Equal(t, Failed, d.State())
}

func TestOpenFailureWithoutPorts(t *testing.T) {
	d := NewDriver(testOptions(), logging.NewNop())
	d.Open = func(name string, baud int) (Port, error) {
		return nil, errors.New("busy")
	}
	d.ListPorts = func() ([]PortInfo, error) { return nil, nil }
	err := d.Run(context.Background())
	assert.Contains(t, err.Error(), "no serial ports detected")
}

func TestCheck(t *testing.T) {
	d := NewDriver(testOptions(), logging.NewNop())
	d.ListPorts = func() ([]PortInfo, error) {
		return []PortInfo{{Name: "/dev/ttyS0"}, {Name: d.Port, IsUSB: true}}, nil
	}
	assert.NoError(t, d.Check())

	d.ListPorts = func() ([]PortInfo, error) {
		return []PortInfo{{Name: "/dev/ttyS0"}}, nil
	}
	err := d.Check()
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.ErrorIs(t, err, ErrPortMissing)
	assert.Contains(t, err.Error(), "available ports: /dev/ttyS0")
	assert.Equal(t, WaitingForPort, d.State())

	d.ListPorts = func() ([]PortInfo, error) { return nil, errors.New("enumerator unavailable") }
	assert.NoError(t, d.Check())
}

func TestPanicClosesPort(t *testing.T) {
	port := newFakePort(chunk{at: 0, data: []byte("=> ")})
	port.panicOn = "saveenv\n"
	d, _ := newTestDriver(testOptions(), port)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device vanished")
	assert.True(t, port.closed)
	assert.Equal(t, Failed, d.State())
}

func TestCanceled(t *testing.T) {
	port := newFakePort()
	d, _ := newTestDriver(testOptions(), port)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, port.closed)
	assert.Equal(t, Failed, d.State())
}

func TestTranscript(t *testing.T) {
	tr := newTranscript(8)
	tr.Write([]byte("hisilicon"))
	assert.Equal(t, "isilicon", tr.String())
	tr.Write([]byte(" #"))
	assert.Equal(t, "ilicon #", tr.String())
	assert.Equal(t, "#", tr.Match([]string{"stop autoboot", "#"}))
	assert.Equal(t, "", tr.Match([]string{"=>", ""}))
}

func TestFilterPorts(t *testing.T) {
	ports := []PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0"},
		{Name: "/dev/ttyACM1"},
		{Name: "/dev/serial0", IsUSB: true},
	}
	assert.Equal(t, []PortInfo{ports[1], ports[2], ports[3]}, filterPorts("linux", ports))

	darwin := []PortInfo{
		{Name: "/dev/cu.Bluetooth-Incoming-Port"},
		{Name: "/dev/tty.usbserial-0001"},
		{Name: "/dev/cu.usbserial-0001"},
		{Name: "/dev/tty.usbmodem1"},
	}
	assert.Equal(t, []PortInfo{darwin[2], darwin[3]}, filterPorts("darwin", darwin))
	assert.Equal(t, ports, filterPorts("windows", ports))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "POLLING_FOR_PROMPT", PollingForPrompt.String())
	assert.Equal(t, "FAILED", Failed.String())
}
