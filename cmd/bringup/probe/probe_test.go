// Copyright (C) 2026 The bringup Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wick2006/embedded-development/cmd/bringup/logging"
)

// scriptedPinger succeeds from the succeedAt'th call on. Zero never succeeds.
type scriptedPinger struct {
	calls     atomic.Int32
	succeedAt int32
}

func (p *scriptedPinger) Ping(ctx context.Context, address string) (bool, error) {
	n := p.calls.Add(1)
	return p.succeedAt != 0 && n >= p.succeedAt, nil
}

// deniedPinger fails like an ICMP socket the user may not open.
type deniedPinger struct {
	calls atomic.Int32
}

func (p *deniedPinger) Ping(ctx context.Context, address string) (bool, error) {
	p.calls.Add(1)
	err := &net.OpError{Op: "listen", Net: "udp4", Err: os.NewSyscallError("socket", syscall.EACCES)}
	return false, &SetupError{Method: MethodICMP, Err: err}
}

func waitOnline(t *testing.T, prober *Prober, ctx context.Context, timeout time.Duration, interval time.Duration) bool {
	t.Helper()
	online, err := prober.WaitOnline(ctx, "device", timeout, interval)
	require.NoError(t, err)
	return online
}

func newProber(p Pinger, settle time.Duration) *Prober {
	return &Prober{
		Pinger:         p,
		Logger:         logging.NewNop(),
		AttemptTimeout: 10 * time.Millisecond,
		Settle:         settle,
	}
}

func TestWaitOnlineImmediate(t *testing.T) {
	pinger := &scriptedPinger{succeedAt: 1}
	prober := newProber(pinger, 30*time.Millisecond)

	start := time.Now()
	assert.True(t, waitOnline(t, prober, context.Background(), time.Second, 100*time.Millisecond))
	elapsed := time.Since(start)
	assert.EqualValues(t, 1, pinger.calls.Load())
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitOnlineAfterRetries(t *testing.T) {
	pinger := &scriptedPinger{succeedAt: 3}
	prober := newProber(pinger, 0)

	failed := 0
	prober.OnAttempt = func() { failed++ }
	assert.True(t, waitOnline(t, prober, context.Background(), time.Second, 10*time.Millisecond))
	assert.EqualValues(t, 3, pinger.calls.Load())
	assert.Equal(t, 2, failed)
}

func TestWaitOnlineTimeout(t *testing.T) {
	pinger := &scriptedPinger{}
	prober := newProber(pinger, time.Second)

	timeout := 150 * time.Millisecond
	interval := 40 * time.Millisecond
	start := time.Now()
	assert.False(t, waitOnline(t, prober, context.Background(), timeout, interval))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval+100*time.Millisecond)
	assert.Greater(t, pinger.calls.Load(), int32(2))
}

func TestWaitOnlineRepeated(t *testing.T) {
	pinger := &scriptedPinger{succeedAt: 1}
	prober := newProber(pinger, 0)
	assert.True(t, waitOnline(t, prober, context.Background(), time.Second, time.Second))
	assert.True(t, waitOnline(t, prober, context.Background(), time.Second, time.Second))
	assert.EqualValues(t, 2, pinger.calls.Load())
}

func TestWaitOnlineCanceled(t *testing.T) {
	prober := newProber(&scriptedPinger{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	assert.False(t, waitOnline(t, prober, ctx, 10*time.Second, 20*time.Millisecond))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTCPPinger(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pinger := TCP{Port: port}
	online, err := pinger.Ping(ctx, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, listener.Close())
	online, err = pinger.Ping(ctx, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestWaitOnlineSetupError(t *testing.T) {
	var logs bytes.Buffer
	pinger := &deniedPinger{}
	prober := newProber(pinger, 0)
	prober.Logger = logging.NewWithWriter(&logs, slog.LevelInfo)

	start := time.Now()
	online, err := prober.WaitOnline(context.Background(), "device", 10*time.Second, 10*time.Millisecond)
	assert.False(t, online)
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "probe.method tcp")
	assert.EqualValues(t, 1, pinger.calls.Load())
	assert.Less(t, time.Since(start), time.Second)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "permission denied")
}

func TestIsSetupError(t *testing.T) {
	listen := &net.OpError{Op: "listen", Net: "ip4:icmp", Err: os.NewSyscallError("socket", syscall.EPERM)}
	assert.True(t, isSetupError(listen))
	assert.True(t, isSetupError(fmt.Errorf("socket: %w", os.ErrPermission)))

	send := &net.OpError{Op: "write", Net: "udp4", Err: os.NewSyscallError("sendto", syscall.EHOSTUNREACH)}
	assert.False(t, isSetupError(send))
}

func TestNew(t *testing.T) {
	p, err := New(MethodICMP, true, 22)
	require.NoError(t, err)
	assert.Equal(t, ICMP{Privileged: true}, p)

	p, err = New(MethodTCP, false, 2222)
	require.NoError(t, err)
	assert.Equal(t, TCP{Port: 2222}, p)

	_, err = New("arp", false, 22)
	assert.Error(t, err)
}
