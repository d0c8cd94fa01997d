// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/errors"
)

func mkfifo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meer.pipe")
	require.NoError(t, unix.Mkfifo(path, 0o600))
	return path
}

func openReader(t *testing.T, path string) int {
	t.Helper()
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func TestPipeDeliversLines(t *testing.T) {
	path := mkfifo(t)
	rfd := openReader(t, path)

	clk := clock.NewMockClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s := NewPipe(PipeConfig{Path: path}, clk, counters.New(), testLogger())
	defer s.Close()

	line := `{"event_type":"flow","n":1}`
	require.NoError(t, s.Deliver(context.Background(), mustRecord(t, line)))

	buf := make([]byte, 4096)
	n, err := unix.Read(rfd, buf)
	require.NoError(t, err)
	assert.Equal(t, line+"\n", string(buf[:n]))
}

func TestPipeWithoutReaderDropsAndBacksOff(t *testing.T) {
	path := mkfifo(t)

	ctr := counters.New()
	clk := clock.NewMockClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s := NewPipe(PipeConfig{Path: path}, clk, ctr, testLogger())
	defer s.Close()

	// Inside the backoff window drops are silent.
	require.NoError(t, s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`)))
	assert.Equal(t, uint64(1), ctr.Snapshot().SinkErrors["pipe"])

	// Once a reader shows up and the backoff passes, delivery works.
	rfd := openReader(t, path)
	clk.Advance(pipeReopenBackoff + time.Second)

	require.NoError(t, s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`)))

	buf := make([]byte, 4096)
	n, err := unix.Read(rfd, buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"event_type":"flow"`)
}

func TestPipeRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-pipe")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	clk := clock.NewMockClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s := NewPipe(PipeConfig{Path: path}, clk, counters.New(), testLogger())
	defer s.Close()

	clk.Advance(pipeReopenBackoff + time.Second)
	err := s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestPipeVanishedReaderTriggersReopen(t *testing.T) {
	path := mkfifo(t)
	rfd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	require.NoError(t, err)

	clk := clock.NewMockClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s := NewPipe(PipeConfig{Path: path}, clk, counters.New(), testLogger())
	defer s.Close()

	unix.Close(rfd)
	err = s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`))
	require.Error(t, err, "write with no reader fails")

	// Next event inside the backoff window drops without error.
	assert.NoError(t, s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`)))

	rfd2 := openReader(t, path)
	clk.Advance(pipeReopenBackoff + time.Second)
	require.NoError(t, s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`)))

	buf := make([]byte, 4096)
	n, err := unix.Read(rfd2, buf)
	require.NoError(t, err)
	assert.NotZero(t, n)
}

func TestPipeRequestsBufferSize(t *testing.T) {
	path := mkfifo(t)
	openReader(t, path)

	clk := clock.NewMockClock(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s := NewPipe(PipeConfig{Path: path, Size: 65536}, clk, counters.New(), testLogger())
	defer s.Close()

	require.NoError(t, s.Deliver(context.Background(), mustRecord(t, `{"event_type":"flow"}`)))

	s.mu.Lock()
	sz, err := unix.FcntlInt(uintptr(s.fd), unix.F_GETPIPE_SZ, 0)
	s.mu.Unlock()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, sz, 65536)
}
