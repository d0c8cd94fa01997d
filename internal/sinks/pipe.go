// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

// pipeReopenBackoff spaces out open attempts while no reader is
// attached to the fifo.
const pipeReopenBackoff = 5 * time.Second

// PipeConfig names the fifo and the kernel buffer size to request.
type PipeConfig struct {
	Path string
	Size int
}

// Pipe writes events to a named pipe without ever blocking the
// pipeline: the fifo is opened non-blocking, a full pipe drops the
// event, and a vanished reader triggers reopen attempts with backoff.
type Pipe struct {
	path   string
	size   int
	clk    clock.Clock
	ctr    *counters.Counters
	logger *logging.Logger

	mu       sync.Mutex
	fd       int
	nextOpen time.Time
}

// NewPipe tries an initial open. A missing reader is not fatal; the
// sink keeps retrying as events arrive.
func NewPipe(cfg PipeConfig, clk clock.Clock, ctr *counters.Counters, logger *logging.Logger) *Pipe {
	s := &Pipe{
		path:   cfg.Path,
		size:   cfg.Size,
		clk:    clk,
		ctr:    ctr,
		logger: logger.WithComponent("pipe"),
		fd:     -1,
	}
	if err := s.open(); err != nil {
		s.logger.Warn("pipe not ready, will retry", "path", cfg.Path, "error", err)
		s.nextOpen = clk.Now().Add(pipeReopenBackoff)
	}
	return s
}

func (s *Pipe) open() error {
	fd, err := unix.Open(s.path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if err == unix.ENXIO {
			return errors.Errorf(errors.KindIO, "no reader on pipe %s", s.path)
		}
		return errors.Wrapf(err, errors.KindIO, "open pipe %s", s.path)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err == nil && st.Mode&unix.S_IFMT != unix.S_IFIFO {
		unix.Close(fd)
		return errors.Errorf(errors.KindConfig, "%s is not a named pipe", s.path)
	}

	if s.size > 0 {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, s.size); err != nil {
			s.logger.Warn("could not grow pipe buffer", "size", s.size, "error", err)
		}
	}

	s.fd = fd
	s.logger.Info("pipe open", "path", s.path)
	return nil
}

// Name implements Sink.
func (s *Pipe) Name() string { return "pipe" }

// Deliver writes one line. A full pipe or a closed reader never
// stalls the caller; dropped events count as pipe sink errors.
func (s *Pipe) Deliver(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fd < 0 {
		if s.clk.Now().Before(s.nextOpen) {
			s.ctr.SinkError("pipe")
			return nil
		}
		if err := s.open(); err != nil {
			s.nextOpen = s.clk.Now().Add(pipeReopenBackoff)
			s.ctr.SinkError("pipe")
			return err
		}
	}

	line := make([]byte, 0, len(rec.Data)+1)
	line = append(line, rec.Data...)
	line = append(line, '\n')

	n, err := unix.Write(s.fd, line)
	if err == unix.EAGAIN {
		s.ctr.SinkError("pipe")
		s.logger.Debug("pipe full, dropping event")
		return nil
	}
	if err != nil {
		unix.Close(s.fd)
		s.fd = -1
		s.nextOpen = s.clk.Now().Add(pipeReopenBackoff)
		return errors.Wrapf(err, errors.KindIO, "write pipe %s", s.path)
	}
	if n < len(line) {
		// Oversized lines can land partially on a non-blocking fifo.
		s.ctr.SinkError("pipe")
		s.logger.Debug("short pipe write", "wrote", n, "wanted", len(line))
	}
	return nil
}

// Close implements Sink.
func (s *Pipe) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
