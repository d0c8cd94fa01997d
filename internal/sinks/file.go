// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

const fileBufferSize = 64 * 1024

// FileConfig names the output file and how often buffers hit disk.
type FileConfig struct {
	Path          string
	FlushInterval time.Duration
}

// File appends events to a flat NDJSON file through a buffer that a
// ticker flushes. Reopen exists for logrotate's SIGHUP dance.
type File struct {
	path   string
	logger *logging.Logger

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer

	stop chan struct{}
	done chan struct{}
}

// NewFile opens (appending) the output file and starts the flusher.
func NewFile(cfg FileConfig, logger *logging.Logger) (*File, error) {
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindIO, "open output file %s", cfg.Path)
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	s := &File{
		path:   cfg.Path,
		logger: logger.WithComponent("file"),
		f:      f,
		w:      bufio.NewWriterSize(f, fileBufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.flusher(cfg.FlushInterval)

	s.logger.Info("output file open", "path", cfg.Path)
	return s, nil
}

// Name implements Sink.
func (s *File) Name() string { return "file" }

// Deliver appends one line.
func (s *File) Deliver(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return errors.Errorf(errors.KindIO, "output file %s is closed", s.path)
	}
	if _, err := s.w.Write(rec.Data); err != nil {
		return errors.Wrapf(err, errors.KindIO, "write %s", s.path)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.Wrapf(err, errors.KindIO, "write %s", s.path)
	}
	return nil
}

// Reopen flushes, closes, and opens the path again. Wired to SIGHUP
// so logrotate can move the old file aside.
func (s *File) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		s.w.Flush()
		s.f.Close()
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		s.f = nil
		return errors.Wrapf(err, errors.KindIO, "reopen output file %s", s.path)
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, fileBufferSize)
	s.logger.Info("output file reopened", "path", s.path)
	return nil
}

// Flush forces buffered lines to disk.
func (s *File) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrapf(err, errors.KindIO, "flush %s", s.path)
	}
	return nil
}

func (s *File) flusher(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if err := s.Flush(); err != nil {
				s.logger.Warn("flush failed", "error", err)
			}
		}
	}
}

// Close stops the flusher and closes the file.
func (s *File) Close() error {
	close(s.stop)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	err := s.f.Close()
	s.f = nil
	return err
}
