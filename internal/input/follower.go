// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package input feeds the pipeline from the sources the engine writes
// to, a spool file followed like tail -f or a datagram socket.
package input

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

// Processor consumes one NDJSON line. The line buffer is reused after
// the call returns.
type Processor interface {
	Process(ctx context.Context, line []byte)
}

const (
	defaultPoll      = time.Second
	defaultWaldoSync = 5 * time.Second
	readerBufferSize = 64 * 1024
)

// FollowerConfig locates the spool file and the waldo file holding the
// resume offset.
type FollowerConfig struct {
	Path string
	// Waldo is where the read offset persists across restarts. Empty
	// disables persistence and every start reads from offset 0.
	Waldo string
	// Poll bounds how long an append can go unnoticed when the
	// filesystem watch misses it.
	Poll time.Duration
	// WaldoSync is how often the offset is written back while
	// following.
	WaldoSync time.Duration
}

// Follower tails a spool file of NDJSON events, surviving truncation
// and rotation, and resumes where the previous run stopped.
type Follower struct {
	cfg    FollowerConfig
	proc   Processor
	logger *logging.Logger

	file    *os.File
	reader  *bufio.Reader
	offset  int64
	pending []byte

	lastSaved int64
	lastSync  time.Time
}

// NewFollower prepares a follower. The spool file is opened by Run.
func NewFollower(cfg FollowerConfig, proc Processor, logger *logging.Logger) *Follower {
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	if cfg.WaldoSync <= 0 {
		cfg.WaldoSync = defaultWaldoSync
	}
	cfg.Path = filepath.Clean(cfg.Path)

	return &Follower{
		cfg:       cfg,
		proc:      proc,
		logger:    logger.WithComponent("input.follower"),
		lastSaved: -1,
	}
}

// Run follows the spool until ctx is cancelled. The saved offset is
// honoured on start and written back on the way out.
func (f *Follower) Run(ctx context.Context) error {
	if err := f.open(f.loadWaldo()); err != nil {
		return err
	}
	defer func() {
		f.saveWaldo()
		f.file.Close()
	}()

	watcher := f.watch()
	if watcher != nil {
		defer watcher.Close()
	}

	poll := time.NewTicker(f.cfg.Poll)
	defer poll.Stop()

	f.logger.Info("following spool", "path", f.cfg.Path, "offset", f.offset)

	for {
		chunk, err := f.reader.ReadBytes('\n')
		if len(chunk) > 0 {
			f.pending = append(f.pending, chunk...)
		}
		if err == nil {
			f.dispatch(ctx)
			continue
		}
		if !errors.Is(err, io.EOF) {
			return errors.Wrapf(err, errors.KindIO, "read %s", f.cfg.Path)
		}

		if err := f.waitMore(ctx, watcher, poll); err != nil {
			return err
		}
	}
}

// watch sets up a directory watch for the spool. The directory, not
// the file: a watch on the file itself follows the inode through a
// rotation. Nil means the poll ticker carries the load alone.
func (f *Follower) watch() *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.logger.Warn("filesystem watch unavailable, polling only", "error", err)
		return nil
	}
	if err := watcher.Add(filepath.Dir(f.cfg.Path)); err != nil {
		f.logger.Warn("cannot watch spool directory, polling only", "error", err)
		watcher.Close()
		return nil
	}
	return watcher
}

// dispatch hands the completed line over and advances the offset past
// it, newline included.
func (f *Follower) dispatch(ctx context.Context) {
	line := bytes.TrimRight(f.pending, "\r\n")
	if len(line) > 0 {
		f.proc.Process(ctx, line)
	}
	f.offset += int64(len(f.pending))
	f.pending = f.pending[:0]

	if time.Since(f.lastSync) >= f.cfg.WaldoSync {
		f.saveWaldo()
	}
}

// waitMore blocks until the spool grows, rotates, or ctx ends. It
// returns with the file positioned for the next read.
func (f *Follower) waitMore(ctx context.Context, watcher *fsnotify.Watcher, poll *time.Ticker) error {
	var events chan fsnotify.Event
	var werrs chan error
	if watcher != nil {
		events = watcher.Events
		werrs = watcher.Errors
	}

	for {
		grown, err := f.checkFile()
		if err != nil {
			return err
		}
		if grown {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if filepath.Clean(ev.Name) == f.cfg.Path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		case err := <-werrs:
			f.logger.Warn("filesystem watch error", "error", err)
		case <-poll.C:
		}
	}
}

// checkFile detects growth, truncation, and rotation. Truncation and
// rotation reopen at offset 0. A rewrite that grows the file past the
// old offset is indistinguishable from an append.
func (f *Follower) checkFile() (grown bool, err error) {
	pos := f.offset + int64(len(f.pending))

	cur, err := f.file.Stat()
	if err != nil {
		return false, errors.Wrapf(err, errors.KindIO, "stat %s", f.cfg.Path)
	}

	if disk, err := os.Stat(f.cfg.Path); err == nil && !os.SameFile(cur, disk) {
		f.logger.Info("spool rotated, reopening", "path", f.cfg.Path)
		return false, f.reopen()
	}

	switch {
	case cur.Size() < pos:
		f.logger.Info("spool truncated, starting over", "path", f.cfg.Path)
		return false, f.reopen()
	case cur.Size() > pos:
		return true, nil
	}
	return false, nil
}

// reopen swaps to the file currently at the path, from the top.
func (f *Follower) reopen() error {
	next, err := os.Open(f.cfg.Path)
	if err != nil {
		// The writer may not have recreated it yet. Stay on the old
		// handle and let the next wait round retry.
		f.logger.Debug("spool not yet back", "path", f.cfg.Path, "error", err)
		return nil
	}

	f.file.Close()
	f.file = next
	f.reader = bufio.NewReaderSize(next, readerBufferSize)
	if n := len(f.pending); n > 0 {
		f.logger.Debug("abandoning partial line from previous spool", "bytes", n)
		f.pending = f.pending[:0]
	}
	f.offset = 0
	f.saveWaldo()
	return nil
}

func (f *Follower) open(offset int64) error {
	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "open spool %s", f.cfg.Path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.Wrapf(err, errors.KindIO, "stat %s", f.cfg.Path)
	}
	if offset > info.Size() {
		f.logger.Warn("saved offset beyond spool end, starting over",
			"offset", offset, "size", info.Size())
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return errors.Wrapf(err, errors.KindIO, "seek %s", f.cfg.Path)
		}
	}

	f.file = file
	f.reader = bufio.NewReaderSize(file, readerBufferSize)
	f.offset = offset
	return nil
}

func (f *Follower) loadWaldo() int64 {
	if f.cfg.Waldo == "" {
		return 0
	}
	data, err := os.ReadFile(f.cfg.Waldo)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("cannot read waldo file", "path", f.cfg.Waldo, "error", err)
		}
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n < 0 {
		f.logger.Warn("waldo file is not an offset, starting over", "path", f.cfg.Waldo)
		return 0
	}
	return n
}

func (f *Follower) saveWaldo() {
	if f.cfg.Waldo == "" || f.offset == f.lastSaved {
		return
	}
	data := strconv.FormatInt(f.offset, 10) + "\n"
	if err := os.WriteFile(f.cfg.Waldo, []byte(data), 0o644); err != nil {
		f.logger.Warn("cannot write waldo file", "path", f.cfg.Waldo, "error", err)
		return
	}
	f.lastSaved = f.offset
	f.lastSync = time.Now()
}
