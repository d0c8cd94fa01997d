// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"os"
	"sync"
)

// ReopenableFile is an io.Writer backed by an append-only file that can
// be closed and reopened in place. SIGHUP handlers call Reopen after
// logrotate moves the old file aside.
type ReopenableFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenReopenable opens path for appending, creating it with 0640.
func OpenReopenable(path string) (*ReopenableFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &ReopenableFile{path: path, f: f}, nil
}

// Write appends to the current file.
func (r *ReopenableFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	return r.f.Write(p)
}

// Reopen closes the current handle and opens the path again.
func (r *ReopenableFile) Reopen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		r.f.Close()
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		r.f = nil
		return err
	}
	r.f = f
	return nil
}

// Close closes the underlying file.
func (r *ReopenableFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
