// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package input

import (
	"bytes"
	"context"
	"net"
	"os"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

const defaultDatagramSize = 64 * 1024

// SocketConfig describes the receiving end of a datagram socket, the
// transport log engines use when they do not spool to disk.
type SocketConfig struct {
	Path string
	// BufferSize caps a single datagram. Larger events are cut off.
	BufferSize int
}

// Socket receives one event per datagram on a unix socket.
type Socket struct {
	cfg    SocketConfig
	proc   Processor
	logger *logging.Logger
}

// NewSocket prepares a socket input. The socket is bound by Run.
func NewSocket(cfg SocketConfig, proc Processor, logger *logging.Logger) *Socket {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultDatagramSize
	}
	return &Socket{
		cfg:    cfg,
		proc:   proc,
		logger: logger.WithComponent("input.socket"),
	}
}

// Run binds the socket and reads datagrams until ctx is cancelled. A
// leftover socket file from a previous run is replaced.
func (s *Socket) Run(ctx context.Context) error {
	if err := os.Remove(s.cfg.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, errors.KindIO, "remove stale socket %s", s.cfg.Path)
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: s.cfg.Path, Net: "unixgram"})
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "listen on %s", s.cfg.Path)
	}
	defer func() {
		conn.Close()
		os.Remove(s.cfg.Path)
	}()

	// The sender usually runs as its own user.
	if err := os.Chmod(s.cfg.Path, 0o660); err != nil {
		s.logger.Warn("cannot set socket permissions", "path", s.cfg.Path, "error", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Info("listening for events", "socket", s.cfg.Path)

	buf := make([]byte, s.cfg.BufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, errors.KindIO, "read from %s", s.cfg.Path)
		}

		line := bytes.TrimSpace(buf[:n])
		if len(line) == 0 {
			continue
		}
		s.proc.Process(ctx, line)
	}
}
