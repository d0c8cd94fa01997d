// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sinks

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/logging"
)

// ExternalConfig names the program spawned per alert.
type ExternalConfig struct {
	Program string

	// MaxPriority skips alerts whose severity is above this value.
	// 0 spawns for every alert.
	MaxPriority int
}

// External runs a program once per alert with the rewritten event on
// stdin. Slow programs slow the pipeline; that is the contract the
// original tooling expects.
type External struct {
	program     string
	maxPriority int64
	logger      *logging.Logger
}

// NewExternal builds the sink.
func NewExternal(cfg ExternalConfig, logger *logging.Logger) *External {
	return &External{
		program:     cfg.Program,
		maxPriority: int64(cfg.MaxPriority),
		logger:      logger.WithComponent("external"),
	}
}

// Name implements Sink.
func (s *External) Name() string { return "external" }

// Deliver spawns the program for one alert. Non-alert records and
// alerts above the priority cutoff are ignored.
func (s *External) Deliver(ctx context.Context, rec *Record) error {
	if rec.Type != "alert" || rec.Event == nil {
		return nil
	}
	if s.maxPriority > 0 {
		if sev := rec.Event.Int64("alert", "severity"); sev > s.maxPriority {
			s.logger.Debug("alert above priority cutoff", "severity", sev)
			return nil
		}
	}

	line := make([]byte, 0, len(rec.Data)+1)
	line = append(line, rec.Data...)
	line = append(line, '\n')

	cmd := exec.CommandContext(ctx, s.program)
	cmd.Stdin = bytes.NewReader(line)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, errors.KindIO, "external program %s: %s",
			s.program, firstLine(out))
	}
	if len(out) > 0 {
		s.logger.Debug("external program output", "output", firstLine(out))
	}
	return nil
}

func firstLine(out []byte) string {
	out = bytes.TrimSpace(out)
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	if len(out) > 200 {
		out = out[:200]
	}
	return string(out)
}

// Close implements Sink.
func (s *External) Close() error { return nil }
