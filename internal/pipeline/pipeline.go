// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"bytes"
	"context"

	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// invalidPrefixLen bounds how much of an undecodable line makes it
// into the log.
const invalidPrefixLen = 128

// Pipeline is the path one input line takes: parse, count, route.
type Pipeline struct {
	router *Router
	ctr    *counters.Counters
	logger *logging.Logger
}

// New assembles the pipeline.
func New(router *Router, ctr *counters.Counters, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		router: router,
		ctr:    ctr,
		logger: logger.WithComponent("pipeline"),
	}
}

// Process handles one NDJSON line. Undecodable lines are counted,
// logged with a bounded prefix, and dropped; everything else routes.
// Safe for concurrent use by multiple input sources.
func (p *Pipeline) Process(ctx context.Context, line []byte) {
	e, err := event.Parse(line)
	if err != nil {
		p.ctr.InvalidJSON()
		p.logger.Warn("dropping undecodable line", "error", err, "line", linePrefix(line))
		return
	}

	p.ctr.Event(e.Type)
	p.router.Route(ctx, e)
}

func linePrefix(line []byte) string {
	line = bytes.TrimSpace(line)
	if len(line) > invalidPrefixLen {
		line = line[:invalidPrefixLen]
	}
	return string(line)
}
