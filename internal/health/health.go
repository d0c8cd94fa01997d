// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health consumes the synthetic heartbeat alerts sensors fire
// to prove the whole path from rule engine to bridge still works.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// Toucher persists the per-sensor heartbeat timestamp. The
// correlation store implements it; nil means in-memory only.
type Toucher interface {
	TouchHealth(ctx context.Context, sensor string, ts time.Time) error
}

// Checker recognises health check alerts by signature id and records
// when each sensor last fired one.
type Checker struct {
	signatures map[int64]bool
	store      Toucher
	ctr        *counters.Counters
	clk        clock.Clock
	logger     *logging.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New builds a Checker for the configured signature ids.
func New(signatures []int, store Toucher, ctr *counters.Counters, clk clock.Clock, logger *logging.Logger) *Checker {
	set := make(map[int64]bool, len(signatures))
	for _, id := range signatures {
		set[int64(id)] = true
	}
	return &Checker{
		signatures: set,
		store:      store,
		ctr:        ctr,
		clk:        clk,
		logger:     logger.WithComponent("health"),
		lastSeen:   make(map[string]time.Time),
	}
}

// Match reports whether e is a health check alert.
func (c *Checker) Match(e *event.Event) bool {
	if e.Type != "alert" || len(c.signatures) == 0 {
		return false
	}
	return c.signatures[e.Int64("alert", "signature_id")]
}

// Observe consumes one health check alert. The caller must not route
// it anywhere else.
func (c *Checker) Observe(ctx context.Context, e *event.Event) {
	sensor := e.Str("host")
	if sensor == "" {
		sensor = "unknown"
	}
	now := c.clk.Now()

	c.mu.Lock()
	c.lastSeen[sensor] = now
	c.mu.Unlock()

	c.ctr.Health()
	c.logger.Debug("health check", "sensor", sensor,
		"signature_id", e.Int64("alert", "signature_id"))

	if c.store != nil {
		if err := c.store.TouchHealth(ctx, sensor, now); err != nil {
			c.logger.Warn("could not store health timestamp", "sensor", sensor, "error", err)
		}
	}
}

// Snapshot copies the per-sensor heartbeat times for the status API.
func (c *Checker) Snapshot() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]time.Time, len(c.lastSeen))
	for sensor, ts := range c.lastSeen {
		out[sensor] = ts
	}
	return out
}
