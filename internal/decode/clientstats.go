// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package decode

import (
	"sync"
	"time"

	"github.com/VVelox/meer/internal/clock"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/logging"
)

// maxClientEntries caps the tracker so a sensor cycling through
// spoofed source addresses cannot grow it without bound.
const maxClientEntries = 8192

// ClientEntry is the last report seen from one log client.
type ClientEntry struct {
	Program  string `json:"program,omitempty"`
	Message  string `json:"message,omitempty"`
	LastSeen string `json:"last_seen"`
}

// ClientStats tracks Sagan client_stats events per reporting address
// so the status API can show which log sources are alive.
type ClientStats struct {
	clk    clock.Clock
	logger *logging.Logger

	mu      sync.Mutex
	entries map[string]ClientEntry
}

// NewClientStats builds an empty tracker.
func NewClientStats(clk clock.Clock, logger *logging.Logger) *ClientStats {
	return &ClientStats{
		clk:     clk,
		logger:  logger.WithComponent("client_stats"),
		entries: make(map[string]ClientEntry),
	}
}

// Observe records the client behind e. Events without a src_ip are
// dropped.
func (c *ClientStats) Observe(e *event.Event) {
	ip := e.Str("src_ip")
	if ip == "" {
		c.logger.Debug("client_stats event without src_ip")
		return
	}

	seen := e.Str("timestamp")
	if seen == "" {
		seen = c.clk.Now().UTC().Format(time.RFC3339)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[ip]; !ok && len(c.entries) >= maxClientEntries {
		c.logger.Debug("client_stats tracker full, dropping", "src_ip", ip)
		return
	}
	c.entries[ip] = ClientEntry{
		Program:  e.Str("program"),
		Message:  e.Str("message"),
		LastSeen: seen,
	}
}

// Snapshot copies the tracked clients for the status API.
func (c *ClientStats) Snapshot() map[string]ClientEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]ClientEntry, len(c.entries))
	for ip, ent := range c.entries {
		out[ip] = ent
	}
	return out
}

// Len reports how many clients are tracked.
func (c *ClientStats) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
