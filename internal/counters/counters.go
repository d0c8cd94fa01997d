// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package counters tracks everything the bridge has seen, dropped, and
// delivered. Counts live twice: cheap atomics for the banner and the
// status API, and a private Prometheus registry for /metrics.
package counters

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VVelox/meer/internal/logging"
)

// Counters is the bridge-wide tally. All methods are safe for
// concurrent use.
type Counters struct {
	events          atomic.Uint64
	invalidJSON     atomic.Uint64
	fingerprintSeen atomic.Uint64
	enriched        atomic.Uint64
	enrichTruncated atomic.Uint64
	dhcpWrites      atomic.Uint64
	ndpEmitted      atomic.Uint64
	ndpSkipped      atomic.Uint64
	healthSeen      atomic.Uint64
	redisErrors     atomic.Uint64

	mu      sync.RWMutex
	byType  map[string]*atomic.Uint64
	bySinkD map[string]*atomic.Uint64
	bySinkE map[string]*atomic.Uint64

	metrics *Metrics
	started time.Time
}

// New creates a zeroed counter set with its Prometheus registry.
func New() *Counters {
	return &Counters{
		byType:  make(map[string]*atomic.Uint64),
		bySinkD: make(map[string]*atomic.Uint64),
		bySinkE: make(map[string]*atomic.Uint64),
		metrics: NewMetrics(),
		started: time.Now(),
	}
}

// Metrics returns the Prometheus side of the tally.
func (c *Counters) Metrics() *Metrics {
	return c.metrics
}

// Event records one input line of the given event type.
func (c *Counters) Event(eventType string) {
	c.events.Add(1)
	c.bump(&c.byType, eventType)
	c.metrics.EventsTotal.WithLabelValues(eventType).Inc()
	c.metrics.LastEventUnix.SetToCurrentTime()
}

// InvalidJSON records a line the decoder refused.
func (c *Counters) InvalidJSON() {
	c.invalidJSON.Add(1)
	c.metrics.InvalidJSONTotal.Inc()
}

// FingerprintWrite records a fingerprint rule consumed into the store.
func (c *Counters) FingerprintWrite() {
	c.fingerprintSeen.Add(1)
	c.metrics.FingerprintWritesTotal.Inc()
}

// Enriched records an alert that got at least one correlation spliced.
func (c *Counters) Enriched() {
	c.enriched.Add(1)
	c.metrics.EnrichedTotal.Inc()
}

// EnrichTruncated records enrichment stopped by the payload bound.
func (c *Counters) EnrichTruncated() {
	c.enrichTruncated.Add(1)
	c.metrics.EnrichTruncatedTotal.Inc()
}

// DHCPWrite records a dhcp correlation record stored.
func (c *Counters) DHCPWrite() {
	c.dhcpWrites.Add(1)
	c.metrics.DHCPWritesTotal.Inc()
}

// NDP records an emitted observation of the given type.
func (c *Counters) NDP(obsType string) {
	c.ndpEmitted.Add(1)
	c.metrics.NDPEmittedTotal.WithLabelValues(obsType).Inc()
}

// NDPSkip records a dedup suppression of the given type.
func (c *Counters) NDPSkip(obsType string) {
	c.ndpSkipped.Add(1)
	c.metrics.NDPSkippedTotal.WithLabelValues(obsType).Inc()
}

// Health records a consumed health check alert.
func (c *Counters) Health() {
	c.healthSeen.Add(1)
	c.metrics.HealthTotal.Inc()
}

// RedisError records a failed correlation store operation.
func (c *Counters) RedisError() {
	c.redisErrors.Add(1)
	c.metrics.RedisErrorsTotal.Inc()
}

// SinkDelivered records one event handed to the named sink.
func (c *Counters) SinkDelivered(sink string) {
	c.bump(&c.bySinkD, sink)
	c.metrics.SinkDeliveredTotal.WithLabelValues(sink).Inc()
}

// SinkError records one failed delivery for the named sink.
func (c *Counters) SinkError(sink string) {
	c.bump(&c.bySinkE, sink)
	c.metrics.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

func (c *Counters) bump(m *map[string]*atomic.Uint64, key string) {
	c.mu.RLock()
	ctr, ok := (*m)[key]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		ctr, ok = (*m)[key]
		if !ok {
			ctr = &atomic.Uint64{}
			(*m)[key] = ctr
		}
		c.mu.Unlock()
	}
	ctr.Add(1)
}

// Snapshot is a point-in-time copy for the status API and the banner.
type Snapshot struct {
	Uptime          time.Duration     `json:"uptime"`
	Events          uint64            `json:"events"`
	InvalidJSON     uint64            `json:"invalid_json"`
	ByType          map[string]uint64 `json:"by_type"`
	FingerprintSeen uint64            `json:"fingerprint_writes"`
	Enriched        uint64            `json:"enriched"`
	EnrichTruncated uint64            `json:"enrich_truncated"`
	DHCPWrites      uint64            `json:"dhcp_writes"`
	NDPEmitted      uint64            `json:"ndp_emitted"`
	NDPSkipped      uint64            `json:"ndp_skipped"`
	HealthSeen      uint64            `json:"health"`
	RedisErrors     uint64            `json:"redis_errors"`
	SinkDelivered   map[string]uint64 `json:"sink_delivered"`
	SinkErrors      map[string]uint64 `json:"sink_errors"`
}

// Snapshot captures the current counts.
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{
		Uptime:          time.Since(c.started),
		Events:          c.events.Load(),
		InvalidJSON:     c.invalidJSON.Load(),
		ByType:          make(map[string]uint64),
		FingerprintSeen: c.fingerprintSeen.Load(),
		Enriched:        c.enriched.Load(),
		EnrichTruncated: c.enrichTruncated.Load(),
		DHCPWrites:      c.dhcpWrites.Load(),
		NDPEmitted:      c.ndpEmitted.Load(),
		NDPSkipped:      c.ndpSkipped.Load(),
		HealthSeen:      c.healthSeen.Load(),
		RedisErrors:     c.redisErrors.Load(),
		SinkDelivered:   make(map[string]uint64),
		SinkErrors:      make(map[string]uint64),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.byType {
		s.ByType[k] = v.Load()
	}
	for k, v := range c.bySinkD {
		s.SinkDelivered[k] = v.Load()
	}
	for k, v := range c.bySinkE {
		s.SinkErrors[k] = v.Load()
	}
	return s
}

// LogBanner writes the classic one-line summary at info level.
func (c *Counters) LogBanner(logger *logging.Logger) {
	s := c.Snapshot()

	args := []any{
		"uptime", s.Uptime.Round(time.Second).String(),
		"events", s.Events,
		"invalid_json", s.InvalidJSON,
		"enriched", s.Enriched,
		"fingerprint_writes", s.FingerprintSeen,
		"dhcp_writes", s.DHCPWrites,
		"ndp", s.NDPEmitted,
		"ndp_skipped", s.NDPSkipped,
	}

	// Stable ordering keeps the banner diffable across runs.
	for _, k := range sortedKeys(s.ByType) {
		args = append(args, "type_"+k, s.ByType[k])
	}
	for _, k := range sortedKeys(s.SinkDelivered) {
		args = append(args, "sink_"+k, s.SinkDelivered[k])
	}
	for _, k := range sortedKeys(s.SinkErrors) {
		args = append(args, "sink_"+k+"_errors", s.SinkErrors[k])
	}

	logger.Info("statistics", args...)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
