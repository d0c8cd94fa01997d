// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package pipeline wires the stages together: parse, rewrite,
// correlate, collect, and fan out to the sinks.
package pipeline

import (
	"context"

	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/decode"
	"github.com/VVelox/meer/internal/errors"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/fingerprint"
	"github.com/VVelox/meer/internal/health"
	"github.com/VVelox/meer/internal/iprange"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/ndp"
	"github.com/VVelox/meer/internal/sinks"
	"github.com/VVelox/meer/internal/stats"
)

// SinkPolicy binds a sink to its delivery policy. A nil Sink disables
// the target entirely.
type SinkPolicy struct {
	Sink sinks.Sink

	// Alerts delivers rewritten alerts.
	Alerts bool

	// Types lists the event types delivered generically.
	Types []string
}

// RouterConfig assembles the router. Nil handles disable their
// feature. The NDP collector attaches separately because it needs the
// router as its emitter.
type RouterConfig struct {
	Rewriter *decode.Rewriter
	Store    *fingerprint.Store
	Interest iprange.Set
	MaxBytes int
	Health   *health.Checker
	Stats    *stats.Tracker
	Clients  *decode.ClientStats
	Hub      *Hub

	SQL      SinkPolicy
	KV       SinkPolicy
	Search   SinkPolicy
	Pipe     SinkPolicy
	File     SinkPolicy
	External SinkPolicy
}

type binding struct {
	name   string
	sink   sinks.Sink
	alerts bool
	types  map[string]bool
}

func bind(name string, p SinkPolicy) binding {
	b := binding{name: name, sink: p.Sink, alerts: p.Alerts}
	if len(p.Types) > 0 {
		b.types = make(map[string]bool, len(p.Types))
		for _, t := range p.Types {
			b.types[t] = true
		}
	}
	return b
}

// Router owns the per-event policy: which stages see an event and
// which sinks it lands in.
type Router struct {
	rewriter  *decode.Rewriter
	store     *fingerprint.Store
	interest  iprange.Set
	maxBytes  int
	collector *ndp.Collector
	health    *health.Checker
	stats     *stats.Tracker
	clients   *decode.ClientStats
	hub       *Hub

	sql      binding
	kv       binding
	search   binding
	pipe     binding
	file     binding
	external binding

	ctr    *counters.Counters
	logger *logging.Logger
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg RouterConfig, ctr *counters.Counters, logger *logging.Logger) *Router {
	return &Router{
		rewriter: cfg.Rewriter,
		store:    cfg.Store,
		interest: cfg.Interest,
		maxBytes: cfg.MaxBytes,
		health:   cfg.Health,
		stats:    cfg.Stats,
		clients:  cfg.Clients,
		hub:      cfg.Hub,
		sql:      bind("sql", cfg.SQL),
		kv:       bind("redis", cfg.KV),
		search:   bind("elasticsearch", cfg.Search),
		pipe:     bind("pipe", cfg.Pipe),
		file:     bind("file", cfg.File),
		external: bind("external", cfg.External),
		ctr:      ctr,
		logger:   logger.WithComponent("router"),
	}
}

// AttachCollector hooks the NDP collector in. Called once during
// startup, before events flow.
func (r *Router) AttachCollector(c *ndp.Collector) {
	r.collector = c
}

// Route drives one parsed event through the stages. Failures are
// per-stage and per-sink; the event always finishes.
func (r *Router) Route(ctx context.Context, e *event.Event) {
	if e.Type == "alert" {
		r.routeAlert(ctx, e)
		return
	}

	switch e.Type {
	case "dhcp":
		if r.store != nil {
			if err := r.store.WriteDHCP(ctx, e); err != nil {
				r.logger.Warn("dhcp correlation write failed", "error", err)
			}
		}
	case "stats":
		if r.stats != nil {
			r.stats.Observe(e)
		}
	case "client_stats":
		if r.clients == nil {
			return
		}
		r.clients.Observe(e)
	}

	if r.collector != nil {
		r.collector.Process(ctx, e)
	}

	rec, err := sinks.ForEvent(e)
	if err != nil {
		r.logger.Warn("could not render event", "type", e.Type, "error", err)
		return
	}
	r.tap(e.Type, rec)

	for _, b := range []binding{r.pipe, r.file, r.kv, r.search} {
		if b.sink != nil && b.types[e.Type] {
			r.deliver(ctx, b, rec)
		}
	}
}

// routeAlert handles the alert class: rewrite, health consumption,
// fingerprint write-or-enrich, then the alert sink set. Alerts never
// reach the generic per-type routing.
func (r *Router) routeAlert(ctx context.Context, e *event.Event) {
	r.rewriter.Rewrite(ctx, e)

	if r.health != nil && r.health.Match(e) {
		r.health.Observe(ctx, e)
		return
	}

	// A fingerprint rule is consumed into the correlation store; a
	// plain alert gets correlation data spliced in.
	consumed := false
	if r.store != nil {
		if md := fingerprint.ExtractMetadata(e); md.Present {
			if err := r.store.WriteFingerprint(ctx, e, md); err != nil {
				r.logger.Warn("fingerprint write failed", "error", err)
			}
			consumed = true
		} else if err := r.store.Enrich(ctx, e, r.interest, r.maxBytes); err != nil {
			r.logger.Warn("alert enrichment failed", "error", err)
		}
	}

	rec, err := sinks.ForEvent(e)
	if err != nil {
		r.logger.Warn("could not render alert", "error", err)
		return
	}
	r.tap("alert", rec)

	if !consumed {
		for _, b := range []binding{r.sql, r.kv, r.pipe, r.file} {
			if b.sink != nil && b.alerts {
				r.deliver(ctx, b, rec)
			}
		}
	}

	// Consumed alerts may still reach the search cluster and the
	// external program.
	if r.search.sink != nil && r.search.alerts {
		r.deliver(ctx, r.search, rec)
	}
	if r.external.sink != nil {
		r.deliver(ctx, r.external, rec)
	}
}

// EmitNDP hands an observation document to the search sink. The
// collector retries the observation later when the handoff fails.
func (r *Router) EmitNDP(ctx context.Context, id string, doc []byte) error {
	if r.search.sink == nil {
		return errors.New(errors.KindInternal, "ndp collection requires the search sink")
	}
	rec := sinks.ForNDP(id, doc)
	if err := r.search.sink.Deliver(ctx, rec); err != nil {
		r.ctr.SinkError(r.search.name)
		return err
	}
	r.ctr.SinkDelivered(r.search.name)
	return nil
}

func (r *Router) deliver(ctx context.Context, b binding, rec *sinks.Record) {
	if err := b.sink.Deliver(ctx, rec); err != nil {
		r.ctr.SinkError(b.name)
		r.logger.Warn("delivery failed", "sink", b.name, "type", rec.Type, "error", err)
		return
	}
	r.ctr.SinkDelivered(b.name)
}

func (r *Router) tap(eventType string, rec *sinks.Record) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(eventType, rec.Data)
}
