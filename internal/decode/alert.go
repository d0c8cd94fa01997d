// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package decode normalizes alert events before they are enriched and
// routed, and tracks Sagan client_stats reports.
package decode

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/VVelox/meer/internal/config"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/geoip"
	"github.com/VVelox/meer/internal/logging"
	"github.com/VVelox/meer/internal/revdns"
)

const classificationTag = "[Classification: "

// RewriterConfig carries the optional enrichment handles. Nil DNS or
// GeoIP disables that enrichment.
type RewriterConfig struct {
	// Host is the reporting hostname stamped on every alert.
	Host string

	// Classifications maps lowercased shorthand names to their
	// description and priority, for alerts that arrive without a
	// category.
	Classifications map[string]config.Classification

	// FixupClassification enables repairing alert.category from the
	// trailing "[Classification: x]" marker Sagan leaves in the
	// signature text.
	FixupClassification bool

	DNS   *revdns.Resolver
	GeoIP *geoip.DB
}

// Rewriter rewrites alert events in place: it guarantees the rule
// fields exist, repairs missing classifications, and appends host,
// @timestamp, and the optional reverse DNS and GeoIP enrichments.
type Rewriter struct {
	host    string
	classes map[string]config.Classification
	fixup   bool
	dns     *revdns.Resolver
	geo     *geoip.DB
	logger  *logging.Logger
}

// NewRewriter builds a Rewriter from cfg.
func NewRewriter(cfg RewriterConfig, logger *logging.Logger) *Rewriter {
	return &Rewriter{
		host:    cfg.Host,
		classes: cfg.Classifications,
		fixup:   cfg.FixupClassification,
		dns:     cfg.DNS,
		geo:     cfg.GeoIP,
		logger:  logger.WithComponent("decode"),
	}
}

// Rewrite mutates e. It never fails; alerts missing pieces get zero
// values so downstream sinks see a stable shape.
func (r *Rewriter) Rewrite(ctx context.Context, e *event.Event) {
	alert, ok := e.SubOrParse("alert")
	if !ok {
		alert = map[string]any{}
	}

	if _, ok := alert["signature_id"]; !ok {
		alert["signature_id"] = json.Number("0")
	}
	if _, ok := alert["rev"]; !ok {
		alert["rev"] = json.Number("0")
	}
	if _, ok := alert["signature"]; !ok {
		alert["signature"] = ""
	}

	if r.fixup {
		r.fixClassification(alert)
	}

	// Set also normalizes a string-wrapped alert object back into a
	// real one.
	e.Set("alert", alert)

	e.Set("host", r.host)

	if ts := e.Str("timestamp"); ts != "" {
		norm := normalizeOffset(ts)
		if norm != ts {
			e.Set("timestamp", norm)
		}
		e.Set("@timestamp", norm)
	}

	if r.dns != nil {
		if name := r.dns.Lookup(ctx, e.Str("src_ip")); name != "" {
			e.Set("src_dns", name)
		}
		if name := r.dns.Lookup(ctx, e.Str("dest_ip")); name != "" {
			e.Set("dest_dns", name)
		}
	}

	if r.geo != nil {
		if rec, ok := r.geo.Lookup(e.Str("src_ip")); ok {
			e.Set("geoip_src", rec)
		}
		if rec, ok := r.geo.Lookup(e.Str("dest_ip")); ok {
			e.Set("geoip_dest", rec)
		}
	}
}

// fixClassification fills alert.category and alert.severity for rules
// whose signature text ends in "[Classification: shorthand]". Sagan
// emits that marker instead of a category when its rules reference a
// classification file Meer has but Sagan did not load.
func (r *Rewriter) fixClassification(alert map[string]any) {
	if s, _ := alert["category"].(string); s != "" {
		return
	}
	sig, _ := alert["signature"].(string)
	if !strings.HasSuffix(sig, "]") {
		return
	}
	i := strings.LastIndex(sig, classificationTag)
	if i < 0 {
		return
	}
	short := strings.ToLower(strings.TrimSpace(sig[i+len(classificationTag) : len(sig)-1]))
	cls, ok := r.classes[short]
	if !ok {
		r.logger.Debug("unknown classification shorthand", "shorthand", short)
		return
	}
	alert["category"] = cls.Description
	alert["severity"] = json.Number(strconv.Itoa(cls.Priority))
}

// normalizeOffset rewrites a trailing RFC-822 style numeric zone
// (+0000) into the RFC 3339 form (+00:00). Suricata and Sagan both
// emit the former.
func normalizeOffset(ts string) string {
	n := len(ts)
	if n < 5 {
		return ts
	}
	sign := ts[n-5]
	if sign != '+' && sign != '-' {
		return ts
	}
	for _, c := range ts[n-4:] {
		if c < '0' || c > '9' {
			return ts
		}
	}
	return ts[:n-2] + ":" + ts[n-2:]
}
