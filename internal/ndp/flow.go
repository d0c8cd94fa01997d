// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processFlow records the outside endpoints of finished flows. Both
// endpoints are digested against the same slot, so a flow naming
// either endpoint of the previous observation counts as a repeat.
func (c *Collector) processFlow(ctx context.Context, e *event.Event) {
	srcIP := e.Str("src_ip")
	destIP := e.Str("dest_ip")

	if c.lastFlow == md5Hex(srcIP) || c.lastFlow == md5Hex(destIP) {
		c.skip("flow", c.lastFlow)
		return
	}

	flow, ok := e.SubOrParse("flow")
	if !ok {
		return
	}
	if str(flow, "state") == "" {
		return
	}

	for _, direction := range [2]string{"src", "dest"} {
		ip := srcIP
		if direction == "dest" {
			ip = destIP
		}

		// Only literal IPv4 endpoints outside the ignore set are
		// worth an observation.
		if c.cfg.Ignore.ContainsString(ip) || !isIPv4(ip) {
			continue
		}

		doc := map[string]any{
			"type":       "flow",
			"src_ip":     srcIP,
			"dest_ip":    destIP,
			"flow_id":    e.Str("flow_id"),
			"direction":  direction,
			"ip_address": ip,
		}
		c.common(doc, e)

		put(doc, "proto", e.Str("proto"))
		appProto := e.Str("app_proto")
		if appProto == "" {
			appProto = "unknown"
		}
		doc["app_proto"] = appProto

		// Zero is meaningful for the byte counts and the age.
		doc["bytes_toserver"] = int64Of(flow, "bytes_toserver")
		doc["bytes_toclient"] = int64Of(flow, "bytes_toclient")
		doc["age"] = int64Of(flow, "age")
		doc["alerted"] = boolOf(flow, "alerted")

		put(doc, "state", str(flow, "state"))
		put(doc, "reason", str(flow, "reason"))
		put(doc, "start", str(flow, "start"))
		put(doc, "end", str(flow, "end"))

		c.emit(ctx, "flow", md5Hex(ip), doc, &c.lastFlow)
	}
}
