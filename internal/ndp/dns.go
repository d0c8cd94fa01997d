// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processDNS records looked-up names. Only queries are kept; answers
// repeat the query's rrname and would only churn the slot.
func (c *Collector) processDNS(ctx context.Context, e *event.Event) {
	d, ok := e.SubOrParse("dns")
	if !ok {
		return
	}
	if str(d, "type") != "query" {
		return
	}

	rrname := str(d, "rrname")
	if rrname == "" {
		return
	}

	id := md5Hex(rrname)
	if id == c.lastDNS {
		c.skip("dns", id)
		return
	}

	doc := map[string]any{
		"type":    "dns",
		"flow_id": e.Str("flow_id"),
		"rrname":  rrname,
	}
	c.common(doc, e)

	put(doc, "src_ip", e.Str("src_ip"))
	put(doc, "dest_ip", e.Str("dest_ip"))
	put(doc, "rrtype", str(d, "rrtype"))

	c.emit(ctx, "dns", id, doc, &c.lastDNS)
}
