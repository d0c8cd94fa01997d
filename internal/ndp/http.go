// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processHTTP emits up to two observations per request: the full URL
// and the user agent, each against its own slot. A repeated URL ends
// the event early; a repeated or absent user agent only drops the
// second half.
func (c *Collector) processHTTP(ctx context.Context, e *event.Event) {
	h, ok := e.SubOrParse("http")
	if !ok {
		return
	}

	fullURL := str(h, "hostname") + str(h, "url")
	userAgent := str(h, "http_user_agent")

	urlID := md5Hex(fullURL)
	if urlID == c.lastHTTP {
		c.skip("http", urlID)
		return
	}

	doc := map[string]any{
		"type":    "http",
		"src_ip":  e.Str("src_ip"),
		"dest_ip": e.Str("dest_ip"),
		"flow_id": e.Str("flow_id"),
		"url":     fullURL,
	}
	c.common(doc, e)

	put(doc, "user_agent", userAgent)
	put(doc, "method", str(h, "method"))
	doc["status"] = int64Of(h, "status")
	doc["length"] = int64Of(h, "length")

	c.emit(ctx, "http", urlID, doc, &c.lastHTTP)

	if userAgent == "" {
		return
	}

	uaID := md5Hex(userAgent)
	if uaID == c.lastUserAgent {
		c.skip("user_agent", uaID)
		return
	}

	uaDoc := map[string]any{
		"type":       "user_agent",
		"src_ip":     e.Str("src_ip"),
		"dest_ip":    e.Str("dest_ip"),
		"flow_id":    e.Str("flow_id"),
		"user_agent": userAgent,
	}
	c.common(uaDoc, e)

	c.emit(ctx, "user_agent", uaID, uaDoc, &c.lastUserAgent)
}
