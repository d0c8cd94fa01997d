// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processTLS records certificate and JA3 observations. The id covers
// both hashes so a new client against a known server (or the reverse)
// still gets recorded.
func (c *Collector) processTLS(ctx context.Context, e *event.Event) {
	tls, _ := e.SubOrParse("tls")

	ja3 := str(nested(tls, "ja3"), "hash")
	ja3s := str(nested(tls, "ja3s"), "hash")

	if ja3 == "" && ja3s == "" {
		c.logger.Warn("tls event without ja3 or ja3s hash, is the sensor configured to send them?")
		return
	}

	id := md5Hex(ja3 + ":" + ja3s)
	if id == c.lastTLS {
		c.skip("tls", id)
		return
	}

	doc := map[string]any{
		"type":    "tls",
		"flow_id": e.Str("flow_id"),
		"src_ip":  e.Str("src_ip"),
		"dest_ip": e.Str("dest_ip"),
	}
	c.common(doc, e)

	put(doc, "fingerprint", str(tls, "fingerprint"))
	put(doc, "issuerdn", str(tls, "issuerdn"))
	put(doc, "subject", str(tls, "subject"))
	put(doc, "serial", str(tls, "serial"))
	put(doc, "sni", str(tls, "sni"))
	put(doc, "version", str(tls, "version"))
	put(doc, "notbefore", str(tls, "notbefore"))
	put(doc, "notafter", str(tls, "notafter"))

	// One hash may legitimately be absent; the pair is the identity.
	doc["ja3"] = ja3
	doc["ja3s"] = ja3s

	c.emit(ctx, "tls", id, doc, &c.lastTLS)
}
