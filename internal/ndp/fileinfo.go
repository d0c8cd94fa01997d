// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processFileinfo records observed file transfers. The md5 the sensor
// already computed is the observation id; events without one carry
// nothing to address and are dropped.
func (c *Collector) processFileinfo(ctx context.Context, e *event.Event) {
	fi, ok := e.SubOrParse("fileinfo")
	if !ok {
		return
	}

	sum := str(fi, "md5")
	if sum == "" {
		return
	}
	if sum == c.lastFileinfo {
		c.skip("fileinfo", sum)
		return
	}

	doc := map[string]any{
		"type":    "fileinfo",
		"src_ip":  e.Str("src_ip"),
		"dest_ip": e.Str("dest_ip"),
		"flow_id": e.Str("flow_id"),
	}
	c.common(doc, e)

	put(doc, "app_proto", e.Str("app_proto"))
	put(doc, "md5", sum)
	put(doc, "sha1", str(fi, "sha1"))
	put(doc, "sha256", str(fi, "sha256"))
	put(doc, "filename", str(fi, "filename"))
	put(doc, "magic", str(fi, "magic"))
	doc["size"] = int64Of(fi, "size")

	c.emit(ctx, "fileinfo", sum, doc, &c.lastFileinfo)
}
