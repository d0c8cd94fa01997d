// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processFTP records interesting control commands, typically the
// transfer ones, with whatever argument followed them.
func (c *Collector) processFTP(ctx context.Context, e *event.Event) {
	ftp, ok := e.SubOrParse("ftp")
	if !ok {
		return
	}

	command := str(ftp, "command")
	if !c.ftpCommands[command] {
		return
	}
	if _, ok := ftp["command_data"]; !ok {
		return
	}
	data := str(ftp, "command_data")

	id := md5Hex(command + "|" + data)
	if id == c.lastFTP {
		c.skip("ftp", id)
		return
	}

	doc := map[string]any{
		"type":    "ftp",
		"src_ip":  e.Str("src_ip"),
		"dest_ip": e.Str("dest_ip"),
		"flow_id": e.Str("flow_id"),
	}
	c.common(doc, e)

	put(doc, "command", command)
	put(doc, "command_data", data)

	c.emit(ctx, "ftp", id, doc, &c.lastFTP)
}
