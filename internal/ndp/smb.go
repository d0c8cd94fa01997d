// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// processSMB records file-touching commands. The id is command plus
// filename, so reads and writes of the same file stay distinct; that
// granularity is the lateral-movement signal.
func (c *Collector) processSMB(ctx context.Context, e *event.Event) {
	smb, ok := e.SubOrParse("smb")
	if !ok {
		return
	}

	command := str(smb, "command")
	if !c.smbCommands[command] {
		return
	}
	if _, ok := smb["filename"]; !ok {
		return
	}
	filename := str(smb, "filename")

	id := md5Hex(command + "|" + filename)
	if id == c.lastSMB {
		c.skip("smb", id)
		return
	}

	doc := map[string]any{
		"type":    "smb",
		"src_ip":  e.Str("src_ip"),
		"dest_ip": e.Str("dest_ip"),
		"flow_id": e.Str("flow_id"),
	}
	c.common(doc, e)

	put(doc, "command", command)
	put(doc, "filename", filename)

	c.emit(ctx, "smb", id, doc, &c.lastSMB)
}
