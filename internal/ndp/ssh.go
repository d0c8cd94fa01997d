// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ndp

import (
	"context"
	"strconv"

	"github.com/VVelox/meer/internal/event"
)

// processSSH records client and server banners. The id pins the server
// endpoint plus both version strings, so a new client implementation
// against a known server is still observed.
func (c *Collector) processSSH(ctx context.Context, e *event.Event) {
	ssh, ok := e.SubOrParse("ssh")
	if !ok {
		return
	}

	client := nested(ssh, "client")
	server := nested(ssh, "server")

	clientProto := str(client, "proto_version")
	clientVersion := str(client, "software_version")
	serverProto := str(server, "proto_version")
	serverVersion := str(server, "software_version")

	if c.cfg.CompatClientVersions {
		// Legacy reading: the server version repeated the client's
		// banner whenever a server object was present at all.
		serverVersion = ""
		if server != nil {
			serverVersion = clientVersion
		}
		serverProto = ""
	}

	destIP := e.Str("dest_ip")
	destPort := e.Int64("dest_port")

	seed := destIP + ":" + strconv.FormatInt(destPort, 10) + ":" + serverVersion + ":" + clientVersion
	id := md5Hex(seed)
	if id == c.lastSSH {
		c.skip("ssh", id)
		return
	}

	doc := map[string]any{
		"type":    "ssh",
		"src_ip":  e.Str("src_ip"),
		"dest_ip": destIP,
		"flow_id": e.Str("flow_id"),
	}
	c.common(doc, e)

	if p := e.Int64("src_port"); p != 0 {
		doc["src_port"] = p
	}
	if destPort != 0 {
		doc["dest_port"] = destPort
	}

	put(doc, "client_proto", clientProto)
	put(doc, "client_version", clientVersion)
	put(doc, "server_proto", serverProto)
	put(doc, "server_version", serverVersion)

	c.emit(ctx, "ssh", id, doc, &c.lastSSH)
}
