// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ndp turns protocol events into compact network discovery
// observations. Each observation gets a content-addressed id and a
// per-type last-seen slot suppresses back-to-back repeats before they
// reach the search cluster.
package ndp

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/netip"
	"strings"
	"sync"

	"github.com/VVelox/meer/internal/counters"
	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/iprange"
	"github.com/VVelox/meer/internal/logging"
)

// Emitter delivers a finished observation to the search cluster. The
// document id doubles as the dedup id.
type Emitter interface {
	EmitNDP(ctx context.Context, id string, doc []byte) error
}

// Config carries the collection policy.
type Config struct {
	// Ignore lists networks whose internal traffic is not observed.
	Ignore iprange.Set
	// Routing names the observation types to collect.
	Routing []string
	// SMBInternal collects smb events even inside ignored networks.
	SMBInternal bool
	// SMBCommands and FTPCommands are the commands worth recording.
	SMBCommands []string
	FTPCommands []string
	// Description tags every observation when non-empty.
	Description string
	// RequireBothExternal narrows collection to events where both
	// endpoints are outside the ignore set. Off, one outside endpoint
	// is enough.
	RequireBothExternal bool
	// CompatClientVersions restores the legacy ssh reading that took
	// the server version string from the client object.
	CompatClientVersions bool
}

// Collector inspects non-alert events and emits observations.
type Collector struct {
	cfg         Config
	routing     map[string]bool
	smbCommands map[string]bool
	ftpCommands map[string]bool
	emitter     Emitter
	ctr         *counters.Counters
	logger      *logging.Logger

	// One slot per observation type. Dedup is "not twice in a row",
	// not "exactly once"; interleaved traffic re-emits.
	mu            sync.Mutex
	lastFlow      string
	lastFileinfo  string
	lastTLS       string
	lastDNS       string
	lastSSH       string
	lastHTTP      string
	lastUserAgent string
	lastSMB       string
	lastFTP       string
}

// New builds a collector delivering to emitter.
func New(cfg Config, emitter Emitter, ctr *counters.Counters, logger *logging.Logger) *Collector {
	c := &Collector{
		cfg:         cfg,
		routing:     make(map[string]bool, len(cfg.Routing)),
		smbCommands: make(map[string]bool, len(cfg.SMBCommands)),
		ftpCommands: make(map[string]bool, len(cfg.FTPCommands)),
		emitter:     emitter,
		ctr:         ctr,
		logger:      logger.WithComponent("ndp"),
	}
	for _, t := range cfg.Routing {
		c.routing[strings.ToLower(t)] = true
	}
	for _, cmd := range cfg.SMBCommands {
		c.smbCommands[cmd] = true
	}
	for _, cmd := range cfg.FTPCommands {
		c.ftpCommands[cmd] = true
	}
	return c
}

// Process dispatches one event to its protocol handler. Traffic wholly
// inside the ignore set is dropped (RequireBothExternal extends that
// to mixed traffic), except smb when SMBInternal is on.
func (c *Collector) Process(ctx context.Context, e *event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.Type == "smb" && c.routing["smb"] && c.cfg.SMBInternal {
		c.processSMB(ctx, e)
		return
	}

	srcInside := c.cfg.Ignore.ContainsString(e.Str("src_ip"))
	destInside := c.cfg.Ignore.ContainsString(e.Str("dest_ip"))
	if srcInside && destInside {
		return
	}
	if c.cfg.RequireBothExternal && (srcInside || destInside) {
		return
	}
	if !c.routing[e.Type] {
		return
	}

	switch e.Type {
	case "flow":
		c.processFlow(ctx, e)
	case "http":
		c.processHTTP(ctx, e)
	case "ssh":
		c.processSSH(ctx, e)
	case "fileinfo":
		c.processFileinfo(ctx, e)
	case "tls":
		c.processTLS(ctx, e)
	case "dns":
		c.processDNS(ctx, e)
	case "ftp":
		c.processFTP(ctx, e)
	case "smb":
		c.processSMB(ctx, e)
	}
}

// emit hands a document to the search cluster and advances the slot.
// A rejected hand-off leaves the slot untouched so the observation is
// retried on the next occurrence.
func (c *Collector) emit(ctx context.Context, obsType, id string, doc map[string]any, slot *string) {
	payload, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("failed to encode observation", "type", obsType, "error", err)
		return
	}

	if err := c.emitter.EmitNDP(ctx, id, payload); err != nil {
		c.logger.Warn("search sink rejected observation", "type", obsType, "id", id, "error", err)
		return
	}

	*slot = id
	c.ctr.NDP(obsType)
	c.logger.Debug("observation emitted", "type", obsType, "id", id)
}

func (c *Collector) skip(obsType, id string) {
	c.ctr.NDPSkip(obsType)
	c.logger.Debug("observation repeated, skipping", "type", obsType, "id", id)
}

// common copies the envelope fields every observation shares.
func (c *Collector) common(doc map[string]any, e *event.Event) {
	put(doc, "timestamp", e.Str("timestamp"))
	put(doc, "src_dns", e.Str("src_dns"))
	put(doc, "dest_dns", e.Str("dest_dns"))
	put(doc, "host", e.Str("host"))
	put(doc, "description", c.cfg.Description)
}

func md5Hex(seed string) string {
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// put sets key only for non-empty values; observations never carry
// empty strings.
func put(doc map[string]any, key, val string) {
	if val != "" {
		doc[key] = val
	}
}

func isIPv4(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.Unmap().Is4()
}

// nested descends into a subobject that may arrive native or as a
// re-serialised string.
func nested(m map[string]any, key string) map[string]any {
	switch v := m[key].(type) {
	case map[string]any:
		return v
	case string:
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err == nil {
			return out
		}
	}
	return nil
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

func int64Of(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	}
	return 0
}

func boolOf(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
