// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/VVelox/meer/internal/event"
	"github.com/VVelox/meer/internal/iprange"
)

// Enrich splices stored correlations into an alert. For each endpoint
// inside the interest set it attaches the dhcp record (when present)
// and every fingerprint event record, independently of each other.
//
// Splicing stops before the rendered event would exceed maxBytes; an
// event already over the bound passes through untouched.
func (s *Store) Enrich(ctx context.Context, e *event.Event, interested iprange.Set, maxBytes int) error {
	if interested.Empty() {
		return nil
	}

	size, err := e.RenderedSize()
	if err != nil {
		return err
	}
	if maxBytes > 0 && size > maxBytes {
		s.logger.Warn("alert already exceeds payload bound, skipping enrichment",
			"size", size, "bound", maxBytes)
		s.ctr.EnrichTruncated()
		return nil
	}

	spliced := 0
	truncated := false

dirs:
	for _, dir := range [2]string{"src", "dest"} {
		ip := e.Str(dir + "_ip")
		if ip == "" || !interested.ContainsString(ip) {
			continue
		}

		if raw, ok := s.GetDHCP(ctx, ip); ok {
			key := "fingerprint_dhcp_" + dir
			if !s.splice(e, key, decodeRecord(raw), maxBytes) {
				truncated = true
				break dirs
			}
			spliced++
		}

		idx := 0
		for _, raw := range s.ScanEventRecords(ctx, ip) {
			rec, ok := decodeObject(raw)
			if !ok {
				s.logger.Warn("stored fingerprint record is not valid JSON, ignoring", "ip", ip)
				continue
			}
			fp, ok := rec["fingerprint"]
			if !ok {
				s.logger.Warn("stored fingerprint record has no fingerprint object, ignoring", "ip", ip)
				continue
			}

			key := fmt.Sprintf("fingerprint_%s_%d", dir, idx)
			if !s.splice(e, key, fp, maxBytes) {
				truncated = true
				break dirs
			}
			spliced++
			idx++
		}
	}

	if truncated {
		s.ctr.EnrichTruncated()
	}
	if spliced > 0 {
		s.ctr.Enriched()
	}
	return nil
}

// splice sets key and verifies the bound, rolling back when the event
// would grow past it.
func (s *Store) splice(e *event.Event, key string, val any, maxBytes int) bool {
	e.Set(key, val)
	if maxBytes <= 0 {
		return true
	}

	size, err := e.RenderedSize()
	if err != nil {
		e.Delete(key)
		return false
	}
	if size > maxBytes {
		e.Delete(key)
		s.logger.Warn("dropping correlation, event would exceed payload bound",
			"key", key, "bound", maxBytes)
		return false
	}
	return true
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

// decodeRecord keeps numbers exact while turning raw bytes into a
// spliceable value. Invalid input was filtered by the caller.
func decodeRecord(raw json.RawMessage) any {
	obj, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	return obj
}
