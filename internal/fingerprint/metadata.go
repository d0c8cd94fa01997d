// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fingerprint turns passive fingerprint rules into correlation
// records and splices them back into later alerts.
package fingerprint

import (
	"strconv"
	"strings"

	"github.com/VVelox/meer/internal/event"
)

// Metadata is what a rule's metadata says about fingerprinting.
type Metadata struct {
	// Present is true iff at least one fingerprint_* key occurred,
	// which is what makes a rule a fingerprint rule.
	Present bool

	OS     string
	Source string
	// Type is normalised to "client", "server", or "".
	Type string
	// Expire is the requested correlation TTL in seconds, 0 when
	// unset or unparsable.
	Expire int64
}

// ExtractMetadata pulls fingerprint keys out of alert.metadata. Both
// EVE renderings are understood: the object form where each key maps
// to an array of values, and the flat "key value" string array some
// engines emit.
func ExtractMetadata(e *event.Event) Metadata {
	var md Metadata

	alert, ok := e.Sub("alert")
	if !ok {
		return md
	}

	switch m := alert["metadata"].(type) {
	case map[string]any:
		for key, val := range m {
			md.apply(key, firstString(val))
		}
	case []any:
		for _, entry := range m {
			s, ok := entry.(string)
			if !ok {
				continue
			}
			key, val, found := strings.Cut(strings.TrimSpace(s), " ")
			if !found {
				continue
			}
			md.apply(key, val)
		}
	}

	return md
}

func (md *Metadata) apply(key, val string) {
	val = strings.Trim(strings.TrimSpace(val), `"`)

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "fingerprint_os":
		md.OS = val
		md.Present = true
	case "fingerprint_source":
		md.Source = val
		md.Present = true
	case "fingerprint_expire":
		n, err := strconv.ParseInt(val, 10, 64)
		if err == nil {
			md.Expire = n
		}
		md.Present = true
	case "fingerprint_type":
		lower := strings.ToLower(val)
		switch {
		case strings.Contains(lower, "client"):
			md.Type = "client"
		case strings.Contains(lower, "server"):
			md.Type = "server"
		}
		md.Present = true
	}
}

// firstString unwraps both "val" and ["val", ...] metadata values.
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}
