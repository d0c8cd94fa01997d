// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package event decodes EVE JSON lines and gives the rest of the bridge
// tolerant, non-panicking access to their fields. Events keep the raw
// line around so unmodified events render byte for byte.
package event

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/VVelox/meer/internal/errors"
)

// Event is a single decoded EVE record.
type Event struct {
	// Type is the event_type discriminator, always non-empty for a
	// parsed event.
	Type string

	raw      []byte
	fields   map[string]any
	modified bool
}

// Parse decodes one NDJSON line. It fails when the line is not a JSON
// object or when event_type is missing, empty, or not a string.
func Parse(line []byte) (*Event, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, errors.New(errors.KindParse, "empty event line")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "malformed event JSON")
	}

	et, _ := fields["event_type"].(string)
	if et == "" {
		return nil, errors.New(errors.KindParse, "event has no event_type")
	}

	raw := make([]byte, len(trimmed))
	copy(raw, trimmed)

	return &Event{
		Type:   et,
		raw:    raw,
		fields: fields,
	}, nil
}

// Raw returns the original line as received.
func (e *Event) Raw() []byte {
	return e.raw
}

// Fields exposes the decoded object. Callers that mutate it must call
// MarkModified so Render re-encodes.
func (e *Event) Fields() map[string]any {
	return e.fields
}

// MarkModified forces Render to re-encode from the decoded fields.
func (e *Event) MarkModified() {
	e.modified = true
}

// Str walks nested objects by key and returns the value as a string.
// Missing keys, non-object intermediates, and null all yield "".
// Numbers and booleans are stringified the way the JSON carried them.
func (e *Event) Str(keys ...string) string {
	v, ok := e.lookup(keys)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Int64 walks nested objects by key and returns the value as an int64.
// Strings holding integers parse; anything else yields 0.
func (e *Event) Int64(keys ...string) int64 {
	v, ok := e.lookup(keys)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			// Fractional stats values truncate.
			if f, ferr := t.Float64(); ferr == nil {
				return int64(f)
			}
			return 0
		}
		return n
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Bool walks nested objects by key and returns the value as a bool.
func (e *Event) Bool(keys ...string) bool {
	v, ok := e.lookup(keys)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	case json.Number:
		n, _ := t.Int64()
		return n != 0
	default:
		return false
	}
}

// Has reports whether the nested key path exists at all.
func (e *Event) Has(keys ...string) bool {
	_, ok := e.lookup(keys)
	return ok
}

func (e *Event) lookup(keys []string) (any, bool) {
	var cur any = e.fields
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[k]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Sub returns the object stored under key, when it is an object.
func (e *Event) Sub(key string) (map[string]any, bool) {
	obj, ok := e.fields[key].(map[string]any)
	return obj, ok
}

// SubOrParse returns the object under key, additionally accepting the
// object encoded as a JSON string, as some producers emit for "flow".
func (e *Event) SubOrParse(key string) (map[string]any, bool) {
	switch t := e.fields[key].(type) {
	case map[string]any:
		return t, true
	case string:
		dec := json.NewDecoder(bytes.NewReader([]byte(t)))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, false
		}
		return obj, true
	default:
		return nil, false
	}
}

// Set stores a top-level field and marks the event modified.
func (e *Event) Set(key string, v any) {
	e.fields[key] = v
	e.modified = true
}

// Delete removes a top-level field and marks the event modified.
func (e *Event) Delete(key string) {
	if _, ok := e.fields[key]; !ok {
		return
	}
	delete(e.fields, key)
	e.modified = true
}

// Render returns the event as a single JSON line. Unmodified events
// return the original bytes verbatim.
func (e *Event) Render() ([]byte, error) {
	if !e.modified {
		return e.raw, nil
	}
	out, err := json.Marshal(e.fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "re-encode event")
	}
	return out, nil
}

// RenderedSize returns the byte length Render would produce without
// keeping the encoding.
func (e *Event) RenderedSize() (int, error) {
	if !e.modified {
		return len(e.raw), nil
	}
	out, err := json.Marshal(e.fields)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "re-encode event")
	}
	return len(out), nil
}
