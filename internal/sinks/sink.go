// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sinks holds the fan-out targets an event can be delivered
// to. Each sink is independent; the router treats a failing sink as
// that sink's problem and keeps delivering to the rest.
package sinks

import (
	"context"

	"github.com/VVelox/meer/internal/event"
)

// Record is one deliverable document.
type Record struct {
	// Event is the parsed event, for sinks that need field access.
	// Nil for NDP observation documents.
	Event *event.Event

	// Type is the event_type, or "ndp" for observation documents.
	Type string

	// Data is the rendered JSON object, without a trailing newline.
	Data []byte

	// DocID addresses the document in the search cluster. Set only
	// for NDP observations.
	DocID string
}

// Sink is an output target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec *Record) error
	Close() error
}

// ForEvent renders e into a Record.
func ForEvent(e *event.Event) (*Record, error) {
	data, err := e.Render()
	if err != nil {
		return nil, err
	}
	return &Record{Event: e, Type: e.Type, Data: data}, nil
}

// ForNDP wraps an observation document addressed by id.
func ForNDP(id string, doc []byte) *Record {
	return &Record{Type: "ndp", Data: doc, DocID: id}
}
