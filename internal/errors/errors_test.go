// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"
)

func TestError(t *testing.T) {
	err := New(KindParse, "invalid event line")
	if err.Error() != "invalid event line" {
		t.Errorf("expected 'invalid event line', got '%s'", err.Error())
	}

	wrapped := Wrap(err, KindInternal, "failed to decode")
	if wrapped.Error() != "failed to decode: invalid event line" {
		t.Errorf("expected 'failed to decode: invalid event line', got '%s'", wrapped.Error())
	}
}

func TestGetKind(t *testing.T) {
	err := New(KindParse, "invalid event line")
	if GetKind(err) != KindParse {
		t.Errorf("expected KindParse, got %v", GetKind(err))
	}

	wrapped := Wrap(err, KindStorage, "insert failed")
	if GetKind(wrapped) != KindStorage {
		t.Errorf("expected KindStorage, got %v", GetKind(wrapped))
	}

	if GetKind(errors.New("std error")) != KindUnknown {
		t.Errorf("expected KindUnknown, got %v", GetKind(errors.New("std error")))
	}
}

func TestIsKind(t *testing.T) {
	err := Errorf(KindConfig, "bad attribute %q", "interface")
	if !IsKind(err, KindConfig) {
		t.Errorf("expected IsKind(KindConfig) to be true")
	}
	if IsKind(err, KindNetwork) {
		t.Errorf("expected IsKind(KindNetwork) to be false")
	}
}

func TestAttributes(t *testing.T) {
	err := New(KindParse, "invalid event line")
	err = Attr(err, "field", "event_type")
	err = Attr(err, "offset", 42)

	attrs := GetAttributes(err)
	if attrs["field"] != "event_type" {
		t.Errorf("expected event_type, got %v", attrs["field"])
	}
	if attrs["offset"] != 42 {
		t.Errorf("expected 42, got %v", attrs["offset"])
	}

	wrapped := Wrap(err, KindInternal, "failed")
	wrapped = Attr(wrapped, "operation", "route")

	allAttrs := GetAttributes(wrapped)
	if allAttrs["field"] != "event_type" || allAttrs["operation"] != "route" {
		t.Errorf("missing attributes: %v", allAttrs)
	}
}
