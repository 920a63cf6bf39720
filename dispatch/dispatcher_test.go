// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"io"
	"log/slog"
	"testing"
)

func newTestDispatcher() *Dispatcher {
	return New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestPublishRegistrationOrder(t *testing.T) {
	dispatcher := newTestDispatcher()

	var order []string
	dispatcher.Register("evt", func(any) { order = append(order, "first") })
	dispatcher.Register("evt", func(any) { order = append(order, "second") })
	dispatcher.Register("evt", func(any) { order = append(order, "third") })

	dispatcher.Publish("evt", nil)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("delivered to %d handlers, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestPublishPayload(t *testing.T) {
	dispatcher := newTestDispatcher()

	var got any
	dispatcher.Register("evt", func(payload any) { got = payload })
	dispatcher.Publish("evt", 42)

	if got != 42 {
		t.Fatalf("payload = %v, want 42", got)
	}
}

func TestPublishUnknownEvent(t *testing.T) {
	dispatcher := newTestDispatcher()
	// Must not panic or deliver anywhere.
	dispatcher.Publish("nobody-listens", "payload")
}

func TestUnregister(t *testing.T) {
	dispatcher := newTestDispatcher()

	calls := 0
	unregister := dispatcher.Register("evt", func(any) { calls++ })

	dispatcher.Publish("evt", nil)
	unregister()
	dispatcher.Publish("evt", nil)

	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	// Idempotent: a second call must not remove someone else.
	survived := 0
	dispatcher.Register("evt", func(any) { survived++ })
	unregister()
	dispatcher.Publish("evt", nil)
	if survived != 1 {
		t.Fatalf("surviving handler called %d times, want 1", survived)
	}
}

func TestHandlerPanicContained(t *testing.T) {
	dispatcher := newTestDispatcher()

	var delivered []string
	dispatcher.Register("evt", func(any) { delivered = append(delivered, "before") })
	dispatcher.Register("evt", func(any) { panic("handler exploded") })
	dispatcher.Register("evt", func(any) { delivered = append(delivered, "after") })

	// Must not propagate to the publisher.
	dispatcher.Publish("evt", nil)

	if len(delivered) != 2 || delivered[0] != "before" || delivered[1] != "after" {
		t.Fatalf("sibling deliveries = %v, want [before after]", delivered)
	}
}

func TestRegisterDuringDispatch(t *testing.T) {
	dispatcher := newTestDispatcher()

	lateCalls := 0
	dispatcher.Register("evt", func(any) {
		dispatcher.Register("evt", func(any) { lateCalls++ })
	})

	dispatcher.Publish("evt", nil)
	if lateCalls != 0 {
		t.Fatalf("handler registered mid-dispatch received the in-flight event")
	}

	dispatcher.Publish("evt", nil)
	if lateCalls != 1 {
		t.Fatalf("late handler called %d times on next publish, want 1", lateCalls)
	}
}

func TestUnregisterSiblingDuringDispatch(t *testing.T) {
	dispatcher := newTestDispatcher()

	siblingCalls := 0
	var unregisterSibling func()
	dispatcher.Register("evt", func(any) { unregisterSibling() })
	unregisterSibling = dispatcher.Register("evt", func(any) { siblingCalls++ })

	// The sibling was registered when Publish started, so the
	// removal is deferred to the next publish.
	dispatcher.Publish("evt", nil)
	if siblingCalls != 1 {
		t.Fatalf("sibling called %d times during in-flight dispatch, want 1", siblingCalls)
	}

	dispatcher.Publish("evt", nil)
	if siblingCalls != 1 {
		t.Fatalf("sibling called %d times after removal, want 1", siblingCalls)
	}
}

func TestUnregisterAll(t *testing.T) {
	dispatcher := newTestDispatcher()

	calls := 0
	dispatcher.Register("a", func(any) { calls++ })
	dispatcher.Register("b", func(any) { calls++ })

	dispatcher.UnregisterAll()
	dispatcher.Publish("a", nil)
	dispatcher.Publish("b", nil)

	if calls != 0 {
		t.Fatalf("handlers survived UnregisterAll: %d calls", calls)
	}
}
