// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package dedup implements the time-bounded sets that make event
// application idempotent: once a server message id or membership key
// has been seen, re-applying it within the TTL is suppressed.
//
// The windows are owned fields on the engine, shared across every
// room context it opens. Sharing is required: when several contexts
// for the same room are mounted at once, a redelivered membership
// frame must interrupt the user exactly once, regardless of which
// context sees it first. Entries expire on their own TTL; they are
// swept on access, never reference-counted against a consumer's
// lifetime.
package dedup

import (
	"sync"
	"time"

	"github.com/sona-chat/sona/lib/clock"
)

// Default TTLs. Message ids stay hot longer than membership keys
// because the backend retransmits message frames across reconnect
// boundaries, while membership frames only double up in short bursts.
const (
	MessageTTL    = 10 * time.Second
	MembershipTTL = 5 * time.Second
)

// Window is a TTL-bounded set of string keys. Expired entries are
// swept lazily on every call that touches the window.
type Window struct {
	mu    sync.Mutex
	clock clock.Clock
	ttl   time.Duration
	seen  map[string]time.Time
}

// NewWindow creates a window with the given TTL.
func NewWindow(clk clock.Clock, ttl time.Duration) *Window {
	return &Window{
		clock: clk,
		ttl:   ttl,
		seen:  make(map[string]time.Time),
	}
}

// Observe records key and reports whether it was already present and
// unexpired. A true result means the caller is looking at a
// redelivery and must discard the event.
func (w *Window) Observe(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.sweep(now)

	if _, ok := w.seen[key]; ok {
		return true
	}
	w.seen[key] = now
	return false
}

// Contains reports whether key is present and unexpired, without
// recording it.
func (w *Window) Contains(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweep(w.clock.Now())
	_, ok := w.seen[key]
	return ok
}

// Len returns the number of unexpired entries.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweep(w.clock.Now())
	return len(w.seen)
}

// sweep drops expired entries. Caller must hold w.mu.
func (w *Window) sweep(now time.Time) {
	for key, inserted := range w.seen {
		if now.Sub(inserted) >= w.ttl {
			delete(w.seen, key)
		}
	}
}

// Windows bundles the two process-wide dedup sets.
type Windows struct {
	// Messages holds recently-seen server message ids.
	Messages *Window
	// Membership holds recently-seen membership dedup keys
	// (action|roomId|subjectUserId).
	Membership *Window
}

// NewWindows creates both windows with their default TTLs.
func NewWindows(clk clock.Clock) *Windows {
	return &Windows{
		Messages:   NewWindow(clk, MessageTTL),
		Membership: NewWindow(clk, MembershipTTL),
	}
}
