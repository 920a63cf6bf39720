// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package room composes the engine pieces for one open room: it
// subscribes the timeline, read-receipt, reaction, typing-presence,
// and membership handlers on the dispatcher, owns the send
// coordinator with its pending-send registry, and drives
// reconnect-triggered resend.
//
// A [Room] is created with [Open] and torn down with Close, which
// unregisters every handler (no further delivery) and cancels every
// owned timer. State mutation is gated on the authenticated hook:
// while it reports false, events keep flowing through the dispatcher
// but the room ignores them, so background delivery cannot race a
// session teardown.
package room
