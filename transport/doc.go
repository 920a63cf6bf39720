// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries frames between the engine and the chat
// backend. A [Conn] maintains one persistent websocket: a single read
// loop decodes inbound JSON frames and republishes them on the
// dispatcher under the engine's event names, preserving per-connection
// delivery order. Connectivity transitions are published as
// connection-state-changed events, and the connection reconnects on
// its own with capped exponential backoff.
//
// Frames are JSON envelopes:
//
//	{"type": "new-message", "data": {...}}
//
// Outbound frames share the envelope and are paced by a token-bucket
// limiter so a reconnect resend burst cannot flood the socket.
//
// [HistoryClient] is the separate HTTP collaborator that loads a
// room's initial message list.
package transport
