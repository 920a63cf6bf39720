// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch provides the typed pub/sub bus at the center of the
// engine: the single fan-out point for inbound transport frames and
// internal signals.
//
// A [Dispatcher] is an explicitly constructed instance, not a
// package-level bus, so tests and multi-account processes can run
// fully isolated engines side by side. Publish delivers synchronously
// to all handlers registered at publish time, in registration order,
// on the publisher's goroutine. There is no queuing, no backpressure,
// and no cross-process delivery.
package dispatch
