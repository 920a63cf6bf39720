// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package typing implements both directions of the typing indicator.
//
// Outbound, [Coordinator] is a two-state machine (idle, typing) with
// an inactivity timer: the first non-empty input edge sends a single
// start signal, further input only re-arms the timer, and stop is sent
// exactly once: on emptied input, on submit, on teardown, or when the
// timer expires. Start is edge-triggered, stop is level-triggered.
//
// Inbound, [Presence] tracks which peers are currently typing in the
// bound room as a plain set of display names: add-if-absent on start,
// remove-if-present on stop, no reference counting. The local user's
// own signals and foreign rooms are filtered out.
package typing
