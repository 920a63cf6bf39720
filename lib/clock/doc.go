// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the synchronization engine.
//
// Every piece of time-dependent behavior in the engine (dedup window
// expiry, the typing inactivity timer, the explicit-retry timeout,
// reconnect backoff) goes through a [Clock] instead of the time
// package directly. Production code injects [Real]; tests inject
// [Fake] and drive time deterministically with Advance, so debounce
// and TTL tests never sleep.
package clock
