// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine composes the synchronization machinery: one
// dispatcher, one shared pair of dedup windows, the metrics set, and
// the authentication gate. An [Engine] opens per-room contexts
// (room.Room) that all share this plumbing, which is what lets a
// duplicate membership alert be suppressed across room contexts.
//
// The authentication collaborator reports a status enum; the engine
// reduces it to the boolean gate the rooms consume.
package engine
