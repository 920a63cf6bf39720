// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline maintains the per-room ordered message sequence and
// owns the reconciliation algorithm that merges inbound server events
// with local optimistic state.
//
// The backend assigns no sequence numbers, so consistency rests on
// three client-side mechanisms: a shared dedup window over server
// message ids (idempotent application of redelivered frames), a
// client-generated correlation id that ties an optimistic record to
// its server-confirmed counterpart, and an author+body fallback match
// for confirmations that arrive without a correlation id (the same
// account sending from another device).
//
// Reconciliation never reorders: a confirmed message updates the
// optimistic record in place at its original position, and only
// genuinely new content is appended at the tail. The sequence is
// therefore stable and append-mostly, which is what the observing UI
// layer relies on.
package timeline
