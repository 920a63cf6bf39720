// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"strings"
	"time"

	"github.com/sona-chat/sona/event"
)

// Status is the local delivery state of a message record.
type Status string

const (
	// StatusSending marks an optimistic record awaiting server
	// confirmation.
	StatusSending Status = "sending"
	// StatusSent marks a server-confirmed record.
	StatusSent Status = "sent"
	// StatusDelivered marks a record the backend reported as
	// delivered to the peer.
	StatusDelivered Status = "delivered"
	// StatusRead marks a record covered by a peer's read watermark.
	StatusRead Status = "read"
	// StatusFailed marks a record whose explicit retry timed out.
	// Disconnection alone never produces this state.
	StatusFailed Status = "failed"
)

// NormalizeStatus maps a backend status string onto a Status,
// case-insensitively. Unrecognized values default to delivered: by the
// time the backend acks with a status the message has at minimum
// reached the server.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(raw) {
	case "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	case "failed":
		return StatusFailed
	default:
		return StatusDelivered
	}
}

// Message is one record in a room timeline. ID holds the server id
// once the record is confirmed; before that it carries the temporary
// local id assigned at send time. CorrelationID is set only on
// locally-originated records.
type Message struct {
	ID                string
	CorrelationID     string
	RoomID            string
	AuthorID          string
	AuthorDisplayName string
	AuthorAvatarRef   string
	Body              string
	Kind              event.Kind
	CreatedAt         time.Time
	Status            Status
	Reactions         []event.ReactionEntry
}
