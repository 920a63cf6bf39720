// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package event

import "time"

// Event names used on the dispatcher. The transport republishes every
// inbound frame under one of these; engine components and internal
// signals use the same namespace.
const (
	NewMessage       = "new-message"
	Ack              = "ack"
	Read             = "read"
	Reaction         = "reaction"
	TypingStart      = "typing-start"
	TypingStop       = "typing-stop"
	ConnectionChange = "connection-state-changed"
	Membership       = "membership"
)

// Kind distinguishes ordinary user messages from server-generated
// system notices.
type Kind string

const (
	KindUser   Kind = "user"
	KindSystem Kind = "system"
)

// Sender identifies the author of an inbound message.
type Sender struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// NewMessagePayload is an inbound message frame. CorrelationID is
// present only when the message originated from this client (any
// device of the same account may omit it).
type NewMessagePayload struct {
	RoomID        string    `json:"roomId"`
	MessageID     string    `json:"messageId"`
	Content       string    `json:"content"`
	Kind          Kind      `json:"kind"`
	SystemSubtype string    `json:"systemSubtype,omitempty"`
	Sender        Sender    `json:"sender"`
	CreatedAt     time.Time `json:"createdAt"`
	CorrelationID string    `json:"correlationId,omitempty"`
}

// AckPayload confirms receipt of a locally-originated message. Status
// is a free-form string from the backend; the timeline normalizes it.
type AckPayload struct {
	CorrelationID string    `json:"correlationId"`
	MessageID     string    `json:"messageId"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadPayload reports the furthest message a peer has read in a room.
type ReadPayload struct {
	RoomID            string `json:"roomId"`
	ReaderID          string `json:"readerId"`
	LastReadMessageID string `json:"lastReadMessageId"`
}

// ReactionEntry is one aggregated reaction on a message.
type ReactionEntry struct {
	Emoji         string `json:"emoji"`
	Count         int    `json:"count"`
	ViewerReacted bool   `json:"viewerReacted"`
}

// ReactionPayload replaces the full reaction list of a message. The
// server is authoritative for the aggregates.
type ReactionPayload struct {
	RoomID    string          `json:"roomId"`
	MessageID string          `json:"messageId"`
	Reactions []ReactionEntry `json:"reactions"`
}

// TypingPayload signals a peer starting or stopping typing. The frame
// type (typing-start vs typing-stop) carries the direction.
type TypingPayload struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// ConnectionState is the transport's connectivity status.
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
	Reconnecting ConnectionState = "reconnecting"
)

// ConnectionChangePayload announces a connectivity transition.
type ConnectionChangePayload struct {
	State ConnectionState `json:"state"`
}

// MembershipAction classifies a membership frame.
type MembershipAction string

const (
	MemberKicked MembershipAction = "kicked"
	MemberBanned MembershipAction = "banned"
	RoomClosed   MembershipAction = "closed"
	RoomExpiring MembershipAction = "expiring"
)

// MembershipPayload announces a membership change or room lifecycle
// event that should interrupt the user.
type MembershipPayload struct {
	Action        MembershipAction `json:"action"`
	RoomID        string           `json:"roomId"`
	SubjectUserID string           `json:"subjectUserId"`
	ActorID       string           `json:"actorId"`
	Reason        string           `json:"reason,omitempty"`
}

// DedupKey is the composite key used to suppress duplicate
// user-facing interrupts when the backend redelivers a membership
// frame.
func (p MembershipPayload) DedupKey() string {
	return string(p.Action) + "|" + p.RoomID + "|" + p.SubjectUserID
}
