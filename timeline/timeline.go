// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"fmt"
	"sync"

	"github.com/sona-chat/sona/dedup"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/clock"
)

// Outcome reports how an inbound new-message event was absorbed.
type Outcome int

const (
	// OutcomeIgnored means the event targeted a different room.
	OutcomeIgnored Outcome = iota
	// OutcomeDuplicate means the server id was already inside the
	// dedup window and the event was discarded.
	OutcomeDuplicate
	// OutcomeReconciled means the event was merged into an existing
	// record in place.
	OutcomeReconciled
	// OutcomeAppended means a genuinely new record was appended at
	// the tail.
	OutcomeAppended
)

// Config configures a Timeline.
type Config struct {
	// RoomID is the room this timeline is bound to. Events carrying
	// any other room id are ignored.
	RoomID string
	// LocalUserID identifies the local account, for the multi-device
	// reconciliation fallback and for read-watermark scoping.
	LocalUserID string
	// Windows is the engine-wide dedup window set.
	Windows *dedup.Windows
	// Clock stamps optimistic records.
	Clock clock.Clock
}

// Timeline is the per-room ordered message sequence. All methods are
// safe for concurrent use.
type Timeline struct {
	roomID      string
	localUserID string
	windows     *dedup.Windows
	clock       clock.Clock

	mu       sync.Mutex
	messages []*Message
}

// New creates an empty timeline.
func New(config Config) (*Timeline, error) {
	if config.RoomID == "" {
		return nil, fmt.Errorf("timeline: RoomID is required")
	}
	if config.LocalUserID == "" {
		return nil, fmt.Errorf("timeline: LocalUserID is required")
	}
	if config.Windows == nil {
		return nil, fmt.Errorf("timeline: Windows is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("timeline: Clock is required")
	}
	return &Timeline{
		roomID:      config.RoomID,
		localUserID: config.LocalUserID,
		windows:     config.Windows,
		clock:       config.Clock,
	}, nil
}

// LoadHistory replaces the timeline contents with an ordered initial
// batch from the history endpoint. Records load as sent; redelivered
// live frames for the same ids reconcile in place rather than
// duplicating (the by-server-id match in ApplyNew).
func (t *Timeline) LoadHistory(batch []event.NewMessagePayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = t.messages[:0]
	for _, item := range batch {
		if item.RoomID != t.roomID {
			continue
		}
		t.messages = append(t.messages, recordFromPayload(item))
	}
}

// ApplyNew absorbs an inbound new-message event:
//
//  1. A server id already inside the dedup window is a redelivery:
//     discard with no state change.
//  2. Otherwise record the id in the window.
//  3. A record matching the server id, or the event's correlation id,
//     is updated in place (server id assigned, status sent) at its
//     current position. This is the optimistic-reconciliation path.
//  4. Failing that, if the author is the local user and a sending
//     record with identical author and body exists, reconcile that
//     record the same way. This covers confirmations that round-trip
//     without a correlation id (same account, another device).
//  5. Otherwise append a new record at the tail with status sent.
func (t *Timeline) ApplyNew(payload event.NewMessagePayload) Outcome {
	if payload.RoomID != t.roomID {
		return OutcomeIgnored
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.windows.Messages.Observe(payload.MessageID) {
		return OutcomeDuplicate
	}

	for _, message := range t.messages {
		if message.ID == payload.MessageID ||
			(payload.CorrelationID != "" && message.CorrelationID == payload.CorrelationID) {
			t.confirmLocked(message, payload.MessageID)
			return OutcomeReconciled
		}
	}

	if payload.Sender.ID == t.localUserID {
		for _, message := range t.messages {
			if message.Status == StatusSending &&
				message.AuthorID == payload.Sender.ID &&
				message.Body == payload.Content {
				t.confirmLocked(message, payload.MessageID)
				return OutcomeReconciled
			}
		}
	}

	t.messages = append(t.messages, recordFromPayload(payload))
	return OutcomeAppended
}

// confirmLocked merges a server confirmation into an existing record.
// Position is preserved; the record is never moved to the tail.
func (t *Timeline) confirmLocked(message *Message, serverID string) {
	message.ID = serverID
	message.Status = StatusSent
}

// ApplyAck absorbs a delivery acknowledgement for a locally-originated
// message: the record is located by correlation id, assigned its
// server id, and given the normalized status. Returns false when no
// record carries the correlation id.
func (t *Timeline) ApplyAck(payload event.AckPayload) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, message := range t.messages {
		if message.CorrelationID != "" && message.CorrelationID == payload.CorrelationID {
			if payload.MessageID != "" {
				message.ID = payload.MessageID
			}
			message.Status = NormalizeStatus(payload.Status)
			return true
		}
	}
	return false
}

// ApplyRead converts a peer's furthest-read watermark into a batch
// status update: every local-user-authored record at or before the
// watermark becomes read. A watermark id that resolves to no record is
// ignored, never guessed. Reports from the local user's own devices
// are ignored as well. Returns the number of records marked.
func (t *Timeline) ApplyRead(payload event.ReadPayload) int {
	if payload.RoomID != t.roomID || payload.ReaderID == t.localUserID {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	watermark := -1
	for i, message := range t.messages {
		if message.ID == payload.LastReadMessageID {
			watermark = i
			break
		}
	}
	if watermark < 0 {
		return 0
	}

	marked := 0
	for _, message := range t.messages[:watermark+1] {
		if message.AuthorID != t.localUserID {
			continue
		}
		// Unconfirmed and failed records are not covered by a peer
		// watermark; already-read records are skipped (idempotence).
		if message.Status != StatusSent && message.Status != StatusDelivered {
			continue
		}
		message.Status = StatusRead
		marked++
	}
	return marked
}

// ApplyReactions replaces the target record's reaction list wholesale.
// The server is authoritative for the aggregates. Returns false when
// the target record is unknown.
func (t *Timeline) ApplyReactions(payload event.ReactionPayload) bool {
	if payload.RoomID != t.roomID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, message := range t.messages {
		if message.ID == payload.MessageID {
			message.Reactions = append([]event.ReactionEntry(nil), payload.Reactions...)
			return true
		}
	}
	return false
}

// AppendLocal appends an optimistic record at the tail with status
// sending, stamped with the current time. localID is the temporary id
// the record carries until confirmation.
func (t *Timeline) AppendLocal(localID, correlationID, body string, author event.Sender) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	message := &Message{
		ID:                localID,
		CorrelationID:     correlationID,
		RoomID:            t.roomID,
		AuthorID:          author.ID,
		AuthorDisplayName: author.DisplayName,
		AuthorAvatarRef:   author.AvatarRef,
		Body:              body,
		Kind:              event.KindUser,
		CreatedAt:         t.clock.Now(),
		Status:            StatusSending,
	}
	t.messages = append(t.messages, message)
	return *message
}

// PendingSends returns copies of the records still in sending state
// that carry a correlation id, in timeline order. These are the
// records eligible for reconnect-triggered resend.
func (t *Timeline) PendingSends() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pending []Message
	for _, message := range t.messages {
		if message.Status == StatusSending && message.CorrelationID != "" {
			pending = append(pending, *message)
		}
	}
	return pending
}

// ResetForRetry transitions a failed record back to sending ahead of
// an explicit user-triggered retry. Only failed records with a
// correlation id qualify.
func (t *Timeline) ResetForRetry(id string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, message := range t.messages {
		if message.ID == id {
			if message.Status != StatusFailed || message.CorrelationID == "" {
				return Message{}, false
			}
			message.Status = StatusSending
			return *message, true
		}
	}
	return Message{}, false
}

// FailPending demotes the record with the given correlation id from
// sending to failed. This is the retry-timeout path, the only way a
// record reaches a terminal failure. Returns false if the record is
// no longer in sending state (an ack won the race).
func (t *Timeline) FailPending(correlationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, message := range t.messages {
		if message.CorrelationID == correlationID && message.Status == StatusSending {
			message.Status = StatusFailed
			return true
		}
	}
	return false
}

// Messages returns a snapshot copy of the timeline for observers.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := make([]Message, len(t.messages))
	for i, message := range t.messages {
		snapshot[i] = *message
	}
	return snapshot
}

// Len returns the number of records.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// recordFromPayload builds a confirmed record from an inbound frame.
func recordFromPayload(payload event.NewMessagePayload) *Message {
	return &Message{
		ID:                payload.MessageID,
		CorrelationID:     payload.CorrelationID,
		RoomID:            payload.RoomID,
		AuthorID:          payload.Sender.ID,
		AuthorDisplayName: payload.Sender.DisplayName,
		AuthorAvatarRef:   payload.Sender.AvatarRef,
		Body:              payload.Content,
		Kind:              payload.Kind,
		CreatedAt:         payload.CreatedAt,
		Status:            StatusSent,
	}
}
