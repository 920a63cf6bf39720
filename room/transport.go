// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"

	"github.com/sona-chat/sona/event"
)

// ErrAccessDenied marks a history fetch rejected because the local
// user is banned or not a participant. Rooms route it to the
// dedicated access-denied callback instead of the generic
// failed-to-load path.
var ErrAccessDenied = errors.New("room: access denied")

// Transport is the outbound half of the connection collaborator. The
// websocket implementation lives in the transport package; tests
// substitute fakes.
type Transport interface {
	// Subscribe attaches this client to the room's event stream.
	Subscribe(ctx context.Context, roomID string) error

	// SendMessage transmits a message body tagged with the
	// client-generated correlation id.
	SendMessage(ctx context.Context, roomID, body, correlationID string) error

	// SendReaction toggles the local user's reaction on a message.
	SendReaction(ctx context.Context, roomID, messageID, emoji string) error

	// MarkRead reports the given messages as read by the local user.
	MarkRead(ctx context.Context, roomID string, messageIDs []string) error

	// SendTyping transmits a typing start (true) or stop (false)
	// signal.
	SendTyping(ctx context.Context, roomID string, isTyping bool) error

	// ForceResubscribe re-attaches to the room's event stream after
	// the connection was re-established.
	ForceResubscribe(ctx context.Context, roomID string) error
}

// HistoryFetcher loads the ordered initial message list for a room.
// Implementations wrap access failures with ErrAccessDenied when the
// backend reports a ban or missing participation.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, roomID string) ([]event.NewMessagePayload, error)
}
