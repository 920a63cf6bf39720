// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Outbound frame types.
const (
	frameSubscribe   = "subscribe"
	frameResubscribe = "resubscribe"
	frameSendMessage = "send-message"
	frameReaction    = "send-reaction"
	frameMarkRead    = "mark-read"
	frameTypingStart = "typing-start"
	frameTypingStop  = "typing-stop"
)

type subscribeFrame struct {
	RoomID string `json:"roomId"`
}

type sendMessageFrame struct {
	RoomID        string `json:"roomId"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlationId"`
}

type reactionFrame struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type markReadFrame struct {
	RoomID     string   `json:"roomId"`
	MessageIDs []string `json:"messageIds"`
}

type typingFrame struct {
	RoomID string `json:"roomId"`
}

// Subscribe attaches this client to the room's event stream.
func (c *Conn) Subscribe(ctx context.Context, roomID string) error {
	return c.write(ctx, frameSubscribe, subscribeFrame{RoomID: roomID})
}

// ForceResubscribe re-attaches after a reconnect; the backend treats
// it as authoritative even if it believes the subscription is live.
func (c *Conn) ForceResubscribe(ctx context.Context, roomID string) error {
	return c.write(ctx, frameResubscribe, subscribeFrame{RoomID: roomID})
}

// SendMessage transmits a message body tagged with the caller's
// correlation id.
func (c *Conn) SendMessage(ctx context.Context, roomID, body, correlationID string) error {
	return c.write(ctx, frameSendMessage, sendMessageFrame{
		RoomID:        roomID,
		Content:       body,
		CorrelationID: correlationID,
	})
}

// SendReaction toggles the local user's reaction on a message.
func (c *Conn) SendReaction(ctx context.Context, roomID, messageID, emoji string) error {
	return c.write(ctx, frameReaction, reactionFrame{
		RoomID:    roomID,
		MessageID: messageID,
		Emoji:     emoji,
	})
}

// MarkRead reports the given messages as read by the local user.
func (c *Conn) MarkRead(ctx context.Context, roomID string, messageIDs []string) error {
	return c.write(ctx, frameMarkRead, markReadFrame{
		RoomID:     roomID,
		MessageIDs: messageIDs,
	})
}

// SendTyping transmits a typing start or stop signal.
func (c *Conn) SendTyping(ctx context.Context, roomID string, isTyping bool) error {
	frameType := frameTypingStop
	if isTyping {
		frameType = frameTypingStart
	}
	return c.write(ctx, frameType, typingFrame{RoomID: roomID})
}
