// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sona-chat/sona/lib/clock"
)

// Send creates an optimistic record and transmits the message. An
// empty (or whitespace-only) body is a no-op. The record appears at
// the tail with status sending immediately; only an ack or a
// reconnect-triggered resend moves it out of that state. No failure
// timeout is armed here.
//
// A transport error is returned for logging but leaves the record in
// sending state: the reconnect resend path is the recovery mechanism.
func (r *Room) Send(ctx context.Context, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	if r.closed.Load() || !r.authenticated() {
		return fmt.Errorf("room: %s is closed or unauthenticated", r.roomID)
	}

	correlationID := uuid.NewString()
	localID := "local-" + correlationID

	r.composer.Submit()
	r.timeline.AppendLocal(localID, correlationID, trimmed, r.localUser)
	r.trackPending(correlationID, nil)
	r.notifyUpdate()

	if err := r.transport.SendMessage(ctx, r.roomID, trimmed, correlationID); err != nil {
		r.logger.Warn("send failed, record stays pending",
			"correlation_id", correlationID,
			"error", err)
		return fmt.Errorf("room: sending message: %w", err)
	}
	return nil
}

// Retry re-transmits a failed record. Only records in failed state
// with a correlation id qualify. Unlike Send, Retry arms a bounded
// timeout: if no ack arrives before it fires, the record is demoted
// back to failed. This explicit user-triggered path is the only way a
// record reaches a terminal failure.
func (r *Room) Retry(ctx context.Context, id string) error {
	if r.closed.Load() || !r.authenticated() {
		return fmt.Errorf("room: %s is closed or unauthenticated", r.roomID)
	}

	message, ok := r.timeline.ResetForRetry(id)
	if !ok {
		return fmt.Errorf("room: message %s is not retryable", id)
	}
	r.notifyUpdate()

	correlationID := message.CorrelationID
	timer := r.clock.AfterFunc(r.retryTimeout, func() {
		r.clearPending(correlationID)
		if r.timeline.FailPending(correlationID) {
			if r.metrics != nil {
				r.metrics.RetryFailures.Inc()
			}
			r.logger.Info("retry timed out", "correlation_id", correlationID)
			r.notifyUpdate()
		}
	})
	r.trackPending(correlationID, timer)

	if err := r.transport.SendMessage(ctx, r.roomID, message.Body, correlationID); err != nil {
		return fmt.Errorf("room: retrying message: %w", err)
	}
	return nil
}

// SendReaction toggles the local user's reaction on a message. The
// timeline is not updated optimistically; the server's reaction
// event is authoritative.
func (r *Room) SendReaction(ctx context.Context, messageID, emoji string) error {
	if r.closed.Load() || !r.authenticated() {
		return fmt.Errorf("room: %s is closed or unauthenticated", r.roomID)
	}
	return r.transport.SendReaction(ctx, r.roomID, messageID, emoji)
}

// MarkRead reports the given messages as read by the local user.
func (r *Room) MarkRead(ctx context.Context, messageIDs []string) error {
	if r.closed.Load() || !r.authenticated() {
		return fmt.Errorf("room: %s is closed or unauthenticated", r.roomID)
	}
	return r.transport.MarkRead(ctx, r.roomID, messageIDs)
}

// trackPending records a pending send, replacing (and stopping) any
// previous timer for the correlation id.
func (r *Room) trackPending(correlationID string, timer *clock.Timer) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if previous, ok := r.pending[correlationID]; ok && previous != nil {
		previous.Stop()
	}
	r.pending[correlationID] = timer
}

// clearPending removes a registry entry and cancels its timer, if
// any. Called on ack and on retry-timeout expiry, never on
// disconnect, so sending records survive to be resent.
func (r *Room) clearPending(correlationID string) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	if timer, ok := r.pending[correlationID]; ok {
		if timer != nil {
			timer.Stop()
		}
		delete(r.pending, correlationID)
	}
}
