// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sona-chat/sona/dedup"
	"github.com/sona-chat/sona/dispatch"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/clock"
	"github.com/sona-chat/sona/metrics"
	"github.com/sona-chat/sona/timeline"
	"github.com/sona-chat/sona/typing"
)

// DefaultRetryTimeout bounds an explicit user-triggered retry: if no
// ack arrives within it, the record is demoted back to failed.
const DefaultRetryTimeout = 10 * time.Second

// Callbacks are the hooks a Room invokes toward its observer (the UI
// layer). All fields are optional. Callbacks run synchronously on the
// goroutine that triggered them; keep them cheap.
type Callbacks struct {
	// OnUpdate fires after any visible state change; observers
	// re-read Messages and Typists.
	OnUpdate func()
	// OnHistoryError fires when the initial history fetch fails for
	// an ordinary reason; the room stays usable for live events.
	OnHistoryError func(err error)
	// OnAccessDenied fires instead of OnHistoryError when the fetch
	// failed because the user is banned or not a participant.
	OnAccessDenied func(err error)
	// OnMembership fires once per deduplicated membership event
	// targeting this room (kicked, banned, closed, expiring).
	OnMembership func(payload event.MembershipPayload)
}

// Config configures Open. Transport, History, Dispatcher, Windows,
// Clock, Metrics, and Authenticated are normally supplied by
// engine.OpenRoom.
type Config struct {
	RoomID    string
	LocalUser event.Sender

	Transport  Transport
	History    HistoryFetcher
	Dispatcher *dispatch.Dispatcher
	Windows    *dedup.Windows
	Clock      clock.Clock
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// Authenticated gates all state mutation. Must be non-nil.
	Authenticated func() bool

	// RetryTimeout overrides DefaultRetryTimeout when positive.
	RetryTimeout time.Duration
	// TypingInactivity overrides typing.DefaultInactivity when
	// positive.
	TypingInactivity time.Duration

	Callbacks Callbacks
}

// Room is one open per-room context.
type Room struct {
	roomID        string
	localUser     event.Sender
	transport     Transport
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         clock.Clock
	authenticated func() bool
	retryTimeout  time.Duration
	callbacks     Callbacks

	timeline *timeline.Timeline
	composer *typing.Coordinator
	presence *typing.Presence
	windows  *dedup.Windows

	// ctx bounds transport calls triggered by inbound events and
	// timers; cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	// pending is the pending-send registry: correlation id to the
	// optional retry-timeout handle. Entries survive disconnects:
	// sending records are resent on reconnect, never failed by
	// connectivity loss.
	pendingMu sync.Mutex
	pending   map[string]*clock.Timer

	unregister []func()
	closed     atomic.Bool
	loadErr    error
}

// Open subscribes to the room's event stream, registers the event
// handlers, and loads initial history. A history failure does not
// fail Open: it is surfaced through OnHistoryError or OnAccessDenied
// and the room continues with an empty timeline.
func Open(ctx context.Context, config Config) (*Room, error) {
	if config.RoomID == "" {
		return nil, fmt.Errorf("room: RoomID is required")
	}
	if config.LocalUser.ID == "" {
		return nil, fmt.Errorf("room: LocalUser.ID is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("room: Transport is required")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("room: Dispatcher is required")
	}
	if config.Windows == nil {
		return nil, fmt.Errorf("room: Windows is required")
	}
	if config.Authenticated == nil {
		return nil, fmt.Errorf("room: Authenticated gate is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("room_id", config.RoomID)

	retryTimeout := config.RetryTimeout
	if retryTimeout <= 0 {
		retryTimeout = DefaultRetryTimeout
	}

	tl, err := timeline.New(timeline.Config{
		RoomID:      config.RoomID,
		LocalUserID: config.LocalUser.ID,
		Windows:     config.Windows,
		Clock:       clk,
	})
	if err != nil {
		return nil, err
	}

	roomCtx, cancel := context.WithCancel(context.Background())
	room := &Room{
		roomID:        config.RoomID,
		localUser:     config.LocalUser,
		transport:     config.Transport,
		logger:        logger,
		metrics:       config.Metrics,
		clock:         clk,
		authenticated: config.Authenticated,
		retryTimeout:  retryTimeout,
		callbacks:     config.Callbacks,
		timeline:      tl,
		presence:      typing.NewPresence(config.RoomID, config.LocalUser.ID),
		windows:       config.Windows,
		ctx:           roomCtx,
		cancel:        cancel,
		pending:       make(map[string]*clock.Timer),
	}

	room.composer, err = typing.NewCoordinator(typing.Config{
		Clock:      clk,
		Send:       room.sendTypingSignal,
		Inactivity: config.TypingInactivity,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	room.register(config.Dispatcher)

	if err := config.Transport.Subscribe(ctx, config.RoomID); err != nil {
		room.Close()
		return nil, fmt.Errorf("room: subscribing to %s: %w", config.RoomID, err)
	}

	room.loadHistory(ctx, config.History)
	return room, nil
}

// register wires every inbound event handler. Each handler re-checks
// the closed flag and the authenticated gate before touching state.
func (r *Room) register(dispatcher *dispatch.Dispatcher) {
	r.unregister = []func(){
		dispatcher.Register(event.NewMessage, payloadHandler(r, (*Room).handleNewMessage)),
		dispatcher.Register(event.Ack, payloadHandler(r, (*Room).handleAck)),
		dispatcher.Register(event.Read, payloadHandler(r, (*Room).handleRead)),
		dispatcher.Register(event.Reaction, payloadHandler(r, (*Room).handleReaction)),
		dispatcher.Register(event.TypingStart, payloadHandler(r, (*Room).handleTypingStart)),
		dispatcher.Register(event.TypingStop, payloadHandler(r, (*Room).handleTypingStop)),
		dispatcher.Register(event.ConnectionChange, payloadHandler(r, (*Room).handleConnectionChange)),
		dispatcher.Register(event.Membership, payloadHandler(r, (*Room).handleMembership)),
	}
}

// payloadHandler adapts a typed method to a dispatch.Handler,
// applying the closed and authenticated gates and dropping payloads
// of unexpected type.
func payloadHandler[P any](r *Room, method func(*Room, P)) dispatch.Handler {
	return func(payload any) {
		if r.closed.Load() || !r.authenticated() {
			return
		}
		typed, ok := payload.(P)
		if !ok {
			r.logger.Warn("dropping event with unexpected payload type",
				"payload_type", fmt.Sprintf("%T", payload))
			return
		}
		method(r, typed)
	}
}

// loadHistory fetches the initial message list. Failures never
// propagate past this boundary; they surface as a failed-to-load
// state through the callbacks.
func (r *Room) loadHistory(ctx context.Context, history HistoryFetcher) {
	if history == nil {
		return
	}
	batch, err := history.FetchHistory(ctx, r.roomID)
	if err != nil {
		r.loadErr = err
		if errors.Is(err, ErrAccessDenied) {
			r.logger.Warn("history fetch denied", "error", err)
			if r.callbacks.OnAccessDenied != nil {
				r.callbacks.OnAccessDenied(err)
			}
			return
		}
		r.logger.Error("history fetch failed", "error", err)
		if r.callbacks.OnHistoryError != nil {
			r.callbacks.OnHistoryError(err)
		}
		return
	}
	r.timeline.LoadHistory(batch)
	r.notifyUpdate()
}

func (r *Room) handleNewMessage(payload event.NewMessagePayload) {
	switch r.timeline.ApplyNew(payload) {
	case timeline.OutcomeDuplicate:
		r.countDedup("message")
	case timeline.OutcomeReconciled:
		if r.metrics != nil {
			r.metrics.Reconciliations.Inc()
		}
		r.notifyUpdate()
	case timeline.OutcomeAppended:
		if r.metrics != nil {
			r.metrics.Appends.Inc()
		}
		r.notifyUpdate()
	case timeline.OutcomeIgnored:
		// Another room's traffic.
	}
}

func (r *Room) handleAck(payload event.AckPayload) {
	r.clearPending(payload.CorrelationID)
	if r.timeline.ApplyAck(payload) {
		r.notifyUpdate()
	}
}

func (r *Room) handleRead(payload event.ReadPayload) {
	if r.timeline.ApplyRead(payload) > 0 {
		r.notifyUpdate()
	}
}

func (r *Room) handleReaction(payload event.ReactionPayload) {
	if r.timeline.ApplyReactions(payload) {
		r.notifyUpdate()
	}
}

func (r *Room) handleTypingStart(payload event.TypingPayload) {
	if r.presence.ApplyStart(payload) {
		r.notifyUpdate()
	}
}

func (r *Room) handleTypingStop(payload event.TypingPayload) {
	if r.presence.ApplyStop(payload) {
		r.notifyUpdate()
	}
}

// handleConnectionChange drives the sole recovery path for
// interrupted sends: once the connection is restored, every record
// still in sending state with a correlation id is re-transmitted with
// the same body and correlation id. Intermediate states (reconnecting,
// disconnected) trigger nothing; disconnection alone never fails a
// send.
func (r *Room) handleConnectionChange(payload event.ConnectionChangePayload) {
	if payload.State != event.Connected {
		return
	}

	if err := r.transport.ForceResubscribe(r.ctx, r.roomID); err != nil {
		r.logger.Warn("resubscribe after reconnect failed", "error", err)
	}

	for _, message := range r.timeline.PendingSends() {
		if err := r.transport.SendMessage(r.ctx, r.roomID, message.Body, message.CorrelationID); err != nil {
			r.logger.Warn("resend failed",
				"correlation_id", message.CorrelationID,
				"error", err)
			continue
		}
		if r.metrics != nil {
			r.metrics.Resends.Inc()
		}
		r.logger.Info("resent pending message", "correlation_id", message.CorrelationID)
	}
}

// handleMembership routes kicked/banned/closed/expiring events to the
// interrupt callback, at most once per dedup window per composite key.
func (r *Room) handleMembership(payload event.MembershipPayload) {
	if payload.RoomID != r.roomID {
		return
	}
	if r.windows.Membership.Observe(payload.DedupKey()) {
		r.countDedup("membership")
		return
	}
	r.logger.Info("membership event",
		"action", payload.Action,
		"subject_user_id", payload.SubjectUserID)
	if r.callbacks.OnMembership != nil {
		r.callbacks.OnMembership(payload)
	}
}

// sendTypingSignal is the composer's outbound hook.
func (r *Room) sendTypingSignal(isTyping bool) {
	direction := "stop"
	if isTyping {
		direction = "start"
	}
	if r.metrics != nil {
		r.metrics.TypingSignals.WithLabelValues(direction).Inc()
	}
	if err := r.transport.SendTyping(r.ctx, r.roomID, isTyping); err != nil {
		r.logger.Warn("typing signal failed", "direction", direction, "error", err)
	}
}

// Messages returns a snapshot of the timeline.
func (r *Room) Messages() []timeline.Message { return r.timeline.Messages() }

// Typists returns the display names currently typing in this room.
func (r *Room) Typists() []string { return r.presence.Typists() }

// Composer returns the outbound typing coordinator; feed it the
// composer text with SetText.
func (r *Room) Composer() *typing.Coordinator { return r.composer }

// RoomID returns the bound room id.
func (r *Room) RoomID() string { return r.roomID }

// LoadError returns the history-fetch error, if the initial load
// failed. The room remains usable for live events either way.
func (r *Room) LoadError() error { return r.loadErr }

// Close tears the room down: handlers unregister (no further
// delivery), the composer sends its final stop if needed, and every
// owned timer is cancelled. Idempotent.
func (r *Room) Close() {
	if r.closed.Swap(true) {
		return
	}
	for _, unregister := range r.unregister {
		unregister()
	}
	r.composer.Close()
	r.cancel()

	r.pendingMu.Lock()
	for correlationID, timer := range r.pending {
		if timer != nil {
			timer.Stop()
		}
		delete(r.pending, correlationID)
	}
	r.pendingMu.Unlock()
}

func (r *Room) notifyUpdate() {
	if r.callbacks.OnUpdate != nil {
		r.callbacks.OnUpdate()
	}
}

func (r *Room) countDedup(window string) {
	if r.metrics != nil {
		r.metrics.DedupSuppressed.WithLabelValues(window).Inc()
	}
}
