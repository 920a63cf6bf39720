// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sona-chat/sona/dedup"
	"github.com/sona-chat/sona/dispatch"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/clock"
	"github.com/sona-chat/sona/metrics"
	"github.com/sona-chat/sona/room"
)

// AuthStatus is the authentication collaborator's state. The engine
// cares only whether it equals AuthAuthenticated; everything else
// closes the gate.
type AuthStatus string

const (
	AuthUnknown       AuthStatus = "unknown"
	AuthAuthenticated AuthStatus = "authenticated"
	AuthGuest         AuthStatus = "guest"
	AuthSignedOut     AuthStatus = "signed-out"
)

// Config configures New. Transport and LocalUser are required; the
// rest defaults sensibly (real clock, slog.Default, no metrics).
type Config struct {
	LocalUser event.Sender
	Transport room.Transport
	History   room.HistoryFetcher

	Clock  clock.Clock
	Logger *slog.Logger

	// Registerer receives the engine's Prometheus collectors. Nil
	// disables registration (collectors still count, nothing scrapes
	// them).
	Registerer prometheus.Registerer

	// RetryTimeout and TypingInactivity propagate to every opened
	// room; zero means the room defaults.
	RetryTimeout     time.Duration
	TypingInactivity time.Duration
}

// Engine owns the process-wide synchronization plumbing and the set
// of open room contexts.
type Engine struct {
	localUser        event.Sender
	transport        room.Transport
	history          room.HistoryFetcher
	clock            clock.Clock
	logger           *slog.Logger
	retryTimeout     time.Duration
	typingInactivity time.Duration

	dispatcher *dispatch.Dispatcher
	windows    *dedup.Windows
	metrics    *metrics.Metrics

	authenticated atomic.Bool

	mu    sync.Mutex
	rooms map[string]*room.Room
}

// New builds an Engine. The gate starts closed; call SetAuthStatus
// once the authentication collaborator reports in.
func New(config Config) (*Engine, error) {
	if config.LocalUser.ID == "" {
		return nil, fmt.Errorf("engine: LocalUser.ID is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("engine: Transport is required")
	}

	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := metrics.New(config.Registerer)
	return &Engine{
		localUser:        config.LocalUser,
		transport:        config.Transport,
		history:          config.History,
		clock:            clk,
		logger:           logger,
		retryTimeout:     config.RetryTimeout,
		typingInactivity: config.TypingInactivity,
		dispatcher:       dispatch.New(dispatch.Config{Logger: logger, Metrics: m}),
		windows:          dedup.NewWindows(clk),
		metrics:          m,
		rooms:            make(map[string]*room.Room),
	}, nil
}

// Dispatcher returns the engine's event bus. The transport publishes
// inbound frames on it.
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// SetAuthStatus reduces the collaborator's status enum to the boolean
// gate. While the gate is closed, events keep flowing through the
// dispatcher but rooms ignore them and reject sends.
func (e *Engine) SetAuthStatus(status AuthStatus) {
	open := status == AuthAuthenticated
	if e.authenticated.Swap(open) != open {
		e.logger.Info("authentication gate changed", "status", string(status), "open", open)
	}
}

// Authenticated reports the current gate state.
func (e *Engine) Authenticated() bool { return e.authenticated.Load() }

// OpenRoom opens a context for the given room, sharing the engine's
// dispatcher, dedup windows, clock, and gate. At most one context per
// room id may be open.
func (e *Engine) OpenRoom(ctx context.Context, roomID string, callbacks room.Callbacks) (*room.Room, error) {
	e.mu.Lock()
	if _, open := e.rooms[roomID]; open {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine: room %s is already open", roomID)
	}
	e.mu.Unlock()

	opened, err := room.Open(ctx, room.Config{
		RoomID:           roomID,
		LocalUser:        e.localUser,
		Transport:        e.transport,
		History:          e.history,
		Dispatcher:       e.dispatcher,
		Windows:          e.windows,
		Clock:            e.clock,
		Logger:           e.logger,
		Metrics:          e.metrics,
		Authenticated:    e.authenticated.Load,
		RetryTimeout:     e.retryTimeout,
		TypingInactivity: e.typingInactivity,
		Callbacks:        callbacks,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.rooms[roomID] = opened
	e.mu.Unlock()
	return opened, nil
}

// Room returns the open context for roomID, or nil.
func (e *Engine) Room(roomID string) *room.Room {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms[roomID]
}

// CloseRoom closes and forgets one room context. Unknown ids are a
// no-op.
func (e *Engine) CloseRoom(roomID string) {
	e.mu.Lock()
	opened, ok := e.rooms[roomID]
	delete(e.rooms, roomID)
	e.mu.Unlock()
	if ok {
		opened.Close()
	}
}

// Close closes every open room context.
func (e *Engine) Close() {
	e.mu.Lock()
	rooms := e.rooms
	e.rooms = make(map[string]*room.Room)
	e.mu.Unlock()

	for _, opened := range rooms {
		opened.Close()
	}
}
