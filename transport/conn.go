// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sona-chat/sona/dispatch"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/clock"
)

// Reconnect backoff bounds. The delay doubles per consecutive failure
// between these, and resets on a successful dial.
const (
	DefaultMinBackoff = 500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// DefaultSendRate paces outbound frames. Ten frames a second with a
// burst allowance covers interactive use and keeps reconnect resend
// bursts off the wire all at once.
const (
	DefaultSendRate  = 10
	DefaultSendBurst = 20
)

// frame is the wire envelope in both directions.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Config configures a Conn. URL and Dispatcher are required.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// Dispatcher receives every decoded inbound frame.
	Dispatcher *dispatch.Dispatcher

	Logger *slog.Logger
	Clock  clock.Clock

	// MinBackoff and MaxBackoff override the reconnect bounds when
	// positive.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// SendRate and SendBurst override the outbound pacing when
	// positive.
	SendRate  float64
	SendBurst int

	// Dialer overrides websocket.DefaultDialer, for tests.
	Dialer *websocket.Dialer
}

// Conn is the persistent websocket connection. Create with Dial; the
// read loop and reconnect machinery run until Close.
type Conn struct {
	url        string
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	clock      clock.Clock
	dialer     *websocket.Dialer
	limiter    *rate.Limiter
	minBackoff time.Duration
	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// writeMu serializes writes; ws guards the live socket, nil while
	// disconnected.
	writeMu sync.Mutex
	ws      *websocket.Conn
}

// Dial validates the config, establishes the first connection, and
// starts the read/reconnect loop. The initial dial is synchronous so
// the caller knows the endpoint is reachable; later drops are handled
// internally.
func Dial(ctx context.Context, config Config) (*Conn, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("transport: URL is required")
	}
	if config.Dispatcher == nil {
		return nil, fmt.Errorf("transport: Dispatcher is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	dialer := config.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	minBackoff := config.MinBackoff
	if minBackoff <= 0 {
		minBackoff = DefaultMinBackoff
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}
	sendRate := config.SendRate
	if sendRate <= 0 {
		sendRate = DefaultSendRate
	}
	sendBurst := config.SendBurst
	if sendBurst <= 0 {
		sendBurst = DefaultSendBurst
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := &Conn{
		url:        config.URL,
		dispatcher: config.Dispatcher,
		logger:     logger.With("endpoint", config.URL),
		clock:      clk,
		dialer:     dialer,
		limiter:    rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		ctx:        connCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	ws, _, err := dialer.DialContext(ctx, config.URL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: dialing %s: %w", config.URL, err)
	}
	conn.setSocket(ws)
	conn.publishState(event.Connected)

	go conn.run(ws)
	return conn, nil
}

// run owns the connection lifecycle: read until the socket drops,
// announce the drop, reconnect with backoff, repeat until Close.
func (c *Conn) run(ws *websocket.Conn) {
	defer close(c.done)

	for {
		c.readLoop(ws)
		c.setSocket(nil)
		if c.ctx.Err() != nil {
			return
		}

		c.publishState(event.Disconnected)
		c.publishState(event.Reconnecting)

		ws = c.redial()
		if ws == nil {
			return
		}
		c.setSocket(ws)
		c.publishState(event.Connected)
	}
}

// readLoop decodes frames off one socket until it errors. Order is
// preserved: one goroutine, one socket, publishes in arrival order.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		var incoming frame
		if err := ws.ReadJSON(&incoming); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn("connection lost", "error", err)
			}
			ws.Close()
			return
		}
		c.publishFrame(incoming)
	}
}

// redial retries the endpoint with capped exponential backoff until it
// succeeds or the connection is closed.
func (c *Conn) redial() *websocket.Conn {
	backoff := c.minBackoff
	for {
		ws, _, err := c.dialer.DialContext(c.ctx, c.url, nil)
		if err == nil {
			return ws
		}
		if c.ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("reconnect attempt failed", "error", err, "backoff", backoff)

		select {
		case <-c.ctx.Done():
			return nil
		case <-c.clock.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// publishFrame maps one inbound envelope onto the dispatcher. Unknown
// frame types are logged and dropped; a malformed payload never kills
// the read loop.
func (c *Conn) publishFrame(incoming frame) {
	var err error
	switch incoming.Type {
	case event.NewMessage:
		err = publishAs[event.NewMessagePayload](c, incoming)
	case event.Ack:
		err = publishAs[event.AckPayload](c, incoming)
	case event.Read:
		err = publishAs[event.ReadPayload](c, incoming)
	case event.Reaction:
		err = publishAs[event.ReactionPayload](c, incoming)
	case event.TypingStart, event.TypingStop:
		err = publishAs[event.TypingPayload](c, incoming)
	case event.Membership:
		err = publishAs[event.MembershipPayload](c, incoming)
	default:
		c.logger.Debug("dropping unknown frame type", "type", incoming.Type)
		return
	}
	if err != nil {
		c.logger.Warn("dropping malformed frame", "type", incoming.Type, "error", err)
	}
}

func publishAs[P any](c *Conn, incoming frame) error {
	var payload P
	if err := json.Unmarshal(incoming.Data, &payload); err != nil {
		return err
	}
	c.dispatcher.Publish(incoming.Type, payload)
	return nil
}

func (c *Conn) publishState(state event.ConnectionState) {
	c.logger.Info("connection state changed", "state", string(state))
	c.dispatcher.Publish(event.ConnectionChange, event.ConnectionChangePayload{State: state})
}

func (c *Conn) setSocket(ws *websocket.Conn) {
	c.writeMu.Lock()
	c.ws = ws
	c.writeMu.Unlock()
}

// write paces, envelopes, and transmits one outbound frame. Writing
// while disconnected is an error; the caller's reconnect-resend logic
// is the recovery path.
func (c *Conn) write(ctx context.Context, frameType string, data any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("transport: pacing %s frame: %w", frameType, err)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("transport: encoding %s frame: %w", frameType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.ws == nil {
		return fmt.Errorf("transport: not connected")
	}
	if err := c.ws.WriteJSON(frame{Type: frameType, Data: encoded}); err != nil {
		return fmt.Errorf("transport: writing %s frame: %w", frameType, err)
	}
	return nil
}

// Close tears the connection down and stops the reconnect loop. It
// returns once the read loop has exited.
func (c *Conn) Close() error {
	c.cancel()
	c.writeMu.Lock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	c.writeMu.Unlock()
	<-c.done
	return nil
}
