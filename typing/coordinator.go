// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package typing

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sona-chat/sona/lib/clock"
)

// DefaultInactivity is how long the composer may stay quiet before a
// stop signal goes out.
const DefaultInactivity = 3000 * time.Millisecond

// state is the coordinator's position in the outbound machine.
type state int

const (
	stateIdle state = iota
	stateTyping
)

// Config configures a Coordinator.
type Config struct {
	// Clock drives the inactivity timer.
	Clock clock.Clock
	// Send transmits a typing signal to the backend: true for start,
	// false for stop. Called outside the coordinator's lock.
	Send func(isTyping bool)
	// Inactivity overrides DefaultInactivity when positive.
	Inactivity time.Duration
}

// Coordinator debounces outbound typing signals for one room.
// All methods are safe for concurrent use.
type Coordinator struct {
	clock      clock.Clock
	send       func(isTyping bool)
	inactivity time.Duration

	mu    sync.Mutex
	state state
	timer *clock.Timer
}

// NewCoordinator creates a Coordinator in the idle state.
func NewCoordinator(config Config) (*Coordinator, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("typing: Clock is required")
	}
	if config.Send == nil {
		return nil, fmt.Errorf("typing: Send is required")
	}
	inactivity := config.Inactivity
	if inactivity <= 0 {
		inactivity = DefaultInactivity
	}
	return &Coordinator{
		clock:      config.Clock,
		send:       config.Send,
		inactivity: inactivity,
	}, nil
}

// SetText feeds the coordinator the composer's current text. The first
// non-empty edge sends start and arms the inactivity timer; further
// non-empty updates only re-arm it. Emptying the composer while typing
// sends stop immediately.
func (c *Coordinator) SetText(text string) {
	empty := strings.TrimSpace(text) == ""

	c.mu.Lock()
	switch {
	case c.state == stateIdle && !empty:
		c.state = stateTyping
		c.timer = c.clock.AfterFunc(c.inactivity, c.expire)
		c.mu.Unlock()
		c.send(true)

	case c.state == stateTyping && !empty:
		c.timer.Reset(c.inactivity)
		c.mu.Unlock()

	case c.state == stateTyping && empty:
		c.stopLocked()
		c.mu.Unlock()
		c.send(false)

	default:
		c.mu.Unlock()
	}
}

// Submit reports that the composed message was sent. If currently
// typing, stop goes out unconditionally.
func (c *Coordinator) Submit() { c.forceStop() }

// Close tears the coordinator down, sending stop if still typing and
// cancelling the timer.
func (c *Coordinator) Close() { c.forceStop() }

// forceStop transitions to idle and sends stop if we were typing.
func (c *Coordinator) forceStop() {
	c.mu.Lock()
	if c.state != stateTyping {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()
	c.send(false)
}

// expire is the inactivity timer callback.
func (c *Coordinator) expire() {
	c.mu.Lock()
	if c.state != stateTyping {
		c.mu.Unlock()
		return
	}
	c.state = stateIdle
	c.timer = nil
	c.mu.Unlock()
	c.send(false)
}

// stopLocked cancels the timer and returns to idle. Caller holds c.mu.
func (c *Coordinator) stopLocked() {
	c.state = stateIdle
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
