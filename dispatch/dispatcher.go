// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/sona-chat/sona/metrics"
)

// Handler receives a published payload. Handlers must type-assert the
// payload to the event's type (see the event package).
type Handler func(payload any)

// Config configures a Dispatcher. Zero values are usable: a nil
// Logger falls back to slog.Default and a nil Metrics disables
// instrumentation.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Dispatcher is a synchronous pub/sub bus. Publish runs every handler
// registered under the event name, in registration order, before it
// returns. A handler panic is recovered and logged; it neither stops
// delivery to sibling handlers nor reaches the publisher.
//
// Handlers may register and unregister (including themselves) from
// inside a handler: Publish iterates a snapshot taken when it starts,
// so registration changes take effect for the next publish, never for
// the one in flight.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	handlers map[string][]*registration
}

type registration struct {
	event   string
	handler Handler
}

// New creates an empty Dispatcher.
func New(config Config) *Dispatcher {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		metrics:  config.Metrics,
		handlers: make(map[string][]*registration),
	}
}

// Register subscribes handler to the named event and returns an
// unregister function. The unregister function is idempotent. If the
// event is currently being published, neither the registration nor a
// later unregistration affects the in-flight delivery.
func (d *Dispatcher) Register(eventName string, handler Handler) func() {
	reg := &registration{event: eventName, handler: handler}

	d.mu.Lock()
	d.handlers[eventName] = append(d.handlers[eventName], reg)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		regs := d.handlers[eventName]
		for i, candidate := range regs {
			if candidate == reg {
				d.handlers[eventName] = slices.Delete(regs, i, i+1)
				return
			}
		}
	}
}

// Publish delivers payload to every handler registered under
// eventName at the moment of the call, synchronously and in
// registration order.
func (d *Dispatcher) Publish(eventName string, payload any) {
	d.mu.Lock()
	regs := slices.Clone(d.handlers[eventName])
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.EventsPublished.WithLabelValues(eventName).Inc()
	}

	for _, reg := range regs {
		d.invoke(reg, payload)
	}
}

// invoke runs one handler with panic containment.
func (d *Dispatcher) invoke(reg *registration, payload any) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if d.metrics != nil {
				d.metrics.HandlerPanics.Inc()
			}
			d.logger.Error("event handler panicked",
				"event", reg.event,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	reg.handler(payload)
}

// UnregisterAll removes every registration. Intended for test
// isolation between cases that share a dispatcher.
func (d *Dispatcher) UnregisterAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = make(map[string][]*registration)
}
