// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus instruments for the
// synchronization engine. One Metrics value is created per engine
// instance; pass a nil registerer to get working but unregistered
// collectors (the usual arrangement in unit tests).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector the engine updates.
type Metrics struct {
	// EventsPublished counts dispatcher deliveries by event name.
	EventsPublished *prometheus.CounterVec
	// HandlerPanics counts handler panics recovered at the
	// dispatcher boundary.
	HandlerPanics prometheus.Counter
	// DedupSuppressed counts events discarded by a dedup window,
	// by window name ("message" or "membership").
	DedupSuppressed *prometheus.CounterVec
	// Reconciliations counts inbound messages merged into an
	// existing optimistic record instead of appended.
	Reconciliations prometheus.Counter
	// Appends counts genuinely new records appended to a timeline.
	Appends prometheus.Counter
	// Resends counts sending records re-transmitted after a
	// connection restore.
	Resends prometheus.Counter
	// RetryFailures counts explicit retries that timed out without
	// an ack and were demoted back to failed.
	RetryFailures prometheus.Counter
	// TypingSignals counts outbound typing transmissions by
	// direction ("start" or "stop").
	TypingSignals *prometheus.CounterVec
}

// New builds the collector set and registers it with reg when reg is
// non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sona_events_published_total",
			Help: "Events delivered through the dispatcher, by event name.",
		}, []string{"event"}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sona_handler_panics_total",
			Help: "Handler panics recovered at the dispatcher boundary.",
		}),
		DedupSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sona_dedup_suppressed_total",
			Help: "Redelivered events discarded by a dedup window.",
		}, []string{"window"}),
		Reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sona_timeline_reconciliations_total",
			Help: "Inbound messages merged into existing optimistic records.",
		}),
		Appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sona_timeline_appends_total",
			Help: "New records appended to a timeline.",
		}),
		Resends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sona_resends_total",
			Help: "Sending records re-transmitted after reconnect.",
		}),
		RetryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sona_retry_failures_total",
			Help: "Explicit retries demoted back to failed after timeout.",
		}),
		TypingSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sona_typing_signals_total",
			Help: "Outbound typing transmissions, by direction.",
		}, []string{"direction"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.EventsPublished,
			m.HandlerPanics,
			m.DedupSuppressed,
			m.Reconciliations,
			m.Appends,
			m.Resends,
			m.RetryFailures,
			m.TypingSignals,
		)
	}
	return m
}
