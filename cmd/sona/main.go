// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Sona is a terminal chat client backed by the synchronization engine.
// It connects to a chat backend over a websocket, opens one room, and
// renders the live timeline with optimistic sends, typing presence,
// and read receipts.
//
// Configuration comes from a YAML file (SONA_CONFIG or --config); a
// .env file in the working directory is loaded first, so endpoint
// variables referenced by the config can live there.
//
// Usage:
//
//	sona --room <room-id> --user <user-id> [--name <display-name>]
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/sona-chat/sona/engine"
	"github.com/sona-chat/sona/event"
	"github.com/sona-chat/sona/lib/config"
	"github.com/sona-chat/sona/room"
	"github.com/sona-chat/sona/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sona: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to sona.yaml (overrides SONA_CONFIG)")
		roomID      = flag.String("room", "", "room id to open")
		userID      = flag.String("user", "", "local user id")
		displayName = flag.String("name", "", "local display name (defaults to the user id)")
		logPath     = flag.String("log-file", "", "write logs to this file (default: discard)")
	)
	flag.Parse()

	if *roomID == "" || *userID == "" {
		flag.Usage()
		return fmt.Errorf("--room and --user are required")
	}

	// A .env file may hold the endpoint variables the config expands.
	// Absence is fine.
	godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, cleanup, err := newLogger(*logPath)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go serveMetrics(addr, registry, logger)
	}

	name := *displayName
	if name == "" {
		name = *userID
	}
	localUser := event.Sender{ID: *userID, DisplayName: name}

	return runSession(ctx, cfg, *roomID, localUser, logger, registry)
}

// runSession wires the transport, engine, and TUI together and blocks
// until the user quits or the context is cancelled.
func runSession(ctx context.Context, cfg *config.Config, roomID string, localUser event.Sender, logger *slog.Logger, registry prometheus.Registerer) error {
	// The engine owns the dispatcher; the transport publishes into it.
	// Break the cycle by creating the engine with a late-bound conn.
	lateBound := &lateTransport{}

	eng, err := engine.New(engine.Config{
		LocalUser:        localUser,
		Transport:        lateBound,
		History:          &transport.HistoryClient{BaseURL: cfg.Server.HistoryURL},
		Logger:           logger,
		Registerer:       registry,
		RetryTimeout:     cfg.RetryTimeout(),
		TypingInactivity: cfg.TypingInactivity(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	conn, err := transport.Dial(ctx, transport.Config{
		URL:        cfg.Server.WebSocketURL,
		Dispatcher: eng.Dispatcher(),
		Logger:     logger,
		MinBackoff: cfg.MinBackoff(),
		MaxBackoff: cfg.MaxBackoff(),
		SendRate:   cfg.Reconnect.SendRate,
		SendBurst:  cfg.Reconnect.SendBurst,
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	lateBound.Conn = conn

	// The authentication collaborator is out of scope for the CLI: a
	// reachable endpoint is treated as an authenticated session.
	eng.SetAuthStatus(engine.AuthAuthenticated)

	return runTUI(ctx, eng, roomID, localUser, logger)
}

// lateTransport defers to a Conn assigned after engine construction.
// The engine needs a transport at New time, but the Conn needs the
// engine's dispatcher to dial.
type lateTransport struct {
	*transport.Conn
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("SONA_CONFIG") != "" {
		return config.Load()
	}
	// No file: development defaults point at localhost.
	return config.Default(), nil
}

// newLogger builds the session logger. The TUI owns the terminal, so
// logs go to a file or nowhere.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return slog.New(slog.NewTextHandler(file, nil)), func() { file.Close() }, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("metrics listener starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

// runTUI opens the room and hands the terminal to bubbletea.
func runTUI(ctx context.Context, eng *engine.Engine, roomID string, localUser event.Sender, logger *slog.Logger) error {
	model := newModel(roomID, localUser)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	opened, err := eng.OpenRoom(ctx, roomID, room.Callbacks{
		OnUpdate: func() { program.Send(timelineUpdatedMsg{}) },
		OnHistoryError: func(err error) {
			program.Send(loadFailedMsg{err: err, accessDenied: false})
		},
		OnAccessDenied: func(err error) {
			program.Send(loadFailedMsg{err: err, accessDenied: true})
		},
		OnMembership: func(payload event.MembershipPayload) {
			program.Send(membershipMsg{payload: payload})
		},
	})
	if err != nil {
		return err
	}
	model.attachRoom(opened)

	// Connection state drives the header.
	unregister := eng.Dispatcher().Register(event.ConnectionChange, func(payload any) {
		if change, ok := payload.(event.ConnectionChangePayload); ok {
			program.Send(connectionMsg{state: change.State})
		}
	})
	defer unregister()

	logger.Info("session starting", "room_id", model.roomID, "user_id", localUser.ID)
	_, err = program.Run()
	return err
}
