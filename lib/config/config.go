// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Sona.
//
// Configuration is loaded from a single file specified by:
//   - SONA_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Sona.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the backend endpoints.
	Server ServerConfig `yaml:"server"`

	// Sync configures the synchronization engine timings.
	Sync SyncConfig `yaml:"sync"`

	// Reconnect configures the websocket reconnect backoff.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Metrics configures the Prometheus debug listener.
	Metrics MetricsConfig `yaml:"metrics"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Sync      *SyncConfig      `yaml:"sync,omitempty"`
	Reconnect *ReconnectConfig `yaml:"reconnect,omitempty"`
	Metrics   *MetricsConfig   `yaml:"metrics,omitempty"`
}

// ServerConfig configures the backend endpoints.
type ServerConfig struct {
	// WebSocketURL is the realtime frame endpoint (ws:// or wss://).
	WebSocketURL string `yaml:"websocket_url"`

	// HistoryURL is the HTTP root for initial history fetches.
	HistoryURL string `yaml:"history_url"`
}

// SyncConfig configures the engine timings. Durations are strings in
// time.ParseDuration syntax ("10s", "3000ms").
type SyncConfig struct {
	// TypingInactivity is how long the composer may stay quiet before
	// a typing stop signal goes out.
	// Default: 3s
	TypingInactivity string `yaml:"typing_inactivity"`

	// RetryTimeout bounds an explicit message retry before it is
	// demoted back to failed.
	// Default: 10s
	RetryTimeout string `yaml:"retry_timeout"`
}

// ReconnectConfig configures the websocket reconnect backoff and the
// outbound frame pacing.
type ReconnectConfig struct {
	// MinBackoff is the first reconnect delay.
	// Default: 500ms
	MinBackoff string `yaml:"min_backoff"`

	// MaxBackoff caps the doubled delays.
	// Default: 30s
	MaxBackoff string `yaml:"max_backoff"`

	// SendRate is the sustained outbound frames-per-second budget.
	// Default: 10
	SendRate float64 `yaml:"send_rate"`

	// SendBurst is the outbound burst allowance.
	// Default: 20
	SendBurst int `yaml:"send_burst"`
}

// MetricsConfig configures the Prometheus debug listener.
type MetricsConfig struct {
	// ListenAddr is the address for the /metrics endpoint. Empty
	// disables the listener.
	// Default: "" (development), "127.0.0.1:9477" (production)
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			WebSocketURL: "ws://localhost:8080/ws",
			HistoryURL:   "http://localhost:8080/api",
		},
		Sync: SyncConfig{
			TypingInactivity: "3s",
			RetryTimeout:     "10s",
		},
		Reconnect: ReconnectConfig{
			MinBackoff: "500ms",
			MaxBackoff: "30s",
			SendRate:   10,
			SendBurst:  20,
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
	}
}

// Load loads configuration from the SONA_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if SONA_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("SONA_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SONA_CONFIG environment variable not set; " +
			"set it to the path of your sona.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${VAR} substitution in the endpoint URLs,
// so a token or host can be injected without editing the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${VAR} patterns in the endpoint URLs.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: metrics listener on by default.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Metrics: &MetricsConfig{
					ListenAddr: "127.0.0.1:9477",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.WebSocketURL != "" {
			c.Server.WebSocketURL = overrides.Server.WebSocketURL
		}
		if overrides.Server.HistoryURL != "" {
			c.Server.HistoryURL = overrides.Server.HistoryURL
		}
	}

	if overrides.Sync != nil {
		if overrides.Sync.TypingInactivity != "" {
			c.Sync.TypingInactivity = overrides.Sync.TypingInactivity
		}
		if overrides.Sync.RetryTimeout != "" {
			c.Sync.RetryTimeout = overrides.Sync.RetryTimeout
		}
	}

	if overrides.Reconnect != nil {
		if overrides.Reconnect.MinBackoff != "" {
			c.Reconnect.MinBackoff = overrides.Reconnect.MinBackoff
		}
		if overrides.Reconnect.MaxBackoff != "" {
			c.Reconnect.MaxBackoff = overrides.Reconnect.MaxBackoff
		}
		if overrides.Reconnect.SendRate > 0 {
			c.Reconnect.SendRate = overrides.Reconnect.SendRate
		}
		if overrides.Reconnect.SendBurst > 0 {
			c.Reconnect.SendBurst = overrides.Reconnect.SendBurst
		}
	}

	if overrides.Metrics != nil {
		if overrides.Metrics.ListenAddr != "" {
			c.Metrics.ListenAddr = overrides.Metrics.ListenAddr
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// endpoint URLs.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Server.WebSocketURL = expandVars(c.Server.WebSocketURL, vars)
	c.Server.HistoryURL = expandVars(c.Server.HistoryURL, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.WebSocketURL == "" {
		errs = append(errs, fmt.Errorf("server.websocket_url is required"))
	}
	if c.Server.HistoryURL == "" {
		errs = append(errs, fmt.Errorf("server.history_url is required"))
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"sync.typing_inactivity", c.Sync.TypingInactivity},
		{"sync.retry_timeout", c.Sync.RetryTimeout},
		{"reconnect.min_backoff", c.Reconnect.MinBackoff},
		{"reconnect.max_backoff", c.Reconnect.MaxBackoff},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		}
	}

	if c.Reconnect.SendRate <= 0 {
		errs = append(errs, fmt.Errorf("reconnect.send_rate must be positive"))
	}
	if c.Reconnect.SendBurst <= 0 {
		errs = append(errs, fmt.Errorf("reconnect.send_burst must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// TypingInactivity returns the parsed typing inactivity window.
// Validate must have passed.
func (c *Config) TypingInactivity() time.Duration { return mustDuration(c.Sync.TypingInactivity) }

// RetryTimeout returns the parsed retry timeout. Validate must have
// passed.
func (c *Config) RetryTimeout() time.Duration { return mustDuration(c.Sync.RetryTimeout) }

// MinBackoff returns the parsed minimum reconnect delay. Validate must
// have passed.
func (c *Config) MinBackoff() time.Duration { return mustDuration(c.Reconnect.MinBackoff) }

// MaxBackoff returns the parsed maximum reconnect delay. Validate must
// have passed.
func (c *Config) MaxBackoff() time.Duration { return mustDuration(c.Reconnect.MaxBackoff) }

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
