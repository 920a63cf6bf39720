// Copyright 2026 The Sona Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Sona.
//
// Configuration is loaded from a single file specified by either the
// SONA_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults differ: the
// Prometheus metrics listener is enabled by default.
//
// Variable expansion is performed on the endpoint URLs after loading:
// ${VAR} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Server, Sync, Reconnect, Metrics
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Sona packages.
package config
