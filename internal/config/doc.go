// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for tokencost.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - PricingConfig: Price table source, cache TTL, fetch timeout, aliases
//   - UsageConfig: Local usage log (SQLite) settings
//   - EstimateConfig: Pre-flight estimate defaults
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (TOKENCOST_*), including values from .env files
//   - <user config dir>/tokencost/config.toml
//   - <user config dir>/tokencost/config.json
//   - Built-in defaults
//
// TOKENCOST_HOME replaces the config directory entirely.
//
// # Usage
//
//	cfg := config.Global()
//	ttl := cfg.Pricing.TTL()
//	path, _ := cfg.PriceCachePath()
package config
