// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing provides the LLM price table and its on-disk cache.
//
// Prices come from a public JSON document listing per-million-token input,
// output and cached-input prices for each model. The document is cached in
// the user config directory and refetched once it is older than the TTL
// (24 hours by default). When a refetch fails the stale copy is used; only
// when nothing was ever cached does Get fail with ErrUnavailable.
//
// # Key Types
//
//   - Price: one model's pricing, optionally bounded by a date range
//   - Table: immutable indexed lookup with vendor-prefix, version-suffix and alias resolution
//   - Cache: lazy, TTL-bound, stale-tolerant loader with sync and async entry points
//
// # Usage
//
//	table, err := pricing.Default().Get(ctx)
//	if err != nil {
//	    return // no prices; omit cost display
//	}
//	if p, ok := table.Lookup("openai/gpt-4o-2024-08-06"); ok {
//	    fmt.Println(p.Input, p.Output)
//	}
package pricing
