// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dashboard provides the interactive cost dashboard started by
// `tokencost dashboard`.
//
// The dashboard has four tabs: Summary, Prices, Trends and Models. Prices
// are loaded through the shared price cache in the background, so the UI
// never blocks on the network; usage comes from the local usage log. When
// another process rewrites the cached price file, the table reloads.
//
// Key bindings: tab/shift+tab switch tabs, r refetches prices, / filters
// the price list, ? toggles help and q quits.
package dashboard
