// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cost turns token counts into dollar amounts.
//
// Calculate applies a pricing.Price to a Usage:
//
//	b := cost.Calculate(price, cost.Usage{InputTokens: 1200, CachedInputTokens: 200, OutputTokens: 400})
//	fmt.Println(cost.UsageLine(usage, &b))
//
// An Estimator looks prices up through a PriceSource (normally the shared
// *pricing.Cache). It reports a missing price as ok=false rather than an
// error, so callers simply leave the cost out of their output.
package cost
