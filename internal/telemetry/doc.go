// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records provider calls and reports what they cost.
//
// # Key Types
//
//   - Store: SQLite usage log, one row per call
//   - CostTracker: current-session totals plus persistence to a Store
//   - Report: aggregated usage for a period, renderable as markdown
//
// # Usage
//
//	store, err := telemetry.OpenStore(cfg.DatabasePath())
//	tracker := telemetry.NewCostTracker(store, estimator, logger)
//	q, _ := tracker.RecordQuery(ctx, "gpt-4o", usage, elapsed, prompt)
//
// Calls made while prices are unavailable are stored with a NULL cost;
// Reprice fills them in later from the price in effect at the time.
//
// # Privacy
//
// The log is local-only. At most the first 100 characters of a prompt are kept.
package telemetry
