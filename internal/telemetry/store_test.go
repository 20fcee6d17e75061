// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tokencost/internal/cost"
)

func f64(v float64) *float64 { return &v }

func TestStore_InsertAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	rec := &Record{
		SessionID: "s1",
		Model:     "gpt-4o",
		Vendor:    "openai",
		Usage:     cost.Usage{InputTokens: 1200, CachedInputTokens: 200, OutputTokens: 300},
		Cost:      f64(0.0042),
		Duration:  1500 * time.Millisecond,
		Prompt:    "hello",
		CreatedAt: base,
	}
	require.NoError(t, store.Insert(ctx, rec))
	assert.NotEmpty(t, rec.ID, "Insert assigns an id")

	require.NoError(t, store.Insert(ctx, &Record{SessionID: "s1", Model: "mystery", CreatedAt: base.Add(time.Minute)}))

	records, err := store.List(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Usage, got.Usage)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.True(t, got.CreatedAt.Equal(base))
	require.NotNil(t, got.Cost)
	assert.InDelta(t, 0.0042, *got.Cost, 1e-12)

	assert.False(t, records[1].Priced())

	// [from, to) excludes the upper bound.
	records, err = store.List(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_InsertDefaults(t *testing.T) {
	store := openTestStore(t)
	rec := &Record{Model: "gpt-4o"}
	require.NoError(t, store.Insert(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)

	dup := &Record{ID: rec.ID, Model: "gpt-4o"}
	assert.Error(t, store.Insert(context.Background(), dup), "duplicate id must be rejected")
}

func TestStore_Recent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(ctx, &Record{Model: "m", Prompt: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	recent, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "e", recent[0].Prompt, "newest first")
	assert.Equal(t, "c", recent[2].Prompt)
}

func TestStore_ByModel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	inserts := []Record{
		{Model: "gpt-4o", Vendor: "openai", Usage: cost.Usage{InputTokens: 100, OutputTokens: 10}, Cost: f64(1)},
		{Model: "gpt-4o", Vendor: "openai", Usage: cost.Usage{InputTokens: 200, CachedInputTokens: 50, OutputTokens: 20}, Cost: f64(2)},
		{Model: "gpt-4o", Usage: cost.Usage{InputTokens: 1}},
		{Model: "claude-3.5-sonnet", Vendor: "anthropic", Usage: cost.Usage{InputTokens: 5}, Cost: f64(0.5)},
	}
	for i := range inserts {
		require.NoError(t, store.Insert(ctx, &inserts[i]))
	}

	totals, err := store.ByModel(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, totals, 2)

	top := totals[0]
	assert.Equal(t, "gpt-4o", top.Model, "most expensive first")
	assert.Equal(t, "openai", top.Vendor)
	assert.Equal(t, 3, top.Queries)
	assert.Equal(t, 1, top.Unpriced)
	assert.Equal(t, int64(301), top.InputTokens)
	assert.Equal(t, int64(50), top.CachedTokens)
	assert.Equal(t, int64(30), top.OutputTokens)
	assert.InDelta(t, 3.0, top.Cost, 1e-12)
}

func TestStore_SetCost(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &Record{Model: "gpt-4o"}
	require.NoError(t, store.Insert(ctx, rec))
	require.NoError(t, store.SetCost(ctx, rec.ID, "openai", 0.25))

	records, err := store.List(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Cost)
	assert.InDelta(t, 0.25, *records[0].Cost, 1e-12)
	assert.Equal(t, "openai", records[0].Vendor)

	// An empty vendor leaves the stored one alone.
	require.NoError(t, store.SetCost(ctx, rec.ID, "", 0.5))
	records, _ = store.List(ctx, time.Time{}, time.Time{})
	assert.Equal(t, "openai", records[0].Vendor)

	assert.Error(t, store.SetCost(ctx, "missing", "", 1))
}

func TestStore_Closed(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is a no-op")

	ctx := context.Background()
	assert.True(t, errors.Is(store.Insert(ctx, &Record{}), ErrStoreClosed))
	_, err = store.Count(ctx)
	assert.True(t, errors.Is(err, ErrStoreClosed))
	_, err = store.List(ctx, time.Time{}, time.Time{})
	assert.True(t, errors.Is(err, ErrStoreClosed))
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "usage.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), &Record{Model: "gpt-4o"}))
	require.NoError(t, store.Close())

	store, err = OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	size, err := store.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
	assert.Equal(t, path, store.Path())
}

func TestOpenStore_EmptyPath(t *testing.T) {
	_, err := OpenStore("")
	assert.Error(t, err)
}

func TestBuildReport(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2025, 5, 20, 12, 0, 0, 0, time.Local)

	require.NoError(t, store.Insert(ctx, &Record{Model: "gpt-4o", Usage: cost.Usage{InputTokens: 1500, OutputTokens: 250}, Cost: f64(0.0063), CreatedAt: day}))
	require.NoError(t, store.Insert(ctx, &Record{Model: "local-llama", Usage: cost.Usage{InputTokens: 10}, CreatedAt: day.Add(time.Hour)}))

	report, err := BuildReport(ctx, store, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queries)
	assert.Equal(t, 1, report.Unpriced)
	assert.Equal(t, 1510, report.Tokens.InputTokens)
	assert.InDelta(t, 0.0063, report.TotalCost, 1e-12)

	md := report.Markdown()
	assert.True(t, strings.HasPrefix(md, "# Usage report"))
	assert.Contains(t, md, "**Total cost:** $0.0063")
	assert.Contains(t, md, "(1 without a known price)")
	assert.Contains(t, md, "| gpt-4o | 1 | 1,500 | 250 | $0.0063 |")
	assert.Contains(t, md, "| local-llama | 1 | 10 | 0 | n/a |")
	assert.Contains(t, md, "Tue 2025-05-20")

	empty, err := BuildReport(ctx, store, day.AddDate(1, 0, 0), day.AddDate(1, 0, 1))
	require.NoError(t, err)
	assert.Contains(t, empty.Markdown(), "No usage recorded")
}

func TestReport_MarkdownEscapesModelIDs(t *testing.T) {
	r := &Report{
		Queries: 1,
		Models:  []ModelTotal{{Model: "router|gpt-4o", Queries: 1, Cost: 0.01}},
	}

	md := r.Markdown()
	assert.Contains(t, md, `| router\|gpt-4o | 1 |`)
	assert.NotContains(t, md, "| router|gpt-4o |")
}
