// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cost

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tokencost/internal/pricing"
)

func ptr(f float64) *float64 { return &f }

func date(t *testing.T, s string) *pricing.Date {
	t.Helper()
	d, err := pricing.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func testTable(t *testing.T) *pricing.Table {
	t.Helper()
	return pricing.NewTable("2025-06-01", []pricing.Price{
		{ID: "gpt-4o", Vendor: "openai", Name: "GPT-4o", Input: 2.5, Output: 10, InputCached: ptr(1.25)},
		{ID: "claude-3.5-sonnet", Vendor: "anthropic", Input: 3, Output: 15},
		{ID: "gemini-1.5-pro", Vendor: "google", Input: 7, Output: 21, ToDate: date(t, "2024-10-01")},
		{ID: "gemini-1.5-pro", Vendor: "google", Input: 1.25, Output: 5, FromDate: date(t, "2024-10-01")},
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingSource struct{ calls int }

func (s *failingSource) Get(context.Context) (*pricing.Table, error) {
	s.calls++
	return nil, pricing.ErrUnavailable
}

func TestCalculate(t *testing.T) {
	gpt4o := pricing.Price{ID: "gpt-4o", Vendor: "openai", Name: "GPT-4o", Input: 2.5, Output: 10, InputCached: ptr(1.25)}
	sonnet := pricing.Price{ID: "claude-3.5-sonnet", Vendor: "anthropic", Input: 3, Output: 15}

	tests := []struct {
		name                      string
		price                     pricing.Price
		usage                     Usage
		input, cached, out, total float64
	}{
		{
			name:  "plain",
			price: gpt4o,
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			input: 2.5, cached: 0, out: 10, total: 12.5,
		},
		{
			name:  "cached subset billed at cached price",
			price: gpt4o,
			usage: Usage{InputTokens: 1000, CachedInputTokens: 400, OutputTokens: 500},
			input: 600 * 2.5 / 1e6, cached: 400 * 1.25 / 1e6, out: 500 * 10 / 1e6,
			total: (600*2.5 + 400*1.25 + 500*10) / 1e6,
		},
		{
			name:  "no cached price falls back to input",
			price: sonnet,
			usage: Usage{InputTokens: 1000, CachedInputTokens: 1000},
			input: 0, cached: 1000 * 3 / 1e6, out: 0, total: 1000 * 3 / 1e6,
		},
		{
			name:  "cached above input is capped",
			price: gpt4o,
			usage: Usage{InputTokens: 100, CachedInputTokens: 500},
			input: 0, cached: 100 * 1.25 / 1e6, out: 0, total: 100 * 1.25 / 1e6,
		},
		{
			name:  "negative counts clamp to zero",
			price: gpt4o,
			usage: Usage{InputTokens: -5, CachedInputTokens: -1, OutputTokens: -10},
		},
		{
			name:  "zero usage",
			price: gpt4o,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Calculate(tt.price, tt.usage)
			assert.InDelta(t, tt.input, b.InputCost, 1e-12)
			assert.InDelta(t, tt.cached, b.CachedInputCost, 1e-12)
			assert.InDelta(t, tt.out, b.OutputCost, 1e-12)
			assert.InDelta(t, tt.total, b.Total, 1e-12)
			assert.InDelta(t, b.InputCost+b.CachedInputCost+b.OutputCost, b.Total, 1e-15)
			assert.Equal(t, tt.price.ID, b.Model)
		})
	}
}

func TestCalculate_Identity(t *testing.T) {
	b := Calculate(pricing.Price{ID: "local", Vendor: "self"}, Usage{InputTokens: 10})
	assert.Equal(t, "local", b.Name, "falls back to id when name is empty")
	assert.Equal(t, "self", b.Vendor)
	assert.Zero(t, b.Total)
}

func TestBreakdown_Add(t *testing.T) {
	var sum Breakdown
	sum.Add(Breakdown{InputCost: 1, CachedInputCost: 2, OutputCost: 3, Total: 6})
	sum.Add(Breakdown{InputCost: 1, Total: 1})
	assert.Equal(t, Breakdown{InputCost: 2, CachedInputCost: 2, OutputCost: 3, Total: 7}, sum)
}

func TestUsage_Total(t *testing.T) {
	assert.Equal(t, 30, Usage{InputTokens: 10, CachedInputTokens: 5, OutputTokens: 20}.Total())
	assert.Equal(t, 20, Usage{InputTokens: -10, OutputTokens: 20}.Total())
}

func TestEstimator_Estimate(t *testing.T) {
	e := NewEstimator(TableSource{Table: testTable(t)}, quietLogger())

	b, ok := e.Estimate(context.Background(), "openai/gpt-4o-2024-08-06", Usage{InputTokens: 2000, OutputTokens: 1000})
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", b.Model)
	assert.Equal(t, "2025-06-01", b.PricedAt)
	assert.InDelta(t, (2000*2.5+1000*10)/1e6, b.Total, 1e-12)

	_, ok = e.Estimate(context.Background(), "mystery-model", Usage{InputTokens: 1})
	assert.False(t, ok)
}

func TestEstimator_Unavailable(t *testing.T) {
	src := &failingSource{}
	e := NewEstimator(src, quietLogger())

	b, ok := e.Estimate(context.Background(), "gpt-4o", Usage{InputTokens: 100})
	assert.False(t, ok)
	assert.Equal(t, Breakdown{}, b)
	assert.Equal(t, 1, src.calls)

	_, ok = NewEstimator(TableSource{}, nil).Estimate(context.Background(), "gpt-4o", Usage{})
	assert.False(t, ok)

	var nilEstimator *Estimator
	_, ok = nilEstimator.Estimate(context.Background(), "gpt-4o", Usage{})
	assert.False(t, ok)
}

func TestEstimator_EstimateAt(t *testing.T) {
	e := NewEstimator(TableSource{Table: testTable(t)}, quietLogger())
	u := Usage{InputTokens: 1_000_000}

	before := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b, ok := e.EstimateAt(context.Background(), "gemini-1.5-pro", u, before)
	require.True(t, ok)
	assert.InDelta(t, 7.0, b.Total, 1e-9)
	assert.Equal(t, "2024-06-01", b.PricedAt)

	after := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	b, ok = e.EstimateAt(context.Background(), "gemini-1.5-pro", u, after)
	require.True(t, ok)
	assert.InDelta(t, 1.25, b.Total, 1e-9)

	_, ok = NewEstimator(&failingSource{}, quietLogger()).EstimateAt(context.Background(), "gemini-1.5-pro", u, after)
	assert.False(t, ok)
}

func TestEstimator_EstimatePrompt(t *testing.T) {
	e := NewEstimator(TableSource{Table: testTable(t)}, quietLogger())
	text := "Summarize the attached quarterly report in three bullet points please."

	est, ok := e.EstimatePrompt(context.Background(), "claude-3.5-sonnet", text, 0)
	require.True(t, ok)
	in := EstimateTokens(text)
	assert.Equal(t, in, est.Usage.InputTokens)
	assert.Equal(t, in*3, est.Usage.OutputTokens)
	assert.InDelta(t, DefaultOutputRatio, est.Ratio, 1e-9)
	assert.InDelta(t, float64(in)*3/1e6+float64(in*3)*15/1e6, est.Breakdown.Total, 1e-12)

	est, ok = e.EstimatePrompt(context.Background(), "unknown", text, 0.5)
	assert.False(t, ok)
	assert.Equal(t, in, est.Usage.InputTokens, "token estimate survives a missing price")
	assert.Equal(t, int(float64(in)*0.5), est.Usage.OutputTokens)
}

func TestEstimator_Lookup(t *testing.T) {
	e := NewEstimator(TableSource{Table: testTable(t)}, quietLogger())
	p, ok := e.Lookup(context.Background(), "GPT-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", p.Vendor)

	_, ok = NewEstimator(&failingSource{}, quietLogger()).Lookup(context.Background(), "gpt-4o")
	assert.False(t, ok)
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hi", 1},
		{"hello world", (2 + 11/4) / 2},
		{"The quick brown fox jumps over the lazy dog", (9 + 43/4) / 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), "EstimateTokens(%q)", tt.text)
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{0, "$0.00"},
		{0.0123, "$0.0123"},
		{0.00001, "$0.0000"},
		{0.99994, "$0.9999"},
		{0.99996, "$1.00"},
		{0.999949, "$0.9999"},
		{-0.99996, "-$1.00"},
		{1, "$1.00"},
		{12.346, "$12.35"},
		{1500, "$1500.00"},
		{-0.5, "-$0.5000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatUSD(tt.v), "FormatUSD(%v)", tt.v)
	}
}

func TestUsageLine(t *testing.T) {
	b := &Breakdown{Total: 0.0123}

	assert.Equal(t,
		"Token usage: 1,234 input (200 cached), 567 output, Cost: $0.0123",
		UsageLine(Usage{InputTokens: 1234, CachedInputTokens: 200, OutputTokens: 567}, b))

	assert.Equal(t,
		"Token usage: 1,234 input, 567 output",
		UsageLine(Usage{InputTokens: 1234, OutputTokens: 567}, nil),
		"cost omitted when unknown")

	assert.Equal(t,
		"Token usage: 0 input, 0 output, Cost: $0.00",
		UsageLine(Usage{}, &Breakdown{}))
}

func TestTableSource_Nil(t *testing.T) {
	_, err := TableSource{}.Get(context.Background())
	assert.True(t, errors.Is(err, pricing.ErrUnavailable))
}
