// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleDoc mirrors the published current-v1 document shape.
const sampleDoc = `{
  "updated_at": "2025-06-01",
  "prices": [
    {"id": "gpt-4o", "vendor": "openai", "name": "GPT-4o", "input": 2.5, "output": 10, "input_cached": 1.25},
    {"id": "gpt-4o-mini", "vendor": "openai", "name": "GPT-4o Mini", "input": 0.15, "output": 0.6, "input_cached": 0.075},
    {"id": "claude-3.5-sonnet", "vendor": "anthropic", "name": "Claude 3.5 Sonnet", "input": 3, "output": 15, "input_cached": null},
    {"id": "claude-sonnet-4.5", "vendor": "anthropic", "name": "Claude Sonnet 4.5", "input": 3, "output": 15, "input_cached": 0.3},
    {"id": "gemini-2.0-flash", "vendor": "google", "name": "Gemini 2.0 Flash", "input": 0.1, "output": 0.4, "input_cached": 0.025},
    {"id": "gpt-4", "vendor": "openai", "name": "GPT-4", "input": 30, "output": 60, "input_cached": null}
  ]
}`

// historicalDoc has two dated entries for one model plus an undated one.
const historicalDoc = `{
  "prices": [
    {"id": "gemini-1.5-pro", "vendor": "google", "name": "Gemini 1.5 Pro", "input": 7, "output": 21, "input_cached": null, "from_date": null, "to_date": "2024-10-01"},
    {"id": "gemini-1.5-pro", "vendor": "google", "name": "Gemini 1.5 Pro", "input": 1.25, "output": 5, "input_cached": null, "from_date": "2024-10-01", "to_date": null},
    {"id": "gpt-4o", "vendor": "openai", "name": "GPT-4o", "input": 2.5, "output": 10, "input_cached": 1.25, "from_date": null, "to_date": null}
  ]
}`

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", doc.UpdatedAt)
	require.Len(t, doc.Prices, 6)

	first := doc.Prices[0]
	assert.Equal(t, "gpt-4o", first.ID)
	assert.Equal(t, "openai", first.Vendor)
	require.NotNil(t, first.InputCached)
	assert.InDelta(t, 1.25, *first.InputCached, 1e-9)
	assert.Nil(t, doc.Prices[2].InputCached, "null input_cached must decode to nil")
}

func TestDecodeDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "<html>rate limited</html>"},
		{"no prices", `{"prices": []}`},
		{"missing id", `{"prices": [{"vendor": "x", "input": 1, "output": 1}]}`},
		{"negative input", `{"prices": [{"id": "m", "input": -1, "output": 1}]}`},
		{"negative cached", `{"prices": [{"id": "m", "input": 1, "output": 1, "input_cached": -0.5}]}`},
		{"bad date", `{"prices": [{"id": "m", "input": 1, "output": 1, "from_date": "yesterday"}]}`},
		{"inverted range", `{"prices": [{"id": "m", "input": 1, "output": 1, "from_date": "2025-01-02", "to_date": "2025-01-01"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidDocument), "got %v", err)
		})
	}
}

func TestDate_JSON(t *testing.T) {
	var p Price
	require.NoError(t, json.Unmarshal([]byte(`{"id":"m","from_date":"2024-10-01","to_date":"2025-01-01T00:00:00Z"}`), &p))
	require.NotNil(t, p.FromDate)
	require.NotNil(t, p.ToDate)
	assert.Equal(t, "2024-10-01", p.FromDate.String())
	assert.Equal(t, "2025-01-01", p.ToDate.String())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"from_date":"2024-10-01"`)
	assert.Contains(t, string(out), `"input_cached":null`)
}

func TestPrice_ActiveAt(t *testing.T) {
	from, _ := ParseDate("2024-10-01")
	to, _ := ParseDate("2025-01-01")
	p := Price{ID: "m", FromDate: &from, ToDate: &to}

	day := func(s string) time.Time {
		d, err := ParseDate(s)
		require.NoError(t, err)
		return d.Time.Add(13 * time.Hour)
	}

	assert.False(t, p.ActiveAt(day("2024-09-30")))
	assert.True(t, p.ActiveAt(day("2024-10-01")), "from_date is inclusive")
	assert.True(t, p.ActiveAt(day("2024-12-31")))
	assert.False(t, p.ActiveAt(day("2025-01-01")), "to_date is exclusive")

	open := Price{ID: "m"}
	assert.True(t, open.ActiveAt(time.Now()))
	assert.True(t, open.Current())
	assert.False(t, p.Current())
}

func TestPrice_CachedInputPrice(t *testing.T) {
	cached := 0.3
	assert.InDelta(t, 0.3, Price{Input: 3, InputCached: &cached}.CachedInputPrice(), 1e-9)
	assert.InDelta(t, 3.0, Price{Input: 3}.CachedInputPrice(), 1e-9)
}

func TestPrice_DisplayName(t *testing.T) {
	assert.Equal(t, "GPT-4o", Price{ID: "gpt-4o", Name: "GPT-4o"}.DisplayName())
	assert.Equal(t, "local-llama", Price{ID: "local-llama"}.DisplayName())
}
