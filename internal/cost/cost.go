// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cost

import (
	"github.com/jeranaias/tokencost/internal/pricing"
)

// PerMillion is the unit prices are published in.
const PerMillion = 1_000_000

// =============================================================================
// TYPES
// =============================================================================

// Usage is the token accounting a provider reports for one call.
//
// CachedInputTokens is a subset of InputTokens, matching how providers
// report prompt-cache hits.
type Usage struct {
	InputTokens       int `json:"input_tokens" yaml:"input_tokens"`
	CachedInputTokens int `json:"cached_input_tokens" yaml:"cached_input_tokens"`
	OutputTokens      int `json:"output_tokens" yaml:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	n := u.Normalize()
	return n.InputTokens + n.OutputTokens
}

// Normalize clamps negative counts to zero and caps cached at input.
func (u Usage) Normalize() Usage {
	if u.InputTokens < 0 {
		u.InputTokens = 0
	}
	if u.OutputTokens < 0 {
		u.OutputTokens = 0
	}
	if u.CachedInputTokens < 0 {
		u.CachedInputTokens = 0
	}
	if u.CachedInputTokens > u.InputTokens {
		u.CachedInputTokens = u.InputTokens
	}
	return u
}

// Breakdown is the computed cost of one call in USD.
type Breakdown struct {
	Model  string `json:"model" yaml:"model"`
	Vendor string `json:"vendor" yaml:"vendor"`
	Name   string `json:"name" yaml:"name"`

	InputCost       float64 `json:"input_cost" yaml:"input_cost"`
	CachedInputCost float64 `json:"cached_input_cost" yaml:"cached_input_cost"`
	OutputCost      float64 `json:"output_cost" yaml:"output_cost"`
	Total           float64 `json:"total" yaml:"total"`

	// PricedAt is the price table's updated_at, or the day a historical
	// price was looked up for.
	PricedAt string `json:"priced_at,omitempty" yaml:"priced_at,omitempty"`
}

// Add accumulates other's sub-totals into b. Identity fields are kept.
func (b *Breakdown) Add(other Breakdown) {
	b.InputCost += other.InputCost
	b.CachedInputCost += other.CachedInputCost
	b.OutputCost += other.OutputCost
	b.Total += other.Total
}

// =============================================================================
// ARITHMETIC
// =============================================================================

// Calculate prices usage against p.
//
// Uncached input tokens are billed at the input price, cached input tokens at
// the cached price (or the input price when none is published) and output
// tokens at the output price. Each sub-total is tokens * price / 1e6.
func Calculate(p pricing.Price, u Usage) Breakdown {
	u = u.Normalize()
	uncached := u.InputTokens - u.CachedInputTokens

	b := Breakdown{
		Model:           p.ID,
		Vendor:          p.Vendor,
		Name:            p.DisplayName(),
		InputCost:       tokenCost(uncached, p.Input),
		CachedInputCost: tokenCost(u.CachedInputTokens, p.CachedInputPrice()),
		OutputCost:      tokenCost(u.OutputTokens, p.Output),
	}
	b.Total = b.InputCost + b.CachedInputCost + b.OutputCost
	return b
}

func tokenCost(tokens int, perMillion float64) float64 {
	return float64(tokens) * perMillion / PerMillion
}
