// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cost

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jeranaias/tokencost/internal/pricing"
)

// DefaultOutputRatio is the assumed output:input token ratio for
// pre-flight estimates.
const DefaultOutputRatio = 3.0

// PriceSource supplies the current price table. *pricing.Cache satisfies it.
type PriceSource interface {
	Get(ctx context.Context) (*pricing.Table, error)
}

// TableSource adapts a fixed table to PriceSource.
type TableSource struct {
	Table *pricing.Table
}

// Get implements PriceSource.
func (s TableSource) Get(context.Context) (*pricing.Table, error) {
	if s.Table == nil {
		return nil, pricing.ErrUnavailable
	}
	return s.Table, nil
}

// =============================================================================
// ESTIMATOR
// =============================================================================

// Estimator turns token counts into costs using a PriceSource.
//
// Its methods report ok=false instead of an error: a missing price never
// breaks the output it decorates.
type Estimator struct {
	source PriceSource
	logger *slog.Logger
}

// NewEstimator creates an Estimator. A nil logger uses slog.Default().
func NewEstimator(source PriceSource, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{source: source, logger: logger.With("component", "cost")}
}

// Estimate prices usage for model at current prices.
func (e *Estimator) Estimate(ctx context.Context, model string, u Usage) (Breakdown, bool) {
	table, ok := e.table(ctx)
	if !ok {
		return Breakdown{}, false
	}
	p, ok := table.Lookup(model)
	if !ok {
		e.logger.Debug("no price for model", "model", model)
		return Breakdown{}, false
	}
	b := Calculate(p, u)
	b.PricedAt = table.UpdatedAt()
	return b, true
}

// EstimateAt prices usage for model at the prices in effect at the given time.
func (e *Estimator) EstimateAt(ctx context.Context, model string, u Usage, at time.Time) (Breakdown, bool) {
	table, ok := e.table(ctx)
	if !ok {
		return Breakdown{}, false
	}
	p, ok := table.LookupAt(model, at)
	if !ok {
		e.logger.Debug("no price for model at time", "model", model, "at", at.Format(pricing.DateLayout))
		return Breakdown{}, false
	}
	b := Calculate(p, u)
	b.PricedAt = pricing.NewDate(at).String()
	return b, true
}

// Prompt is a pre-flight estimate for a prompt that has not been sent.
type Prompt struct {
	Usage     Usage     `json:"usage" yaml:"usage"`
	Ratio     float64   `json:"output_ratio" yaml:"output_ratio"`
	Breakdown Breakdown `json:"breakdown" yaml:"breakdown"`
}

// EstimatePrompt estimates the cost of sending text to model, assuming the
// reply is ratio times as long as the prompt. A ratio <= 0 uses
// DefaultOutputRatio. The returned Prompt always carries the token estimate;
// ok reports whether a price was found.
func (e *Estimator) EstimatePrompt(ctx context.Context, model, text string, ratio float64) (Prompt, bool) {
	if ratio <= 0 {
		ratio = DefaultOutputRatio
	}
	in := EstimateTokens(text)
	est := Prompt{
		Usage: Usage{InputTokens: in, OutputTokens: int(float64(in) * ratio)},
		Ratio: ratio,
	}
	b, ok := e.Estimate(ctx, model, est.Usage)
	est.Breakdown = b
	return est, ok
}

// Lookup resolves model against the current table.
func (e *Estimator) Lookup(ctx context.Context, model string) (pricing.Price, bool) {
	table, ok := e.table(ctx)
	if !ok {
		return pricing.Price{}, false
	}
	return table.Lookup(model)
}

func (e *Estimator) table(ctx context.Context) (*pricing.Table, bool) {
	if e == nil || e.source == nil {
		return nil, false
	}
	table, err := e.source.Get(ctx)
	if err != nil || table == nil {
		e.logger.Debug("prices unavailable, omitting cost", "error", err)
		return nil, false
	}
	return table, true
}

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// EstimateTokens approximates a token count for text.
// GPT-style tokenizers average ~4 chars per token; blending that with the
// word count smooths out code and prose alike.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)
	n := (words + chars/4) / 2
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}
