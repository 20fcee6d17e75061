// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/util"
)

const (
	// MaxPromptRunes is how much of a prompt is kept in the log.
	MaxPromptRunes = 100

	// TopQueryCount is how many of the most expensive queries a session keeps.
	TopQueryCount = 10
)

// =============================================================================
// COST TRACKER
// =============================================================================

// CostTracker tracks token usage and costs for the current session and
// persists every call to a Store.
type CostTracker struct {
	mu        sync.RWMutex
	session   *SessionCost
	store     *Store
	estimator *cost.Estimator
	logger    *slog.Logger
	now       func() time.Time
}

// SessionCost tracks costs for a single session.
type SessionCost struct {
	ID        string    `json:"id" yaml:"id"`
	StartTime time.Time `json:"start_time" yaml:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`

	Tokens   cost.Usage `json:"tokens" yaml:"tokens"`
	Queries  int        `json:"queries" yaml:"queries"`
	Unpriced int        `json:"unpriced" yaml:"unpriced"`

	// TotalCost sums the priced queries, in dollars.
	TotalCost float64            `json:"total_cost" yaml:"total_cost"`
	ByModel   map[string]float64 `json:"by_model" yaml:"by_model"`

	// TopQueries holds the most expensive queries, costliest first.
	TopQueries []QueryCost `json:"top_queries" yaml:"top_queries"`
}

// QueryCost is the outcome of recording one call.
type QueryCost struct {
	ID        string          `json:"id" yaml:"id"`
	Timestamp time.Time       `json:"timestamp" yaml:"timestamp"`
	Model     string          `json:"model" yaml:"model"`
	Prompt    string          `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Usage     cost.Usage      `json:"usage" yaml:"usage"`
	Breakdown *cost.Breakdown `json:"breakdown,omitempty" yaml:"breakdown,omitempty"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// Cost returns the query's total, or 0 when it is unpriced.
func (q QueryCost) Cost() float64 {
	if q.Breakdown == nil {
		return 0
	}
	return q.Breakdown.Total
}

// CostTrends provides aggregated cost trends over time.
type CostTrends struct {
	Days           int          `json:"days" yaml:"days"`
	TotalCost      float64      `json:"total_cost" yaml:"total_cost"`
	Queries        int          `json:"queries" yaml:"queries"`
	Unpriced       int          `json:"unpriced" yaml:"unpriced"`
	DailyBreakdown []DailyCost  `json:"daily_breakdown" yaml:"daily_breakdown"`
	ModelBreakdown []ModelTotal `json:"model_breakdown" yaml:"model_breakdown"`
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// NewCostTracker creates a tracker. A nil store keeps the session in memory
// only; a nil logger uses slog.Default().
func NewCostTracker(store *Store, estimator *cost.Estimator, logger *slog.Logger) *CostTracker {
	if logger == nil {
		logger = slog.Default()
	}
	ct := &CostTracker{
		store:     store,
		estimator: estimator,
		logger:    logger.With("component", "telemetry"),
		now:       time.Now,
	}
	ct.session = ct.newSession()
	return ct
}

func (ct *CostTracker) newSession() *SessionCost {
	return &SessionCost{
		ID:         uuid.New().String(),
		StartTime:  ct.now(),
		ByModel:    make(map[string]float64),
		TopQueries: make([]QueryCost, 0, TopQueryCount),
	}
}

// Store returns the backing store, which may be nil.
func (ct *CostTracker) Store() *Store {
	return ct.store
}

// =============================================================================
// RECORDING
// =============================================================================

// RecordQuery prices a call and adds it to the session and the store.
//
// Counts are normalized the way cost.Calculate sees them, so session and
// log totals match what was priced. A missing price is not an error: the
// query is kept with no breakdown and stored with a NULL cost so Reprice can
// fill it in later. The only error is
// a failed write to the store, and the session is updated regardless.
func (ct *CostTracker) RecordQuery(ctx context.Context, model string, u cost.Usage, duration time.Duration, prompt string) (QueryCost, error) {
	u = u.Normalize()
	q := QueryCost{
		ID:        uuid.New().String(),
		Timestamp: ct.now(),
		Model:     model,
		Prompt:    util.TruncateRunes(prompt, MaxPromptRunes),
		Usage:     u,
		Duration:  duration,
	}
	if b, ok := ct.estimator.Estimate(ctx, model, u); ok {
		q.Breakdown = &b
	}

	ct.mu.Lock()
	sessionID := ct.session.ID
	ct.apply(q)
	ct.mu.Unlock()

	if ct.store == nil {
		return q, nil
	}
	rec := Record{
		ID:        q.ID,
		SessionID: sessionID,
		Model:     model,
		Usage:     u,
		Duration:  duration,
		Prompt:    q.Prompt,
		CreatedAt: q.Timestamp,
	}
	if q.Breakdown != nil {
		total := q.Breakdown.Total
		rec.Cost = &total
		rec.Vendor = q.Breakdown.Vendor
	}
	if err := ct.store.Insert(ctx, &rec); err != nil {
		ct.logger.Warn("failed to persist usage record", "model", model, "error", err)
		return q, err
	}
	return q, nil
}

// apply folds q into the current session. Caller holds mu.
func (ct *CostTracker) apply(q QueryCost) {
	s := ct.session
	s.Queries++
	s.Tokens.InputTokens += q.Usage.InputTokens
	s.Tokens.CachedInputTokens += q.Usage.CachedInputTokens
	s.Tokens.OutputTokens += q.Usage.OutputTokens
	if q.Breakdown == nil {
		s.Unpriced++
	} else {
		s.TotalCost += q.Breakdown.Total
		s.ByModel[q.Model] += q.Breakdown.Total
	}

	s.TopQueries = append(s.TopQueries, q)
	sort.SliceStable(s.TopQueries, func(i, j int) bool {
		return s.TopQueries[i].Cost() > s.TopQueries[j].Cost()
	})
	if len(s.TopQueries) > TopQueryCount {
		s.TopQueries = s.TopQueries[:TopQueryCount]
	}
}

// =============================================================================
// RETRIEVAL
// =============================================================================

// GetCurrentSession returns a copy of the current session.
func (ct *CostTracker) GetCurrentSession() *SessionCost {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return copySession(ct.session)
}

// GetTrends aggregates the stored usage over the last days days.
func (ct *CostTracker) GetTrends(ctx context.Context, days int) (*CostTrends, error) {
	if days <= 0 {
		days = 7
	}
	trends := &CostTrends{
		Days:           days,
		DailyBreakdown: make([]DailyCost, 0),
		ModelBreakdown: make([]ModelTotal, 0),
	}
	if ct.store == nil {
		return trends, nil
	}

	to := ct.now()
	from := startOfDay(to).AddDate(0, 0, -(days - 1))

	daily, err := ct.store.Daily(ctx, from, time.Time{})
	if err != nil {
		return nil, err
	}
	models, err := ct.store.ByModel(ctx, from, time.Time{})
	if err != nil {
		return nil, err
	}
	trends.DailyBreakdown = append(trends.DailyBreakdown, daily...)
	trends.ModelBreakdown = append(trends.ModelBreakdown, models...)
	for _, m := range models {
		trends.TotalCost += m.Cost
		trends.Queries += m.Queries
		trends.Unpriced += m.Unpriced
	}
	return trends, nil
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// EndSession closes the current session and starts a new one. The closed
// session is returned.
func (ct *CostTracker) EndSession() *SessionCost {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ended := ct.session
	ended.EndTime = ct.now()
	ct.session = ct.newSession()
	return copySession(ended)
}

// Reprice computes costs for stored records in [from, to) that were logged
// without a price, using the price in effect when each call was made.
// It returns how many records were updated.
func (ct *CostTracker) Reprice(ctx context.Context, from, to time.Time) (int, error) {
	if ct.store == nil {
		return 0, nil
	}
	records, err := ct.store.Unpriced(ctx, from, to)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range records {
		b, ok := ct.estimator.EstimateAt(ctx, r.Model, r.Usage, r.CreatedAt)
		if !ok {
			continue
		}
		if err := ct.store.SetCost(ctx, r.ID, b.Vendor, b.Total); err != nil {
			return updated, err
		}
		updated++
	}
	if updated > 0 {
		ct.logger.Info("repriced usage records", "updated", updated, "remaining", len(records)-updated)
	}
	return updated, nil
}

// Prune deletes stored records older than retentionDays. Zero keeps everything.
func (ct *CostTracker) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if ct.store == nil || retentionDays <= 0 {
		return 0, nil
	}
	cutoff := startOfDay(ct.now()).AddDate(0, 0, -retentionDays)
	return ct.store.DeleteBefore(ctx, cutoff)
}

// =============================================================================
// HELPERS
// =============================================================================

func copySession(src *SessionCost) *SessionCost {
	dst := *src
	dst.ByModel = make(map[string]float64, len(src.ByModel))
	for k, v := range src.ByModel {
		dst.ByModel[k] = v
	}
	dst.TopQueries = make([]QueryCost, len(src.TopQueries))
	copy(dst.TopQueries, src.TopQueries)
	return &dst
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
