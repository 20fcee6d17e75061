// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/tokencost/internal/cost"
)

// ErrStoreClosed is returned by operations on a closed Store.
var ErrStoreClosed = errors.New("usage store is closed")

// =============================================================================
// TYPES
// =============================================================================

// Record is one provider call in the usage log.
type Record struct {
	ID        string        `json:"id" yaml:"id"`
	SessionID string        `json:"session_id" yaml:"session_id"`
	Model     string        `json:"model" yaml:"model"`
	Vendor    string        `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Usage     cost.Usage    `json:"usage" yaml:"usage"`
	Cost      *float64      `json:"cost" yaml:"cost"` // nil when no price was known
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Prompt    string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}

// Priced reports whether the record carries a cost.
func (r Record) Priced() bool {
	return r.Cost != nil
}

// ModelTotal aggregates usage for one model.
type ModelTotal struct {
	Model        string  `json:"model" yaml:"model"`
	Vendor       string  `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Queries      int     `json:"queries" yaml:"queries"`
	Unpriced     int     `json:"unpriced" yaml:"unpriced"`
	InputTokens  int64   `json:"input_tokens" yaml:"input_tokens"`
	CachedTokens int64   `json:"cached_tokens" yaml:"cached_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
	Cost         float64 `json:"cost" yaml:"cost"`
}

// DailyCost aggregates usage for one local calendar day.
type DailyCost struct {
	Date         time.Time `json:"date" yaml:"date"`
	Cost         float64   `json:"cost" yaml:"cost"`
	QueryCount   int       `json:"query_count" yaml:"query_count"`
	InputTokens  int64     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64     `json:"output_tokens" yaml:"output_tokens"`
}

// =============================================================================
// STORE
// =============================================================================

// Store persists usage records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates the usage database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("usage store: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, schemaVersion)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Insert adds r to the log. An empty ID is filled with a UUID and a zero
// CreatedAt with the current time; the stored values are written back to r.
func (s *Store) Insert(ctx context.Context, r *Record) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var costValue sql.NullFloat64
	if r.Cost != nil {
		costValue = sql.NullFloat64{Float64: *r.Cost, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage (id, session_id, model, vendor, input_tokens, cached_tokens,
		                    output_tokens, cost, duration_ms, prompt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Model, r.Vendor,
		r.Usage.InputTokens, r.Usage.CachedInputTokens, r.Usage.OutputTokens,
		costValue, r.Duration.Milliseconds(), r.Prompt, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

const recordColumns = `id, session_id, model, vendor, input_tokens, cached_tokens,
	output_tokens, cost, duration_ms, prompt, created_at`

// List returns records created in [from, to), oldest first.
// A zero to means no upper bound.
func (s *Store) List(ctx context.Context, from, to time.Time) ([]Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM usage
		WHERE created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		from.UnixMilli(), upper(to))
}

// Recent returns the newest limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `SELECT `+recordColumns+` FROM usage
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// Unpriced returns records in [from, to) that have no cost yet.
func (s *Store) Unpriced(ctx context.Context, from, to time.Time) ([]Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM usage
		WHERE cost IS NULL AND created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		from.UnixMilli(), upper(to))
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Record, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r          Record
			costValue  sql.NullFloat64
			durationMS int64
			createdMS  int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Model, &r.Vendor,
			&r.Usage.InputTokens, &r.Usage.CachedInputTokens, &r.Usage.OutputTokens,
			&costValue, &durationMS, &r.Prompt, &createdMS); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		if costValue.Valid {
			v := costValue.Float64
			r.Cost = &v
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMS)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetCost fills in the cost of an existing record.
func (s *Store) SetCost(ctx context.Context, id, vendor string, value float64) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE usage SET cost = ?, vendor = CASE WHEN ? = '' THEN vendor ELSE ? END WHERE id = ?`,
		value, vendor, vendor, id)
	if err != nil {
		return fmt.Errorf("failed to update cost: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("usage record %s not found", id)
	}
	return nil
}

// ByModel aggregates records in [from, to) per model, most expensive first.
func (s *Store) ByModel(ctx context.Context, from, to time.Time) ([]ModelTotal, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, MAX(vendor), COUNT(*), COUNT(*) - COUNT(cost),
		        COALESCE(SUM(input_tokens), 0), COALESCE(SUM(cached_tokens), 0),
		        COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost), 0)
		 FROM usage
		 WHERE created_at >= ? AND created_at < ?
		 GROUP BY model
		 ORDER BY 8 DESC, model`,
		from.UnixMilli(), upper(to))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}
	defer rows.Close()

	var totals []ModelTotal
	for rows.Next() {
		var m ModelTotal
		if err := rows.Scan(&m.Model, &m.Vendor, &m.Queries, &m.Unpriced,
			&m.InputTokens, &m.CachedTokens, &m.OutputTokens, &m.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan model total: %w", err)
		}
		totals = append(totals, m)
	}
	return totals, rows.Err()
}

// Daily aggregates records in [from, to) per local calendar day, oldest first.
// Days are bucketed in Go so that the local timezone applies.
func (s *Store) Daily(ctx context.Context, from, to time.Time) ([]DailyCost, error) {
	records, err := s.List(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DailyCost)
	for _, r := range records {
		local := r.CreatedAt.Local()
		key := local.Format("2006-01-02")
		day, ok := byDay[key]
		if !ok {
			y, m, d := local.Date()
			day = &DailyCost{Date: time.Date(y, m, d, 0, 0, 0, 0, time.Local)}
			byDay[key] = day
		}
		day.QueryCount++
		day.InputTokens += int64(r.Usage.InputTokens)
		day.OutputTokens += int64(r.Usage.OutputTokens)
		if r.Cost != nil {
			day.Cost += *r.Cost
		}
	}

	days := make([]DailyCost, 0, len(byDay))
	for _, d := range byDay {
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days, nil
}

// DeleteBefore removes records created before t and returns how many were removed.
func (s *Store) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage WHERE created_at < ?`, t.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// Size returns the size of the database file in bytes, excluding the WAL.
func (s *Store) Size() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// upper converts an exclusive upper bound, treating zero as unbounded.
func upper(to time.Time) int64 {
	if to.IsZero() {
		return 1<<63 - 1
	}
	return to.UnixMilli()
}
