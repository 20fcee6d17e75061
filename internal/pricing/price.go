// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidDocument indicates the price document could not be decoded or failed validation.
	ErrInvalidDocument = errors.New("invalid price document")

	// ErrUnavailable indicates no price table could be fetched or loaded from cache.
	ErrUnavailable = errors.New("prices unavailable")

	// ErrOffline indicates a fetch was skipped because offline mode is on.
	ErrOffline = errors.New("offline mode: network fetch disabled")

	// ErrThrottled indicates a fetch was skipped because a recent attempt failed.
	ErrThrottled = errors.New("fetch throttled after recent failure")

	// ErrResponseTooLarge indicates the remote document exceeded MaxDocumentSize.
	ErrResponseTooLarge = errors.New("price document too large")
)

// =============================================================================
// TYPES
// =============================================================================

// DateLayout is the wire format of FromDate and ToDate.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC, encoded as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate returns the Date for t's calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String implements fmt.Stringer.
func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalYAML implements yaml.Marshaler.
func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	// Some feeds publish full timestamps; only the day matters.
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Price is one model's per-million-token pricing in USD.
//
// FromDate and ToDate bound the period the price applied. A nil bound is
// open-ended, so an entry with neither bound is always in effect.
type Price struct {
	ID          string   `json:"id" yaml:"id"`
	Vendor      string   `json:"vendor" yaml:"vendor"`
	Name        string   `json:"name" yaml:"name"`
	Input       float64  `json:"input" yaml:"input"`
	Output      float64  `json:"output" yaml:"output"`
	InputCached *float64 `json:"input_cached" yaml:"input_cached,omitempty"`
	FromDate    *Date    `json:"from_date,omitempty" yaml:"from_date,omitempty"`
	ToDate      *Date    `json:"to_date,omitempty" yaml:"to_date,omitempty"`
}

// CachedInputPrice returns the per-million price for cached input tokens,
// falling back to the regular input price when none is published.
func (p Price) CachedInputPrice() float64 {
	if p.InputCached != nil {
		return *p.InputCached
	}
	return p.Input
}

// ActiveAt reports whether the price applied on the given instant.
// The range is [FromDate, ToDate).
func (p Price) ActiveAt(t time.Time) bool {
	day := NewDate(t)
	if p.FromDate != nil && day.Before(p.FromDate.Time) {
		return false
	}
	if p.ToDate != nil && !day.Before(p.ToDate.Time) {
		return false
	}
	return true
}

// Current reports whether the price has no end date.
func (p Price) Current() bool {
	return p.ToDate == nil
}

// DisplayName returns Name, or ID when the feed omits a name.
func (p Price) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func (p Price) validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("entry with empty id")
	}
	if p.Input < 0 || p.Output < 0 {
		return fmt.Errorf("%s: negative price", p.ID)
	}
	if p.InputCached != nil && *p.InputCached < 0 {
		return fmt.Errorf("%s: negative cached input price", p.ID)
	}
	if p.FromDate != nil && p.ToDate != nil && !p.FromDate.Before(p.ToDate.Time) {
		return fmt.Errorf("%s: from_date %s is not before to_date %s", p.ID, p.FromDate, p.ToDate)
	}
	return nil
}

// Document is the remote price table as published.
type Document struct {
	UpdatedAt string  `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
	Prices    []Price `json:"prices" yaml:"prices"`
}

// =============================================================================
// PARSING
// =============================================================================

// DecodeDocument strictly decodes and validates a price document.
func DecodeDocument(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidDocument)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(doc.Prices) == 0 {
		return nil, fmt.Errorf("%w: no prices", ErrInvalidDocument)
	}
	for _, p := range doc.Prices {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	return &doc, nil
}

// Parse decodes a price document into a Table.
func Parse(data []byte) (*Table, error) {
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return NewTable(doc.UpdatedAt, doc.Prices), nil
}
