// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Table is an immutable, indexed view of a price document.
// It is safe for concurrent use.
type Table struct {
	updatedAt string
	prices    []Price          // sorted by vendor, id, then from_date
	byID      map[string][]int // lowercased id -> indexes into prices
	aliases   map[string]string
}

// NewTable builds a Table from price entries. The slice is copied.
func NewTable(updatedAt string, prices []Price) *Table {
	sorted := make([]Price, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !strings.EqualFold(a.Vendor, b.Vendor) {
			return strings.ToLower(a.Vendor) < strings.ToLower(b.Vendor)
		}
		if !strings.EqualFold(a.ID, b.ID) {
			return strings.ToLower(a.ID) < strings.ToLower(b.ID)
		}
		return fromUnix(a) < fromUnix(b)
	})

	t := &Table{
		updatedAt: updatedAt,
		prices:    sorted,
		byID:      make(map[string][]int, len(sorted)),
	}
	for i, p := range sorted {
		key := strings.ToLower(strings.TrimSpace(p.ID))
		t.byID[key] = append(t.byID[key], i)
	}
	return t
}

func fromUnix(p Price) int64 {
	if p.FromDate == nil {
		return 0
	}
	return p.FromDate.Unix()
}

// WithAliases returns a copy of the table that also resolves the given
// short names. Keys are matched case-insensitively.
func (t *Table) WithAliases(aliases map[string]string) *Table {
	clone := *t
	clone.aliases = make(map[string]string, len(aliases))
	for k, v := range aliases {
		clone.aliases[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return &clone
}

// WithOverrides returns a new table where every id present in overrides
// replaces all entries with that id.
func (t *Table) WithOverrides(overrides []Price) *Table {
	if len(overrides) == 0 {
		return t
	}
	replaced := make(map[string]bool, len(overrides))
	for _, p := range overrides {
		replaced[strings.ToLower(strings.TrimSpace(p.ID))] = true
	}
	merged := make([]Price, 0, len(t.prices)+len(overrides))
	for _, p := range t.prices {
		if !replaced[strings.ToLower(p.ID)] {
			merged = append(merged, p)
		}
	}
	merged = append(merged, overrides...)

	out := NewTable(t.updatedAt, merged)
	out.aliases = t.aliases
	return out
}

// UpdatedAt returns the document's published update stamp, if any.
func (t *Table) UpdatedAt() string {
	return t.updatedAt
}

// Len returns the number of entries, including historical ones.
func (t *Table) Len() int {
	return len(t.prices)
}

// Prices returns a copy of every entry.
func (t *Table) Prices() []Price {
	out := make([]Price, len(t.prices))
	copy(out, t.prices)
	return out
}

// Current returns entries that are still in effect (no end date).
func (t *Table) Current() []Price {
	out := make([]Price, 0, len(t.prices))
	for _, p := range t.prices {
		if p.Current() {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns the distinct model ids, sorted.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.byID))
	for _, idxs := range t.byID {
		ids = append(ids, t.prices[idxs[0]].ID)
	}
	sort.Strings(ids)
	return ids
}

// Vendors returns the distinct vendor names, sorted.
func (t *Table) Vendors() []string {
	seen := make(map[string]bool)
	var vendors []string
	for _, p := range t.prices {
		key := strings.ToLower(p.Vendor)
		if p.Vendor == "" || seen[key] {
			continue
		}
		seen[key] = true
		vendors = append(vendors, p.Vendor)
	}
	return vendors
}

// Filter returns current entries matching vendor (exact, case-insensitive)
// and query (substring of id or name, case-insensitive). Empty arguments match all.
func (t *Table) Filter(vendor, query string) []Price {
	vendor = strings.TrimSpace(vendor)
	query = strings.ToLower(strings.TrimSpace(query))

	var out []Price
	for _, p := range t.prices {
		if !p.Current() {
			continue
		}
		if vendor != "" && !strings.EqualFold(p.Vendor, vendor) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.ID), query) &&
			!strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// =============================================================================
// LOOKUP
// =============================================================================

var (
	// -20241022, -2024-08-06, -0613, @20250514, -latest, :latest
	versionSuffix = regexp.MustCompile(`[-@:](\d{8}|\d{4}-\d{2}-\d{2}|\d{4}|latest|preview)$`)
	// claude-3-5-sonnet -> claude-3.5-sonnet
	dashedVersion = regexp.MustCompile(`(^|-)(\d+)-(\d)(-|$)`)
)

// Lookup resolves a model identifier to its current price.
//
// Resolution order: exact id, id without a "vendor/" routing prefix,
// id without a date or version suffix, then a configured alias resolved
// the same way.
func (t *Table) Lookup(model string) (Price, bool) {
	return t.lookup(model, func(idxs []int) (int, bool) { return t.currentOf(idxs) })
}

// LookupAt resolves a model identifier to the price in effect at the given time.
func (t *Table) LookupAt(model string, at time.Time) (Price, bool) {
	return t.lookup(model, func(idxs []int) (int, bool) {
		for _, i := range idxs {
			if t.prices[i].ActiveAt(at) {
				return i, true
			}
		}
		return 0, false
	})
}

func (t *Table) lookup(model string, pick func([]int) (int, bool)) (Price, bool) {
	key := strings.ToLower(strings.TrimSpace(model))
	if key == "" {
		return Price{}, false
	}

	for _, candidate := range candidates(key) {
		if idxs, ok := t.byID[candidate]; ok {
			if i, ok := pick(idxs); ok {
				return t.prices[i], true
			}
		}
	}

	if target, ok := t.aliases[key]; ok {
		for _, candidate := range candidates(strings.ToLower(target)) {
			if idxs, ok := t.byID[candidate]; ok {
				if i, ok := pick(idxs); ok {
					return t.prices[i], true
				}
			}
		}
	}
	return Price{}, false
}

// currentOf prefers the open-ended entry, else the one that started last.
func (t *Table) currentOf(idxs []int) (int, bool) {
	best := -1
	for _, i := range idxs {
		if t.prices[i].Current() {
			return i, true
		}
		if best < 0 || fromUnix(t.prices[i]) > fromUnix(t.prices[best]) {
			best = i
		}
	}
	return best, best >= 0
}

// candidates lists normalized forms of key, most specific first.
func candidates(key string) []string {
	out := []string{key}
	add := func(s string) {
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
		add(base)
	}

	stripped := base
	for {
		next := versionSuffix.ReplaceAllString(stripped, "")
		if next == stripped {
			break
		}
		stripped = next
	}
	add(stripped)

	add(dashedVersion.ReplaceAllString(stripped, "${1}${2}.${3}${4}"))
	return out
}
