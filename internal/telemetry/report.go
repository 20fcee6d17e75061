// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/util"
)

// Report summarizes stored usage for a period.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	From        time.Time    `json:"from" yaml:"from"`
	To          time.Time    `json:"to" yaml:"to"`
	TotalCost   float64      `json:"total_cost" yaml:"total_cost"`
	Queries     int          `json:"queries" yaml:"queries"`
	Unpriced    int          `json:"unpriced" yaml:"unpriced"`
	Tokens      cost.Usage   `json:"tokens" yaml:"tokens"`
	Models      []ModelTotal `json:"models" yaml:"models"`
	Daily       []DailyCost  `json:"daily" yaml:"daily"`
}

// BuildReport aggregates the records in [from, to).
func BuildReport(ctx context.Context, store *Store, from, to time.Time) (*Report, error) {
	models, err := store.ByModel(ctx, from, to)
	if err != nil {
		return nil, err
	}
	daily, err := store.Daily(ctx, from, to)
	if err != nil {
		return nil, err
	}

	r := &Report{
		GeneratedAt: time.Now(),
		From:        from,
		To:          to,
		Models:      models,
		Daily:       daily,
	}
	for _, m := range models {
		r.TotalCost += m.Cost
		r.Queries += m.Queries
		r.Unpriced += m.Unpriced
		r.Tokens.InputTokens += int(m.InputTokens)
		r.Tokens.CachedInputTokens += int(m.CachedTokens)
		r.Tokens.OutputTokens += int(m.OutputTokens)
	}
	return r, nil
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# Usage report\n\n")
	fmt.Fprintf(&sb, "%s to %s\n\n", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))

	fmt.Fprintf(&sb, "- **Total cost:** %s\n", cost.FormatUSD(r.TotalCost))
	fmt.Fprintf(&sb, "- **Calls:** %s", util.FormatCount(r.Queries))
	if r.Unpriced > 0 {
		fmt.Fprintf(&sb, " (%s without a known price)", util.FormatCount(r.Unpriced))
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "- **Tokens:** %s input, %s cached, %s output\n\n",
		util.FormatCount(r.Tokens.InputTokens),
		util.FormatCount(r.Tokens.CachedInputTokens),
		util.FormatCount(r.Tokens.OutputTokens))

	if len(r.Models) == 0 {
		sb.WriteString("_No usage recorded in this period._\n")
		return sb.String()
	}

	sb.WriteString("## By model\n\n")
	sb.WriteString("| Model | Calls | Input | Output | Cost |\n")
	sb.WriteString("|---|---:|---:|---:|---:|\n")
	for _, m := range r.Models {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			tableCell(m.Model),
			util.FormatCount(m.Queries),
			util.FormatCount64(m.InputTokens),
			util.FormatCount64(m.OutputTokens),
			modelCost(m))
	}

	if len(r.Daily) > 0 {
		sb.WriteString("\n## By day\n\n")
		sb.WriteString("| Day | Calls | Cost |\n")
		sb.WriteString("|---|---:|---:|\n")
		for _, d := range r.Daily {
			fmt.Fprintf(&sb, "| %s | %s | %s |\n",
				d.Date.Format("Mon 2006-01-02"),
				util.FormatCount(d.QueryCount),
				cost.FormatUSD(d.Cost))
		}
	}
	return sb.String()
}

// tableCell escapes text for a markdown table cell.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func modelCost(m ModelTotal) string {
	if m.Unpriced == m.Queries {
		return "n/a"
	}
	return cost.FormatUSD(m.Cost)
}
