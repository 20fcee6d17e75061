// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// usage_cmd.go - The local usage log.
//
// Command: usage [subcommand]
// Short:   Record, inspect and report on past calls
//
// Subcommands:
//   summary (default)   Totals for today, the last 7 and 30 days
//   log [N]             The last N calls
//   trends [--days N]   Daily spend and per-model totals
//   report              Period report as markdown, yaml or json
//   record <model>      Log a call with its token counts
//   reprice             Price calls logged while no price was known
//   prune [--days N]    Delete calls older than N days
//
// Examples:
//   tokencost usage record gpt-4o --input 1200 --output 300 --prompt "hello"
//   tokencost usage log 50
//   tokencost usage report --days 30 --format yaml > march.yaml

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/telemetry"
	"github.com/jeranaias/tokencost/internal/util"
)

var usageSubcommands = []string{"summary", "log", "trends", "report", "record", "reprice", "prune"}

const defaultLogLimit = 20

// UsageSummaryData is returned by `usage summary`.
type UsageSummaryData struct {
	Database  string              `json:"database"`
	SizeBytes int64               `json:"size_bytes"`
	Records   int                 `json:"records"`
	Periods   []*telemetry.Report `json:"periods"`
}

// HandleUsage dispatches the usage subcommands.
func HandleUsage(ctx context.Context, env *Env, args Args) error {
	p := args.Parser()
	sub := p.Subcommand()
	switch sub {
	case "", "summary", "log", "ls", "trends", "report", "record", "add", "reprice", "prune":
	default:
		return ErrUnknownSubcommand("usage", sub, usageSubcommands)
	}
	if (sub == "record" || sub == "add") && !env.Config.Usage.Enabled {
		return NewCommandError("usage", "record", "usage logging is disabled (usage.enabled = false)", nil)
	}

	tracker, store, err := env.OpenTracker()
	if err != nil {
		return NewCommandError("usage", "open", "could not open the usage log", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			env.Logger.Warn("closing usage log", "error", cerr)
		}
	}()

	switch sub {
	case "log", "ls":
		return usageLog(ctx, env, store, p)
	case "trends":
		return usageTrends(ctx, env, tracker, p)
	case "report":
		return usageReport(ctx, env, store, p)
	case "record", "add":
		return usageRecord(ctx, env, tracker, args, p)
	case "reprice":
		return usageReprice(ctx, env, tracker)
	case "prune":
		return usagePrune(ctx, env, tracker, p)
	default:
		return usageSummary(ctx, env, store)
	}
}

func usageSummary(ctx context.Context, env *Env, store *telemetry.Store) error {
	now := time.Now()
	today := startOfDay(now)

	data := UsageSummaryData{Database: store.Path()}
	var err error
	if data.Records, err = store.Count(ctx); err != nil {
		return err
	}
	if data.SizeBytes, err = store.Size(); err != nil {
		env.Logger.Debug("usage log size", "error", err)
	}
	for _, from := range []time.Time{today, today.AddDate(0, 0, -6), today.AddDate(0, 0, -29)} {
		r, err := telemetry.BuildReport(ctx, store, from, time.Time{})
		if err != nil {
			return err
		}
		data.Periods = append(data.Periods, r)
	}

	return env.emit("usage summary", data, func() error {
		fmt.Fprintln(env.Out, TitleStyle.Render("Usage"))
		labels := []string{"Today", "Last 7 days", "Last 30 days"}
		for i, r := range data.Periods {
			line := fmt.Sprintf("%s  %s calls  %s tokens",
				CostStyle.Render(cost.FormatUSD(r.TotalCost)),
				util.FormatCount(r.Queries),
				util.FormatCount(r.Tokens.Total()))
			if r.Unpriced > 0 {
				line += WarningStyle.Render(fmt.Sprintf("  (%d unpriced)", r.Unpriced))
			}
			fmt.Fprintln(env.Out, RenderLabel(labels[i])+line)
		}
		fmt.Fprintln(env.Out, RenderSeparator())
		fmt.Fprintln(env.Out, RenderField("Records", util.FormatCount(data.Records)))
		fmt.Fprintln(env.Out, RenderField("Database", data.Database))
		fmt.Fprintln(env.Out, RenderField("Size", formatBytes(data.SizeBytes)))
		return nil
	})
}

func usageLog(ctx context.Context, env *Env, store *telemetry.Store, p *ArgParser) error {
	limit := defaultLogLimit
	if s := p.FlagOrDefault("limit", p.Positional(1)); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return NewValidationError("limit", s, "must be a positive integer")
		}
		limit = n
	}
	records, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	return env.emit("usage log", records, func() error {
		if len(records) == 0 {
			fmt.Fprintln(env.Out, DimStyle.Render("No usage recorded yet."))
			return nil
		}
		t := newTable("WHEN", "MODEL", "INPUT", "OUTPUT", "COST", "PROMPT").alignRight(2, 3, 4)
		for _, r := range records {
			c := "-"
			if r.Cost != nil {
				c = cost.FormatUSD(*r.Cost)
			}
			t.add(r.CreatedAt.Local().Format("01-02 15:04"), r.Model,
				util.FormatCount(r.Usage.InputTokens), util.FormatCount(r.Usage.OutputTokens),
				c, util.TruncateRunes(r.Prompt, 40))
		}
		t.render(env.Out)
		return nil
	})
}

func usageTrends(ctx context.Context, env *Env, tracker *telemetry.CostTracker, p *ArgParser) error {
	days, err := daysFlag(p, 7)
	if err != nil {
		return err
	}
	trends, err := tracker.GetTrends(ctx, days)
	if err != nil {
		return err
	}

	return env.emit("usage trends", trends, func() error {
		fmt.Fprintln(env.Out, TitleStyle.Render(fmt.Sprintf("Last %d days", trends.Days)))
		fmt.Fprintln(env.Out, RenderLabel("Total")+CostStyle.Render(cost.FormatUSD(trends.TotalCost)))
		fmt.Fprintln(env.Out, RenderField("Calls", util.FormatCount(trends.Queries)))
		if trends.Unpriced > 0 {
			fmt.Fprintln(env.Out, RenderLabel("Unpriced")+WarningStyle.Render(util.FormatCount(trends.Unpriced)))
		}
		fmt.Fprintln(env.Out)

		maxCost := 0.0
		for _, d := range trends.DailyBreakdown {
			if d.Cost > maxCost {
				maxCost = d.Cost
			}
		}
		for _, d := range trends.DailyBreakdown {
			bar := ""
			if maxCost > 0 {
				bar = strings.Repeat("█", int(d.Cost/maxCost*30+0.5))
			}
			fmt.Fprintf(env.Out, "%s  %s  %s\n", d.Date.Format("Mon 01-02"),
				util.PadLeft(cost.FormatUSD(d.Cost), 9), CostStyle.Render(bar))
		}

		if len(trends.ModelBreakdown) > 0 {
			fmt.Fprintln(env.Out)
			t := newTable("MODEL", "CALLS", "TOKENS", "COST").alignRight(1, 2, 3)
			for _, m := range trends.ModelBreakdown {
				t.add(m.Model, util.FormatCount(m.Queries),
					util.FormatCount64(m.InputTokens+m.OutputTokens), cost.FormatUSD(m.Cost))
			}
			t.render(env.Out)
		}
		return nil
	})
}

func usageReport(ctx context.Context, env *Env, store *telemetry.Store, p *ArgParser) error {
	days, err := daysFlag(p, 30)
	if err != nil {
		return err
	}
	format := strings.ToLower(p.FlagOrDefault("format", "markdown"))
	if env.JSON {
		format = "json"
	}

	now := time.Now()
	report, err := telemetry.BuildReport(ctx, store, startOfDay(now).AddDate(0, 0, -(days-1)), time.Time{})
	if err != nil {
		return err
	}
	report.To = now

	switch format {
	case "markdown", "md":
		return env.writeMarkdown(report.Markdown())
	case "yaml", "yml":
		enc := yaml.NewEncoder(env.Out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		env.JSON = true
		return env.emit("usage report", report, nil)
	default:
		return NewValidationErrorWithExample("format", format, "must be markdown, yaml or json", "--format yaml")
	}
}

func usageRecord(ctx context.Context, env *Env, tracker *telemetry.CostTracker, args Args, p *ArgParser) error {
	model := p.Positional(1)
	if model == "" {
		model = args.Model
	}
	if model == "" {
		return ErrMissingArgument("model", "tokencost usage record gpt-4o --input 1200 --output 300")
	}

	var u cost.Usage
	var err error
	if u.InputTokens, err = ParseTokenCount(p.Flag("input"), "input"); err != nil {
		return err
	}
	if u.OutputTokens, err = ParseTokenCount(p.Flag("output"), "output"); err != nil {
		return err
	}
	if u.CachedInputTokens, err = ParseTokenCount(p.Flag("cached"), "cached"); err != nil {
		return err
	}
	if u.CachedInputTokens > u.InputTokens {
		return NewValidationError("cached", p.Flag("cached"), "cannot exceed the input token count")
	}
	var duration time.Duration
	if s := p.Flag("duration"); s != "" {
		if duration, err = time.ParseDuration(s); err != nil {
			return NewValidationErrorWithExample("duration", s, "must be a duration", "--duration 2.5s")
		}
	}

	q, err := tracker.RecordQuery(ctx, model, u, duration, p.Flag("prompt"))
	if err != nil {
		return NewCommandError("usage", "record", "could not save the call", err)
	}
	return env.emit("usage record", q, func() error {
		fmt.Fprintln(env.Out, cost.UsageLine(q.Usage, q.Breakdown))
		return nil
	})
}

func usageReprice(ctx context.Context, env *Env, tracker *telemetry.CostTracker) error {
	n, err := tracker.Reprice(ctx, time.Time{}, time.Time{})
	if err != nil {
		return NewCommandError("usage", "reprice", "could not update costs", err)
	}
	return env.emit("usage reprice", map[string]int{"updated": n}, func() error {
		fmt.Fprintf(env.Out, "%s priced %d calls\n", RenderStatus("ok"), n)
		return nil
	})
}

func usagePrune(ctx context.Context, env *Env, tracker *telemetry.CostTracker, p *ArgParser) error {
	days, err := daysFlag(p, env.Config.Usage.RetentionDays)
	if err != nil {
		return err
	}
	if days <= 0 {
		return ErrMissingArgument("days", "tokencost usage prune --days 90")
	}
	n, err := tracker.Prune(ctx, days)
	if err != nil {
		return NewCommandError("usage", "prune", "could not delete old calls", err)
	}
	return env.emit("usage prune", map[string]int64{"deleted": n}, func() error {
		fmt.Fprintf(env.Out, "%s deleted %d calls older than %d days\n", RenderStatus("ok"), n, days)
		return nil
	})
}

// daysFlag reads --days, defaulting to def.
func daysFlag(p *ArgParser, def int) (int, error) {
	s := p.Flag("days")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, NewValidationError("days", s, "must be a positive integer")
	}
	return n, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
