// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prices_cmd.go - Price table commands.
//
// Command: prices [subcommand]
// Short:   Inspect and manage the cached price table
//
// Subcommands:
//   list (default)      List current prices
//   show <model>        Show the entry a model resolves to
//   refresh             Fetch now, ignoring cache age
//   status              Cache file location, age and last error
//   clear               Delete the cached table
//
// Examples:
//   tokencost prices
//   tokencost prices list --vendor anthropic
//   tokencost prices list --search mini --json
//   tokencost prices show openai/gpt-4o-2024-08-06
//   tokencost prices refresh

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/util"
)

var pricesSubcommands = []string{"list", "show", "refresh", "status", "clear"}

// HandlePrices dispatches the prices subcommands.
func HandlePrices(ctx context.Context, env *Env, args Args) error {
	p := args.Parser()
	switch sub := p.Subcommand(); sub {
	case "", "list", "ls":
		return pricesList(ctx, env, p)
	case "show", "get":
		return pricesShow(ctx, env, p)
	case "refresh", "update", "fetch":
		return pricesRefresh(ctx, env)
	case "status":
		return pricesStatus(env)
	case "clear":
		return pricesClear(env)
	default:
		return ErrUnknownSubcommand("prices", sub, pricesSubcommands)
	}
}

func pricesList(ctx context.Context, env *Env, p *ArgParser) error {
	table, err := env.Cache.Get(ctx)
	if err != nil {
		return NewCommandError("prices", "list", "no price table available", err)
	}

	rows := table.Filter(p.Flag("vendor"), p.Flag("search"))
	data := PricesListData{UpdatedAt: table.UpdatedAt(), Count: len(rows), Prices: rows}

	return env.emit("prices list", data, func() error {
		if len(rows) == 0 {
			fmt.Fprintln(env.Out, DimStyle.Render("No models match."))
			return nil
		}
		t := newTable("VENDOR", "MODEL", "INPUT", "CACHED", "OUTPUT").alignRight(2, 3, 4)
		for _, price := range rows {
			cached := "-"
			if price.InputCached != nil {
				cached = util.FormatPrice(*price.InputCached)
			}
			t.add(price.Vendor, price.ID, util.FormatPrice(price.Input), cached, util.FormatPrice(price.Output))
		}
		t.render(env.Out)
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, DimStyle.Render(fmt.Sprintf("%d models, $ per 1M tokens, table updated %s",
			len(rows), orDash(table.UpdatedAt()))))
		return nil
	})
}

func pricesShow(ctx context.Context, env *Env, p *ArgParser) error {
	model := JoinPositionalArgs(p, 1)
	if model == "" {
		return ErrMissingArgument("model", "tokencost prices show gpt-4o")
	}
	table, err := env.Cache.Get(ctx)
	if err != nil {
		return NewCommandError("prices", "show", "no price table available", err)
	}
	price, ok := table.Lookup(model)
	if !ok {
		return &NotFoundError{Resource: "model", ID: model, Hint: "Run `tokencost prices list --search <text>` to find the id."}
	}

	return env.emit("prices show", price, func() error {
		src, err := json.MarshalIndent(price, "", "  ")
		if err != nil {
			return err
		}
		if err := env.writeHighlightedJSON(append(src, '\n')); err != nil {
			return err
		}
		example := cost.Calculate(price, cost.Usage{InputTokens: 1000, OutputTokens: 1000})
		fmt.Fprintln(env.Out, DimStyle.Render("1k input + 1k output tokens: "+cost.FormatUSD(example.Total)))
		return nil
	})
}

func pricesRefresh(ctx context.Context, env *Env) error {
	table, err := env.Cache.Refresh(ctx)
	if err != nil && table == nil {
		return NewCommandError("prices", "refresh", "fetch failed", err)
	}

	status := env.Cache.Status()
	return env.emit("prices refresh", status, func() error {
		if err != nil {
			fmt.Fprintf(env.Out, "%s fetch failed, keeping the cached table: %v\n", RenderStatus("stale"), err)
			return nil
		}
		fmt.Fprintf(env.Out, "%s %d models, updated %s\n", RenderStatus("ok"), table.Len(), orDash(table.UpdatedAt()))
		return nil
	})
}

func pricesStatus(env *Env) error {
	st := env.Cache.Status()
	return env.emit("prices status", st, func() error {
		fmt.Fprintln(env.Out, TitleStyle.Render("Price cache"))
		fmt.Fprintln(env.Out, RenderField("Source", st.URL))
		fmt.Fprintln(env.Out, RenderField("File", orDash(st.Path)))

		state := "missing"
		switch {
		case st.Exists && st.Fresh:
			state = "fresh"
		case st.Exists:
			state = "stale"
		}
		fmt.Fprintln(env.Out, RenderLabel("State")+RenderStatus(state))
		if st.Offline {
			fmt.Fprintln(env.Out, RenderLabel("Network")+RenderStatus("offline"))
		}
		if st.Exists {
			fmt.Fprintln(env.Out, RenderField("Fetched", formatAge(st.ModTime)))
			fmt.Fprintln(env.Out, RenderField("Size", formatBytes(st.Size)))
		}
		fmt.Fprintln(env.Out, RenderField("TTL", st.TTL.String()))
		if st.Entries > 0 {
			fmt.Fprintln(env.Out, RenderField("Entries", util.FormatCount(st.Entries)))
			fmt.Fprintln(env.Out, RenderField("Table updated", orDash(st.UpdatedAt)))
		}
		if st.Overrides > 0 {
			fmt.Fprintln(env.Out, RenderField("Local overrides", util.FormatCount(st.Overrides)))
		}
		if st.LastError != "" {
			fmt.Fprintln(env.Out, RenderLabel("Last error")+WarningStyle.Render(st.LastError))
		}
		return nil
	})
}

func pricesClear(env *Env) error {
	if err := env.Cache.Clear(); err != nil {
		return NewCommandError("prices", "clear", "could not remove cache", err)
	}
	return env.emit("prices clear", map[string]string{"path": env.Cache.Path()}, func() error {
		fmt.Fprintf(env.Out, "%s removed %s\n", RenderStatus("ok"), orDash(env.Cache.Path()))
		return nil
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
