// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cost_cmd.go - One-off cost calculations.
//
// Command: cost <model> --input N --output N [--cached N]
// Short:   Price a call whose token counts are known
//
// Command: estimate <model> "prompt text" [--ratio R]
// Short:   Guess the cost of a prompt before sending it
//
// Both print the usage line. When no price is known for the model, or no
// price table is available at all, the line is printed without a cost and
// the command still succeeds.
//
// Examples:
//   tokencost cost gpt-4o --input 12k --output 800
//   tokencost cost claude-3.5-sonnet 1500 300
//   tokencost estimate gpt-4o-mini "Summarize this article in three bullets"
//   echo "long prompt" | tokencost estimate gpt-4o -

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/util"
)

// maxPromptBytes bounds what `estimate -` reads from stdin.
const maxPromptBytes = 4 << 20

// resolveModel picks the model from the first positional argument, then
// --model, then the configured default.
func resolveModel(env *Env, args Args, p *ArgParser) string {
	if m := p.Positional(0); m != "" {
		return m
	}
	if args.Model != "" {
		return args.Model
	}
	return env.Config.Estimate.DefaultModel
}

// parseUsage reads --input/--output/--cached, falling back to the second
// and third positional arguments for input and output.
func parseUsage(p *ArgParser) (cost.Usage, error) {
	var u cost.Usage
	var err error

	in := p.FlagOrDefault("input", p.Positional(1))
	if u.InputTokens, err = ParseTokenCount(in, "input"); err != nil {
		return u, err
	}
	out := p.FlagOrDefault("output", p.Positional(2))
	if u.OutputTokens, err = ParseTokenCount(out, "output"); err != nil {
		return u, err
	}
	if u.CachedInputTokens, err = ParseTokenCount(p.Flag("cached"), "cached"); err != nil {
		return u, err
	}
	if u.CachedInputTokens > u.InputTokens {
		return u, NewValidationError("cached", util.FormatCount(u.CachedInputTokens),
			"cannot exceed the input token count")
	}
	return u, nil
}

// HandleCost prices a call with known token counts.
func HandleCost(ctx context.Context, env *Env, args Args) error {
	p := args.Parser()
	model := resolveModel(env, args, p)
	if model == "" {
		return ErrMissingArgument("model", "tokencost cost gpt-4o --input 1200 --output 300")
	}
	u, err := parseUsage(p)
	if err != nil {
		return err
	}

	data := CostData{Model: model, Usage: u}
	if b, ok := env.Estimator().Estimate(ctx, model, u); ok {
		data.Breakdown = &b
	}
	data.UsageLine = cost.UsageLine(u, data.Breakdown)

	return env.emit("cost", data, func() error {
		if data.Breakdown != nil && !args.Quiet {
			writeBreakdown(env.Out, *data.Breakdown)
			fmt.Fprintln(env.Out)
		}
		fmt.Fprintln(env.Out, data.UsageLine)
		if data.Breakdown == nil && !args.Quiet {
			fmt.Fprintln(env.Err, DimStyle.Render("No price known for "+model+"; cost omitted."))
		}
		return nil
	})
}

// HandleEstimate estimates the cost of a prompt that has not been sent.
func HandleEstimate(ctx context.Context, env *Env, args Args) error {
	p := args.Parser()
	model := resolveModel(env, args, p)
	if model == "" {
		return ErrMissingArgument("model", `tokencost estimate gpt-4o "prompt text"`)
	}

	text := JoinPositionalArgs(p, 1)
	if text == "-" {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, maxPromptBytes))
		if err != nil {
			return NewCommandError("estimate", "read", "could not read stdin", err)
		}
		text = string(b)
	}
	if strings.TrimSpace(text) == "" {
		return ErrMissingArgument("prompt", `tokencost estimate gpt-4o "prompt text"`)
	}

	ratio, err := p.FlagFloat("ratio", env.Config.Estimate.OutputRatio)
	if err != nil {
		return err
	}
	if ratio < 0 {
		return NewValidationError("ratio", p.Flag("ratio"), "must not be negative")
	}

	est, ok := env.Estimator().EstimatePrompt(ctx, model, text, ratio)
	data := EstimateData{Model: model, Prompt: est, Priced: ok}
	if ok {
		b := est.Breakdown
		data.Cost = &b
	}
	data.Rendered = cost.UsageLine(est.Usage, data.Cost)

	return env.emit("estimate", data, func() error {
		if !args.Quiet {
			fmt.Fprintln(env.Out, DimStyle.Render(fmt.Sprintf(
				"Estimated from %s characters, assuming the reply is %.1fx the prompt.",
				util.FormatCount(len([]rune(text))), est.Ratio)))
		}
		fmt.Fprintln(env.Out, data.Rendered)
		return nil
	})
}

// writeBreakdown prints the per-category costs of b.
func writeBreakdown(w io.Writer, b cost.Breakdown) {
	name := b.Model
	if b.Vendor != "" {
		name = b.Vendor + "/" + b.Model
	}
	fmt.Fprintln(w, TitleStyle.Render(name))
	fmt.Fprintln(w, RenderField("Input", cost.FormatUSD(b.InputCost)))
	if b.CachedInputCost > 0 {
		fmt.Fprintln(w, RenderField("Cached input", cost.FormatUSD(b.CachedInputCost)))
	}
	fmt.Fprintln(w, RenderField("Output", cost.FormatUSD(b.OutputCost)))
	fmt.Fprintln(w, RenderLabel("Total")+CostStyle.Render(cost.FormatUSD(b.Total)))
	if b.PricedAt != "" {
		fmt.Fprintln(w, DimStyle.Render("Prices as of "+b.PricedAt))
	}
}
