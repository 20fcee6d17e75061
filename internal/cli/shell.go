// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// shell.go - Interactive cost calculator.
//
// Command: shell
// Short:   Price calls and prompts interactively
// Aliases: repl
//
// Each line is one of:
//   <input> <output> [cached]   Price a call for the current model ("12k 800")
//   <any other text>            Estimate the cost of sending that text
//   /model [name]               Show or switch the model (tab completes)
//   /prices [search]            List matching prices
//   /session                    Totals for this shell session
//   /help                       Show these commands
//   /quit                       Exit (Ctrl+D also works)
//
// History is kept in shell_history under the config directory.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/tokencost/internal/config"
	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/telemetry"
	"github.com/jeranaias/tokencost/internal/util"
)

const shellHelp = `Commands:
  12k 800 [cached]    Price a call: input, output and cached input tokens
  any other text      Estimate the cost of sending it as a prompt
  /model [name]       Show or switch the model
  /prices [search]    List matching prices
  /session            Totals for this session
  /quit               Exit`

// shell holds the state of one interactive session.
type shell struct {
	env     *Env
	model   string
	tracker *telemetry.CostTracker
}

func newShell(env *Env, model string) *shell {
	return &shell{
		env:     env,
		model:   model,
		tracker: telemetry.NewCostTracker(nil, env.Estimator(), env.Logger),
	}
}

// HandleShell runs the interactive calculator until EOF or /quit.
func HandleShell(ctx context.Context, env *Env, args Args) error {
	if !IsStdinTTY() {
		return NewCommandError("shell", "start", "stdin is not a terminal", nil)
	}
	sh := newShell(env, resolveModel(env, args, args.Parser()))

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(sh.complete)

	historyFile := shellHistoryPath()
	if f, err := os.Open(historyFile); err == nil {
		if _, err := line.ReadHistory(f); err != nil {
			env.Logger.Debug("reading shell history", "error", err)
		}
		f.Close()
	}
	defer saveShellHistory(env, line, historyFile)

	fmt.Fprintln(env.Out, TitleStyle.Render("tokencost shell")+DimStyle.Render("  model "+sh.model+", /help for commands"))
	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt(sh.model + "> ")
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				env.Logger.Debug("prompt ended", "error", err)
			}
			fmt.Fprintln(env.Out)
			break
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		out, quit, err := sh.eval(ctx, input)
		if err != nil {
			fmt.Fprintf(env.Err, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if out != "" {
			fmt.Fprintln(env.Out, out)
		}
		if quit {
			break
		}
	}

	fmt.Fprintln(env.Out, sh.summary())
	return nil
}

// eval runs one line and returns what to print.
func (sh *shell) eval(ctx context.Context, input string) (string, bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false, nil
	}

	if strings.HasPrefix(input, "/") {
		fields := strings.Fields(input)
		rest := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		switch strings.ToLower(fields[0]) {
		case "/quit", "/q", "/exit":
			return "", true, nil
		case "/help", "/h", "/?":
			return shellHelp, false, nil
		case "/model", "/m":
			if rest == "" {
				return sh.describeModel(ctx), false, nil
			}
			sh.model = rest
			return sh.describeModel(ctx), false, nil
		case "/prices", "/p":
			return sh.prices(ctx, rest), false, nil
		case "/session", "/s":
			return sh.summary(), false, nil
		default:
			return "", false, fmt.Errorf("unknown command %s (try /help)", fields[0])
		}
	}

	if u, ok := parseUsageLine(input); ok {
		if u.CachedInputTokens > u.InputTokens {
			return "", false, fmt.Errorf("cached tokens (%s) cannot exceed input tokens (%s)",
				util.FormatCount(u.CachedInputTokens), util.FormatCount(u.InputTokens))
		}
		q, err := sh.tracker.RecordQuery(ctx, sh.model, u, 0, "")
		if err != nil {
			return "", false, err
		}
		return cost.UsageLine(q.Usage, q.Breakdown), false, nil
	}

	est, ok := sh.env.Estimator().EstimatePrompt(ctx, sh.model, input, sh.env.Config.Estimate.OutputRatio)
	var b *cost.Breakdown
	if ok {
		b = &est.Breakdown
	}
	return "~ " + cost.UsageLine(est.Usage, b), false, nil
}

// parseUsageLine reads "input output [cached]" token counts.
func parseUsageLine(input string) (cost.Usage, bool) {
	fields := strings.Fields(input)
	if len(fields) < 2 || len(fields) > 3 {
		return cost.Usage{}, false
	}
	counts := make([]int, len(fields))
	for i, f := range fields {
		n, err := ParseTokenCount(f, "tokens")
		if err != nil {
			return cost.Usage{}, false
		}
		counts[i] = n
	}
	u := cost.Usage{InputTokens: counts[0], OutputTokens: counts[1]}
	if len(counts) == 3 {
		u.CachedInputTokens = counts[2]
	}
	return u, true
}

func (sh *shell) describeModel(ctx context.Context) string {
	price, ok := sh.env.Estimator().Lookup(ctx, sh.model)
	if !ok {
		return "model " + sh.model + DimStyle.Render(" (no price known, costs will be omitted)")
	}
	return fmt.Sprintf("model %s -> %s/%s  input $%s  output $%s per 1M",
		sh.model, price.Vendor, price.ID, util.FormatPrice(price.Input), util.FormatPrice(price.Output))
}

func (sh *shell) prices(ctx context.Context, search string) string {
	table := sh.env.Prices(ctx)
	if table == nil {
		return DimStyle.Render("No price table available.")
	}
	rows := table.Filter("", search)
	if len(rows) == 0 {
		return DimStyle.Render("No models match.")
	}
	var sb strings.Builder
	for i, p := range rows {
		if i == 20 {
			fmt.Fprintf(&sb, "... %d more\n", len(rows)-i)
			break
		}
		fmt.Fprintf(&sb, "%s  $%s / $%s\n", util.PadRight(p.Vendor+"/"+p.ID, 40),
			util.FormatPrice(p.Input), util.FormatPrice(p.Output))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (sh *shell) summary() string {
	s := sh.tracker.GetCurrentSession()
	line := fmt.Sprintf("Session: %d calls, %s tokens, %s",
		s.Queries, util.FormatCount(s.Tokens.Total()), cost.FormatUSD(s.TotalCost))
	if s.Unpriced > 0 {
		line += fmt.Sprintf(" (%d without a price)", s.Unpriced)
	}
	return line
}

// complete offers model ids after "/model ".
func (sh *shell) complete(input string) []string {
	const prefix = "/model "
	if !strings.HasPrefix(input, prefix) {
		if strings.HasPrefix("/model", input) && input != "" {
			return []string{prefix}
		}
		return nil
	}
	table := sh.env.Prices(context.Background())
	if table == nil {
		return nil
	}
	partial := strings.TrimPrefix(input, prefix)
	var out []string
	for _, id := range table.IDs() {
		if strings.HasPrefix(id, partial) {
			out = append(out, prefix+id)
		}
	}
	sort.Strings(out)
	return out
}

func shellHistoryPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "shell_history")
}

func saveShellHistory(env *Env, line *liner.State, path string) {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		env.Logger.Debug("saving shell history", "error", err)
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		env.Logger.Debug("saving shell history", "error", err)
	}
}
