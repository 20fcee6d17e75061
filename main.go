// tokencost - LLM cost estimation from a cached public price table.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tokencost/internal/cli"
	"github.com/jeranaias/tokencost/internal/config"
	"github.com/jeranaias/tokencost/internal/telemetry"
	"github.com/jeranaias/tokencost/internal/ui/dashboard"
	"github.com/jeranaias/tokencost/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args := cli.Parse(argv)

	if cmd == cli.CmdHelp {
		if args.Unknown != "" {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args.Unknown)
			cli.PrintUsage(os.Stderr)
			return cli.ExitUsageError
		}
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	}

	cfg, err := config.Load()
	if cfg == nil {
		// Broken environment overrides; fall back to defaults so that
		// `config` and `doctor` can still run.
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}

	// The dashboard owns the terminal; logs go to a file instead.
	var logOut io.Writer
	if cmd == cli.CmdDashboard {
		f, closeLog := openDashboardLog()
		defer closeLog()
		logOut = f
	}
	env := cli.NewEnv(cfg, args, logOut)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdPrices:
		err = cli.HandlePrices(ctx, env, args)
	case cli.CmdCost:
		err = cli.HandleCost(ctx, env, args)
	case cli.CmdEstimate:
		err = cli.HandleEstimate(ctx, env, args)
	case cli.CmdUsage:
		err = cli.HandleUsage(ctx, env, args)
	case cli.CmdShell:
		err = cli.HandleShell(ctx, env, args)
	case cli.CmdDashboard:
		err = runDashboard(ctx, env, args)
	case cli.CmdConfig:
		err = cli.HandleConfig(env, args)
	case cli.CmdDoctor:
		err = cli.HandleDoctor(ctx, env)
	case cli.CmdVersion:
		err = cli.HandleVersion(env)
	}

	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// runDashboard starts the interactive dashboard.
func runDashboard(ctx context.Context, env *cli.Env, args cli.Args) error {
	if !cli.IsStdoutTTY() {
		return cli.NewCommandError("dashboard", "start", "requires a terminal", nil)
	}

	p := args.Parser()
	days := dashboard.DefaultDays
	if p.HasFlag("days") {
		n, err := p.FlagInt("days")
		if err != nil {
			return err
		}
		days = n
	}

	var tracker *telemetry.CostTracker
	if env.Config.Usage.Enabled {
		t, store, err := env.OpenTracker()
		if err != nil {
			env.Logger.Warn("usage log unavailable", "error", err)
		} else {
			defer store.Close()
			tracker = t
		}
	}

	m := dashboard.New(ctx, dashboard.Options{
		Cache:   env.Cache,
		Tracker: tracker,
		Days:    days,
		Watch:   true,
		Theme:   styles.ThemeFor(env.Config.UI.Theme),
		Logger:  env.Logger,
	})

	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// openDashboardLog opens <config dir>/dashboard.log for appending, or
// discards logs when that fails.
func openDashboardLog() (io.Writer, func()) {
	dir, err := config.ConfigDir()
	if err == nil {
		err = os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "dashboard.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { f.Close() }
}
