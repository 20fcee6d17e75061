// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command selection and global flags for tokencost.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdPrices
	CmdCost
	CmdEstimate
	CmdUsage
	CmdShell
	CmdDashboard
	CmdConfig
	CmdDoctor
	CmdVersion
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdPrices:
		return "prices"
	case CmdCost:
		return "cost"
	case CmdEstimate:
		return "estimate"
	case CmdUsage:
		return "usage"
	case CmdShell:
		return "shell"
	case CmdDashboard:
		return "dashboard"
	case CmdConfig:
		return "config"
	case CmdDoctor:
		return "doctor"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	JSON    bool
	Quiet   bool
	Verbose bool
	Offline bool
	Model   string

	// Subcommand is the first word after the command ("list", "refresh").
	Subcommand string

	// Raw holds the arguments after the command, subcommand included.
	Raw []string

	// Unknown is set when the command word was not recognized.
	Unknown string
}

// Parser returns an ArgParser over the command's arguments.
func (a Args) Parser(boolNames ...string) *ArgParser {
	return NewArgParser(a.Raw, append(boolNames, "json", "quiet", "verbose", "offline")...)
}

const usageText = `tokencost - what your LLM calls cost

Prices come from a public price table cached for 24 hours under your
config directory. When the table cannot be fetched the last copy is used;
when there is no copy, costs are simply left out.

Usage:
  tokencost prices [list|show|refresh|status|clear]
  tokencost cost <model> --input N --output N [--cached N]
  tokencost estimate <model> "prompt text" [--ratio R]
  tokencost usage [summary|log|trends|report|record|prune|reprice]
  tokencost shell                  Interactive cost calculator
  tokencost dashboard [--days N]   Terminal dashboard
  tokencost config [show|get|set|keys|path|reset]
  tokencost doctor                 Check cache, network and usage log
  tokencost version

Prices:
  prices list [--vendor V] [--search Q]   List current prices ($ per 1M tokens)
  prices show <model>                     Show one entry as JSON
  prices refresh                          Fetch now, ignoring the cache age
  prices status                           Cache file, age and last error
  prices clear                            Delete the cached table

Usage log:
  usage record <model> --input N --output N [--cached N] [--prompt TEXT]
  usage log [N]                   Last N calls (default 20)
  usage trends [--days N]         Daily spend (default 7 days)
  usage report [--days N] [--format markdown|yaml|json]
  usage reprice                   Price calls logged while prices were unavailable
  usage prune [--days N]          Delete calls older than N days

Token counts accept 1234, 1,234, 12k and 1.5m.

Global flags:
  --json            Machine-readable output
  --offline         Never touch the network
  --model M         Default model for cost/estimate/shell
  -v, --verbose     Debug logging on stderr
  -q, --quiet       Only print results

Environment:
  TOKENCOST_HOME, TOKENCOST_PRICES_URL, TOKENCOST_OFFLINE, TOKENCOST_TTL_HOURS,
  TOKENCOST_DB, TOKENCOST_MODEL, TOKENCOST_LOG_LEVEL, NO_COLOR

Version: %s
`

// PrintUsage writes the help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "tokencost version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// HandleVersion prints version information in text or JSON.
func HandleVersion(env *Env) error {
	data := VersionData{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
	return env.emit("version", data, func() error {
		PrintVersion(env.Out)
		return nil
	})
}

// Parse parses argv (without the program name) into a command and its args.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)
	if len(remaining) == 0 {
		return CmdHelp, args
	}

	word := strings.ToLower(remaining[0])
	args.Raw = remaining[1:]
	if len(args.Raw) > 0 && !strings.HasPrefix(args.Raw[0], "-") {
		args.Subcommand = strings.ToLower(args.Raw[0])
	}

	switch word {
	case "prices", "price", "p":
		return CmdPrices, args
	case "cost", "c":
		return CmdCost, args
	case "estimate", "est", "e":
		return CmdEstimate, args
	case "usage", "u":
		return CmdUsage, args
	case "shell", "repl":
		return CmdShell, args
	case "dashboard", "dash", "tui":
		return CmdDashboard, args
	case "config":
		return CmdConfig, args
	case "doctor", "diag":
		return CmdDoctor, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		args.Unknown = remaining[0]
		return CmdHelp, args
	}
}

// parseGlobalFlags extracts global flags wherever they appear and returns
// the remaining arguments in order.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch arg {
		case "--json":
			args.JSON = true
		case "-q", "--quiet":
			args.Quiet = true
		case "-v", "--verbose":
			args.Verbose = true
		case "--offline":
			args.Offline = true
		case "--model":
			if i+1 < len(argv) {
				i++
				args.Model = argv[i]
			}
		default:
			if strings.HasPrefix(arg, "--model=") {
				args.Model = strings.TrimPrefix(arg, "--model=")
				continue
			}
			remaining = append(remaining, arg)
		}
	}
	return remaining, args
}
