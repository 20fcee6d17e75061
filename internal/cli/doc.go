// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the tokencost commands.
//
// Parse turns argv into a Command and its Args; main switches on the
// command and calls the matching handler with an Env, which carries the
// output streams, the loaded configuration, the shared price cache and the
// logger. Handlers return errors instead of printing them so that main can
// pick the exit code with GetExitCode.
//
// # Commands
//
//   - prices: list, show, refresh, status and clear the cached price table
//   - cost: price a call with known token counts
//   - estimate: guess the cost of a prompt before sending it
//   - usage: record calls in the local usage log and report on them
//   - shell: interactive calculator with history and model completion
//   - doctor: check the configuration, the price cache and the usage log
//   - dashboard: terminal dashboard, started from main
//   - config: show and edit the configuration file
//
// Every command accepts --json and then writes a single JSONResponse.
// A missing price is never an error: the cost is left out of the output.
package cli
