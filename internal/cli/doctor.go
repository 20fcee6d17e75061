// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation for tokencost.
//
// Command: doctor
// Short:   Check that prices can be fetched, cached and used
// Aliases: diag
//
// Health Checks Performed:
//   1. Config Valid       - The config file loads and validates
//   2. Config Writable    - The config directory accepts new files
//   3. Price Cache        - The cached table exists and is fresh
//   4. Price Source       - The price URL answers with a valid document
//   5. Default Model      - The default model has a known price
//   6. Usage Log          - The usage database opens
//
// Status Symbols:
//   [OK]    Pass  - Check successful
//   [!!]    Warn  - Costs still work, possibly with stale prices
//   [FAIL]  Fail  - Costs will be omitted until this is fixed
//
// Examples:
//   tokencost doctor
//   tokencost doctor --json
//   tokencost --offline doctor      Skip the network check

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/tokencost/internal/config"
	"github.com/jeranaias/tokencost/internal/pricing"
	"github.com/jeranaias/tokencost/internal/telemetry"
)

var (
	checkPassStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	checkWarnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	checkFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	fixStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true).PaddingLeft(7)
)

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	// CheckPass indicates the check passed successfully.
	CheckPass CheckStatus = iota
	// CheckWarn indicates the check passed with warnings.
	CheckWarn
	// CheckFail indicates the check failed.
	CheckFail
)

// String returns the lowercase status name used in JSON output.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the bracketed tag for the status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return checkPassStyle.Render("[OK]  ")
	case CheckWarn:
		return checkWarnStyle.Render("[!!]  ")
	case CheckFail:
		return checkFailStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	State   string      `json:"status"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"`
}

// Render returns a formatted string representation of the health check.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %-16s %s", c.Status.Symbol(), c.Name, c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + fixStyle.Render("-> "+c.Fix)
	}
	return result
}

// DoctorData is returned by `doctor --json`.
type DoctorData struct {
	Checks  []*HealthCheck `json:"checks"`
	Passed  int            `json:"passed"`
	Warned  int            `json:"warned"`
	Failed  int            `json:"failed"`
	Healthy bool           `json:"healthy"`
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

// HandleDoctor runs every check and reports. It fails when any check fails.
func HandleDoctor(ctx context.Context, env *Env) error {
	checks := runAllChecks(ctx, env)

	data := DoctorData{Checks: checks}
	for _, check := range checks {
		check.State = check.Status.String()
		switch check.Status {
		case CheckPass:
			data.Passed++
		case CheckWarn:
			data.Warned++
		case CheckFail:
			data.Failed++
		}
	}
	data.Healthy = data.Failed == 0

	err := env.emit("doctor", data, func() error {
		fmt.Fprintln(env.Out, TitleStyle.Render("tokencost doctor"))
		fmt.Fprintln(env.Out, RenderSeparator(41))
		for _, check := range checks {
			fmt.Fprintln(env.Out, check.Render())
		}
		fmt.Fprintln(env.Out, RenderSeparator(41))

		parts := []string{fmt.Sprintf("%d passed", data.Passed)}
		if data.Warned > 0 {
			parts = append(parts, checkWarnStyle.Render(fmt.Sprintf("%d warning", data.Warned)))
		}
		if data.Failed > 0 {
			parts = append(parts, checkFailStyle.Render(fmt.Sprintf("%d failed", data.Failed)))
		}
		fmt.Fprintln(env.Out, strings.Join(parts, ", "))
		return nil
	})
	if err != nil {
		return err
	}
	if data.Failed > 0 {
		return fmt.Errorf("%d health check(s) failed", data.Failed)
	}
	return nil
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func runAllChecks(ctx context.Context, env *Env) []*HealthCheck {
	return []*HealthCheck{
		checkConfigValid(),
		checkConfigWritable(),
		checkPriceCache(env),
		checkPriceSource(ctx, env),
		checkDefaultModel(ctx, env),
		checkUsageLog(ctx, env),
	}
}

func checkConfigValid() *HealthCheck {
	check := &HealthCheck{Name: "Config"}

	path, err := config.ConfigPathTOML()
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Could not determine config path"
		return check
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		check.Message = "Using defaults (no config file)"
		return check
	}
	if _, err := config.LoadFromPath(path); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Invalid: %s", err)
		check.Fix = "Run: tokencost config reset"
		return check
	}
	check.Message = "Valid (" + path + ")"
	return check
}

func checkConfigWritable() *HealthCheck {
	check := &HealthCheck{Name: "Config Dir"}

	dir, err := config.ConfigDir()
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Could not determine directory: %s", err)
		check.Fix = "Set " + config.HomeEnv + " to a writable directory"
		return check
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Could not create %s: %s", dir, err)
		check.Fix = fmt.Sprintf("Create manually: mkdir -p %s", dir)
		return check
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("test"), 0600); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Not writable: %s", err)
		check.Fix = fmt.Sprintf("Check permissions: chmod 755 %s", dir)
		return check
	}
	os.Remove(probe)

	check.Message = "Writable"
	return check
}

func checkPriceCache(env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Price Cache"}
	st := env.Cache.Status()

	switch {
	case !st.Exists:
		check.Status = CheckWarn
		check.Message = "No cached table yet"
		check.Fix = "Run: tokencost prices refresh"
	case !st.Fresh:
		check.Status = CheckWarn
		check.Message = "Stale, fetched " + formatAge(st.ModTime)
		check.Fix = "Run: tokencost prices refresh"
	default:
		check.Message = "Fresh, fetched " + formatAge(st.ModTime)
	}
	return check
}

func checkPriceSource(ctx context.Context, env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Price Source"}
	if env.Config.Pricing.Offline || env.Cache.Status().Offline {
		check.Status = CheckWarn
		check.Message = "Skipped (offline)"
		return check
	}

	url := env.Config.Pricing.SourceURL()
	f := &pricing.Fetcher{URL: url, Timeout: env.Config.Pricing.Timeout()}
	_, doc, err := f.Fetch(ctx)
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Unreachable: %s", err)
		if env.Cache.Status().Exists {
			check.Message += " (cached prices still used)"
		} else {
			check.Status = CheckFail
			check.Fix = "Check the network or set pricing.url"
		}
		return check
	}
	check.Message = fmt.Sprintf("%d prices at %s", len(doc.Prices), url)
	return check
}

func checkDefaultModel(ctx context.Context, env *Env) *HealthCheck {
	model := env.Config.Estimate.DefaultModel
	check := &HealthCheck{Name: "Default Model"}
	if env.Prices(ctx) == nil {
		check.Status = CheckWarn
		check.Message = "No price table; costs will be omitted"
		return check
	}
	price, ok := env.Estimator().Lookup(ctx, model)
	if !ok {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("No price for %q", model)
		check.Fix = "Run: tokencost config set estimate.default_model <id>"
		return check
	}
	check.Message = fmt.Sprintf("%s resolves to %s/%s", model, price.Vendor, price.ID)
	return check
}

func checkUsageLog(ctx context.Context, env *Env) *HealthCheck {
	check := &HealthCheck{Name: "Usage Log"}
	if !env.Config.Usage.Enabled {
		check.Message = "Disabled"
		return check
	}
	path, err := env.Config.DatabasePath()
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		return check
	}
	store, err := telemetry.OpenStore(path)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Cannot open %s: %s", path, err)
		check.Fix = "Move the file aside; a new log is created on next use"
		return check
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Unreadable: %s", err)
		return check
	}
	check.Message = fmt.Sprintf("%d calls recorded", n)
	return check
}
