// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styles the dashboard renders with.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// LAYOUT
	// ==========================================================================

	App    lipgloss.Style
	Header lipgloss.Style
	Title  lipgloss.Style

	TabActive   lipgloss.Style
	TabInactive lipgloss.Style

	// ==========================================================================
	// CONTENT
	// ==========================================================================

	Section  lipgloss.Style
	Label    lipgloss.Style
	Value    lipgloss.Style
	Cost     lipgloss.Style
	Unpriced lipgloss.Style
	Error    lipgloss.Style
	Muted    lipgloss.Style

	// ==========================================================================
	// FOOTER
	// ==========================================================================

	StatusBar lipgloss.Style
	Spinner   lipgloss.Style
	HelpKey   lipgloss.Style
	HelpDesc  lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	return newTheme(lipgloss.HasDarkBackground(), lipgloss.ColorProfile())
}

// NewThemeForProfile creates a theme for an explicit profile. Tests use
// termenv.Ascii to get unstyled output.
func NewThemeForProfile(dark bool, profile termenv.Profile) *Theme {
	return newTheme(dark, profile)
}

// ThemeFor returns the theme named by the ui.theme setting: "dark",
// "light", or "auto" to follow the terminal background.
func ThemeFor(name string) *Theme {
	switch strings.ToLower(name) {
	case "dark":
		return newTheme(true, lipgloss.ColorProfile())
	case "light":
		return newTheme(false, lipgloss.ColorProfile())
	default:
		return NewTheme()
	}
}

func newTheme(dark bool, profile termenv.Profile) *Theme {
	t := &Theme{IsDark: dark, ColorProfile: profile}

	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(profile)
	r.SetHasDarkBackground(dark)
	s := r.NewStyle

	t.App = s().Padding(0, 1)
	t.Header = s().BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(Overlay)
	t.Title = s().Bold(true).Foreground(Cyan)

	t.TabActive = s().Bold(true).Foreground(Purple).Underline(true).Padding(0, 1)
	t.TabInactive = s().Foreground(TextMuted).Padding(0, 1)

	t.Section = s().Bold(true).Foreground(Cyan)
	t.Label = s().Foreground(TextSecondary).Width(16)
	t.Value = s().Foreground(TextPrimary)
	t.Cost = s().Bold(true).Foreground(Emerald)
	t.Unpriced = s().Foreground(Amber)
	t.Error = s().Bold(true).Foreground(Rose)
	t.Muted = s().Foreground(TextMuted)

	t.StatusBar = s().Foreground(TextSecondary)
	t.Spinner = s().Foreground(Purple)
	t.HelpKey = s().Bold(true).Foreground(TextSecondary)
	t.HelpDesc = s().Foreground(TextMuted)
	return t
}

// Bar renders a horizontal bar of width cells, filled in proportion to
// value/max and colored by SpendColor.
func (t *Theme) Bar(value, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if max > 0 && value > 0 {
		filled = int(value/max*float64(width) + 0.5)
		if filled == 0 {
			filled = 1
		}
		if filled > width {
			filled = width
		}
	}
	fill := t.Value.UnsetWidth().Foreground(SpendColor(value, max))
	empty := t.Muted.Foreground(Overlay)
	return fill.Render(strings.Repeat("#", filled)) + empty.Render(strings.Repeat("-", width-filled))
}
