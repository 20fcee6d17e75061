// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lipgloss styles of the tokencost
dashboard.

# Colors (colors.go)

Adaptive colors pick a light or dark variant from the terminal background:

	Purple   - active tab, spinner
	Cyan     - titles and section headers
	Emerald  - low spend, fresh prices
	Amber    - medium spend, stale prices, unpriced calls
	Rose     - high spend, errors

SpendColor maps a value onto that scale relative to the largest value shown.

# Theme (theme.go)

A Theme is built once per program from the detected color profile:

	theme := styles.NewTheme()
	fmt.Println(theme.Title.Render("Spend"), theme.Bar(3.2, 10, 30))

Tests build themes with NewThemeForProfile(dark, termenv.Ascii) so that
rendered text carries no escape codes.
*/
package styles
