// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable pieces of the tokencost dashboard.

# Components

CostDashboard (cost_dashboard.go) renders spend data in three views:

	ViewSummary    price table status, the current session and period totals
	ViewHistory    one bar per day, scaled to the most expensive day
	ViewBreakdown  one bar per model with its share of the total

It is a pure renderer: callers load a DashboardData and hand it over with
SetData. Nil fields render as "Loading...".

Spinner (spinner.go) wraps the bubbles spinner with ASCII frames, a message
and an elapsed-time counter. Once stopped it drops tick messages, which ends
the tick loop.

# Usage

	dash := components.NewCostDashboard(styles.NewTheme())
	dash.SetSize(width, height)
	dash.SetData(components.DashboardData{Trends: trends, Prices: &status})
	dash.SetView(components.ViewHistory)
	fmt.Println(dash.View())
*/
package components
