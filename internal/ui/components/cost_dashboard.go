// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/pricing"
	"github.com/jeranaias/tokencost/internal/telemetry"
	"github.com/jeranaias/tokencost/internal/ui/styles"
	"github.com/jeranaias/tokencost/internal/util"
)

// =============================================================================
// COST DASHBOARD
// =============================================================================

// DashboardData is what the cost dashboard renders. Any field may be nil
// while it is still loading.
type DashboardData struct {
	Session *telemetry.SessionCost
	Trends  *telemetry.CostTrends
	Prices  *pricing.Status
}

// CostDashboard renders spend summaries, daily history and per-model totals.
type CostDashboard struct {
	theme  *styles.Theme
	data   DashboardData
	view   DashboardView
	width  int
	height int
	now    func() time.Time
}

// DashboardView determines what the dashboard displays.
type DashboardView int

const (
	ViewSummary DashboardView = iota
	ViewHistory
	ViewBreakdown
)

// barWidth is used until SetSize reports the terminal width.
const barWidth = 30

// NewCostDashboard creates a new cost dashboard.
func NewCostDashboard(theme *styles.Theme) *CostDashboard {
	return &CostDashboard{
		theme: theme,
		view:  ViewSummary,
		now:   time.Now,
	}
}

// SetData replaces the rendered data.
func (cd *CostDashboard) SetData(data DashboardData) {
	cd.data = data
}

// SetView changes the dashboard view.
func (cd *CostDashboard) SetView(view DashboardView) {
	cd.view = view
}

// SetSize updates the dashboard dimensions.
func (cd *CostDashboard) SetSize(width, height int) {
	cd.width = width
	cd.height = height
}

// =============================================================================
// RENDERING
// =============================================================================

// View renders the dashboard based on the current view mode.
func (cd *CostDashboard) View() string {
	switch cd.view {
	case ViewHistory:
		return cd.renderHistory()
	case ViewBreakdown:
		return cd.renderBreakdown()
	default:
		return cd.renderSummary()
	}
}

func (cd *CostDashboard) renderSummary() string {
	t := cd.theme
	var b strings.Builder

	b.WriteString(t.Section.Render("Prices"))
	b.WriteString("\n")
	b.WriteString(cd.renderPriceStatus())
	b.WriteString("\n")

	if s := cd.data.Session; s != nil {
		b.WriteString(t.Section.Render("This Session"))
		b.WriteString("\n")
		cd.row(&b, "Started", s.StartTime.Format("15:04:05")+" ("+formatElapsed(cd.now().Sub(s.StartTime))+" ago)")
		cd.row(&b, "Queries", util.FormatCount(s.Queries)+cd.unpricedSuffix(s.Unpriced))
		cd.row(&b, "Tokens", cost.UsageLine(s.Tokens, nil))
		cd.row(&b, "Spend", t.Cost.Render(cost.FormatUSD(s.TotalCost)))
		b.WriteString("\n")
	}

	tr := cd.data.Trends
	if tr == nil {
		b.WriteString(t.Muted.Render("Loading usage..."))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(t.Section.Render(fmt.Sprintf("Last %d Days", tr.Days)))
	b.WriteString("\n")
	if tr.Queries == 0 {
		b.WriteString(t.Muted.Render("  No usage recorded"))
		b.WriteString("\n")
		return b.String()
	}
	cd.row(&b, "Queries", util.FormatCount(tr.Queries)+cd.unpricedSuffix(tr.Unpriced))
	cd.row(&b, "Spend", t.Cost.Render(cost.FormatUSD(tr.TotalCost)))
	if len(tr.DailyBreakdown) > 0 {
		cd.row(&b, "Daily average", cost.FormatUSD(tr.TotalCost/float64(tr.Days)))
	}
	if top := topModel(tr.ModelBreakdown); top != nil {
		cd.row(&b, "Top model", fmt.Sprintf("%s %s (%s)", top.Model, cost.FormatUSD(top.Cost), fmtPercent(share(top.Cost, tr.TotalCost))))
	}
	return b.String()
}

func (cd *CostDashboard) renderPriceStatus() string {
	t := cd.theme
	st := cd.data.Prices
	if st == nil {
		return t.Muted.Render("  Loading prices...") + "\n"
	}

	var b strings.Builder
	switch {
	case !st.Exists && st.Entries == 0:
		cd.row(&b, "Table", t.Error.Render("not available")+t.Muted.Render(" (costs are omitted)"))
	case st.Fresh:
		cd.row(&b, "Table", fmt.Sprintf("%d models, fetched %s ago", st.Entries, formatElapsed(st.Age)))
	default:
		cd.row(&b, "Table", t.Unpriced.Render(fmt.Sprintf("%d models, stale (%s old)", st.Entries, formatElapsed(st.Age))))
	}
	if st.UpdatedAt != "" {
		cd.row(&b, "Published", st.UpdatedAt)
	}
	if st.LastError != "" {
		cd.row(&b, "Last error", t.Error.Render(util.TruncateWidth(st.LastError, cd.contentWidth()-18)))
	}
	return b.String()
}

func (cd *CostDashboard) renderHistory() string {
	t := cd.theme
	var b strings.Builder

	tr := cd.data.Trends
	if tr == nil {
		return t.Muted.Render("Loading usage...") + "\n"
	}
	b.WriteString(t.Section.Render(fmt.Sprintf("Daily Spend - Last %d Days", tr.Days)))
	b.WriteString("\n")
	if len(tr.DailyBreakdown) == 0 {
		b.WriteString(t.Muted.Render("  No historical data available"))
		b.WriteString("\n")
		return b.String()
	}

	maxCost := 0.0
	for _, d := range tr.DailyBreakdown {
		if d.Cost > maxCost {
			maxCost = d.Cost
		}
	}
	width := cd.barWidth(44)
	for _, d := range tr.DailyBreakdown {
		fmt.Fprintf(&b, "  %-10s %s %9s %s\n",
			d.Date.Format("Mon Jan 2"),
			t.Bar(d.Cost, maxCost, width),
			cost.FormatUSD(d.Cost),
			t.Muted.Render(fmt.Sprintf("(%s calls)", util.FormatCount(d.QueryCount))))
	}
	b.WriteString("\n")
	cd.row(&b, "Total", t.Cost.Render(cost.FormatUSD(tr.TotalCost)))
	return b.String()
}

func (cd *CostDashboard) renderBreakdown() string {
	t := cd.theme
	var b strings.Builder

	tr := cd.data.Trends
	if tr == nil {
		return t.Muted.Render("Loading usage...") + "\n"
	}
	b.WriteString(t.Section.Render(fmt.Sprintf("Spend by Model - Last %d Days", tr.Days)))
	b.WriteString("\n")
	if len(tr.ModelBreakdown) == 0 {
		b.WriteString(t.Muted.Render("  No costs recorded"))
		b.WriteString("\n")
		return b.String()
	}

	nameWidth := 8
	maxCost := 0.0
	for _, m := range tr.ModelBreakdown {
		if w := util.StringWidth(m.Model); w > nameWidth {
			nameWidth = w
		}
		if m.Cost > maxCost {
			maxCost = m.Cost
		}
	}
	if nameWidth > 32 {
		nameWidth = 32
	}
	width := cd.barWidth(nameWidth + 30)
	for _, m := range tr.ModelBreakdown {
		line := fmt.Sprintf("  %s %s %9s %6s",
			util.PadRight(util.TruncateWidth(m.Model, nameWidth), nameWidth),
			t.Bar(m.Cost, maxCost, width),
			cost.FormatUSD(m.Cost),
			fmtPercent(share(m.Cost, tr.TotalCost)))
		if m.Unpriced > 0 {
			line += t.Unpriced.Render(fmt.Sprintf("  %d unpriced", m.Unpriced))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	cd.row(&b, "Total", t.Cost.Render(cost.FormatUSD(tr.TotalCost)))
	return b.String()
}

// =============================================================================
// HELPERS
// =============================================================================

func (cd *CostDashboard) row(b *strings.Builder, label, value string) {
	b.WriteString("  ")
	b.WriteString(cd.theme.Label.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func (cd *CostDashboard) unpricedSuffix(n int) string {
	if n == 0 {
		return ""
	}
	return cd.theme.Unpriced.Render(fmt.Sprintf(" (%d unpriced)", n))
}

func (cd *CostDashboard) contentWidth() int {
	if cd.width <= 0 {
		return 80
	}
	return cd.width
}

// barWidth returns the room left for a bar after reserved columns.
func (cd *CostDashboard) barWidth(reserved int) int {
	if cd.width <= 0 {
		return barWidth
	}
	w := cd.width - reserved
	if w < 10 {
		w = 10
	}
	if w > 60 {
		w = 60
	}
	return w
}

func topModel(models []telemetry.ModelTotal) *telemetry.ModelTotal {
	var top *telemetry.ModelTotal
	for i := range models {
		if top == nil || models[i].Cost > top.Cost {
			top = &models[i]
		}
	}
	if top == nil || top.Cost == 0 {
		return nil
	}
	return top
}

func share(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total * 100
}
