// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tokencost/internal/pricing"
	"github.com/jeranaias/tokencost/internal/ui/components"
	"github.com/jeranaias/tokencost/internal/util"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pricesLoadedMsg:
		// A failed refresh still returns the previous table.
		if msg.table != nil {
			m.prices = msg.table
		}
		m.priceErr = msg.err
		status := msg.status
		m.status = &status
		if msg.err != nil {
			m.logger.Debug("price load failed", "error", msg.err)
		}
		m.refreshRows()
		m.finishLoad()
		return m, nil

	case trendsLoadedMsg:
		if msg.err != nil {
			m.usageErr = msg.err
			m.logger.Debug("usage load failed", "error", msg.err)
		} else {
			m.trends, m.usageErr = msg.trends, nil
		}
		m.finishLoad()
		return m, nil

	case pricesChangedMsg:
		m.pending++
		cmds := []tea.Cmd{m.loadPrices(false), m.waitForChange()}
		if !m.spinner.IsActive() {
			m.spinner.SetLabel("Reloading prices")
			cmds = append(cmds, m.spinner.Start())
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.clearFilter()
			return m, nil
		case key.Matches(msg, m.keys.Accept):
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.refreshRows()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.NextTab):
		m.setTab((m.tab + 1) % tabCount)
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.setTab((m.tab + tabCount - 1) % tabCount)
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.pending > 0 {
			return m, nil
		}
		cmd := m.startLoad(true)
		return m, cmd

	case key.Matches(msg, m.keys.Filter):
		if m.tab != TabPrices {
			return m, nil
		}
		m.filtering = true
		return m, m.filter.Focus()

	case key.Matches(msg, m.keys.Cancel):
		if m.filter.Value() != "" {
			m.clearFilter()
		}
		return m, nil
	}

	if m.tab == TabPrices {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

// =============================================================================
// STATE HELPERS
// =============================================================================

func (m *Model) finishLoad() {
	if m.pending > 0 {
		m.pending--
	}
	if m.pending == 0 {
		m.spinner.Stop()
		m.updatedAt = m.now()
	}
	m.syncDashboard()
}

func (m *Model) setTab(t Tab) {
	m.tab = t
	m.syncDashboard()
}

// syncDashboard hands the loaded data to the cost view for the current tab.
func (m *Model) syncDashboard() {
	switch m.tab {
	case TabTrends:
		m.dash.SetView(components.ViewHistory)
	case TabModels:
		m.dash.SetView(components.ViewBreakdown)
	default:
		m.dash.SetView(components.ViewSummary)
	}
	m.dash.SetData(components.DashboardData{Trends: m.trends, Prices: m.status})
}

func (m *Model) clearFilter() {
	m.filtering = false
	m.filter.SetValue("")
	m.filter.Blur()
	m.refreshRows()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.help.Width = width
	m.dash.SetSize(width-2, height-6)
	m.table.SetColumns(priceColumns(width - 4))
	h := height - 9
	if h < 3 {
		h = 3
	}
	m.table.SetHeight(h)
}

// refreshRows rebuilds the price table from the loaded table and the filter.
func (m *Model) refreshRows() {
	if m.prices == nil {
		m.table.SetRows(nil)
		return
	}
	matches := m.prices.Filter("", m.filter.Value())
	rows := make([]table.Row, 0, len(matches))
	for _, p := range matches {
		rows = append(rows, priceRow(p))
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

func priceRow(p pricing.Price) table.Row {
	cached := "-"
	if p.InputCached != nil {
		cached = "$" + util.FormatPrice(*p.InputCached)
	}
	return table.Row{
		p.ID,
		p.Vendor,
		p.DisplayName(),
		"$" + util.FormatPrice(p.Input),
		cached,
		"$" + util.FormatPrice(p.Output),
	}
}

// priceColumns sizes the price table to width; the name column takes the
// slack. Zero width uses the defaults.
func priceColumns(width int) []table.Column {
	const idWidth, vendorWidth, priceWidth = 28, 10, 9
	nameWidth := 24
	if width > 0 {
		// Cells carry one column of padding on each side.
		nameWidth = width - idWidth - vendorWidth - 3*priceWidth - 12
		if nameWidth < 12 {
			nameWidth = 12
		}
	}
	return []table.Column{
		{Title: "Model", Width: idWidth},
		{Title: "Vendor", Width: vendorWidth},
		{Title: "Name", Width: nameWidth},
		{Title: "Input", Width: priceWidth},
		{Title: "Cached", Width: priceWidth},
		{Title: "Output", Width: priceWidth},
	}
}
