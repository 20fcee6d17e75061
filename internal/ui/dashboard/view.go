// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the dashboard.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.tab == TabPrices {
		b.WriteString(m.renderPrices())
	} else {
		b.WriteString(m.dash.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())

	return m.theme.App.Render(b.String())
}

func (m Model) renderHeader() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		if t == m.tab {
			tabs = append(tabs, m.theme.TabActive.Render(t.String()))
		} else {
			tabs = append(tabs, m.theme.TabInactive.Render(t.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		m.theme.Title.Render("tokencost"),
		"  ",
		strings.Join(tabs, " "),
	)
}

func (m Model) renderPrices() string {
	t := m.theme
	if m.prices == nil {
		if m.pending > 0 {
			return t.Muted.Render("Waiting for the price table...") + "\n"
		}
		return t.Error.Render("No price table available.") + "\n" +
			t.Muted.Render("Costs are omitted until prices can be fetched. Press r to retry.") + "\n"
	}

	var b strings.Builder
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	b.WriteString(m.table.View())
	b.WriteString("\n")

	shown, total := len(m.table.Rows()), len(m.prices.Current())
	summary := fmt.Sprintf("%d models", total)
	if shown != total {
		summary = fmt.Sprintf("%d of %d models", shown, total)
	}
	summary += ", USD per million tokens"
	if at := m.prices.UpdatedAt(); at != "" {
		summary += ", published " + at
	}
	b.WriteString(t.Muted.Render(summary))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderStatus() string {
	t := m.theme
	if m.spinner.IsActive() {
		return m.spinner.View()
	}

	var parts []string
	if m.priceErr != nil {
		parts = append(parts, t.Error.Render("prices: "+m.priceErr.Error()))
	}
	if m.usageErr != nil {
		parts = append(parts, t.Error.Render("usage: "+m.usageErr.Error()))
	}
	if len(parts) == 0 && !m.updatedAt.IsZero() {
		parts = append(parts, "updated "+m.updatedAt.Format("15:04:05"))
	}
	return t.StatusBar.Render(strings.Join(parts, "  "))
}

func (m Model) renderHelp() string {
	if m.filtering {
		return m.help.View(filterKeys{m.keys})
	}
	return m.help.View(m.keys)
}
