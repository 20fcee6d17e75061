// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tokencost/internal/pricing"
	"github.com/jeranaias/tokencost/internal/telemetry"
	"github.com/jeranaias/tokencost/internal/ui/components"
	"github.com/jeranaias/tokencost/internal/ui/styles"
)

// DefaultDays is the usage window shown when Options.Days is unset.
const DefaultDays = 7

// =============================================================================
// TABS
// =============================================================================

// Tab identifies a dashboard page.
type Tab int

const (
	TabSummary Tab = iota
	TabPrices
	TabTrends
	TabModels
	tabCount
)

// String returns the tab title.
func (t Tab) String() string {
	switch t {
	case TabSummary:
		return "Summary"
	case TabPrices:
		return "Prices"
	case TabTrends:
		return "Trends"
	case TabModels:
		return "Models"
	default:
		return "?"
	}
}

// =============================================================================
// MESSAGES
// =============================================================================

// pricesLoadedMsg carries the outcome of a price table load.
type pricesLoadedMsg struct {
	table  *pricing.Table
	status pricing.Status
	err    error
}

// trendsLoadedMsg carries aggregated usage from the log.
type trendsLoadedMsg struct {
	trends *telemetry.CostTrends
	err    error
}

// pricesChangedMsg is sent when the cache file changed on disk.
type pricesChangedMsg struct{}

// =============================================================================
// MODEL
// =============================================================================

// Options configures the dashboard.
type Options struct {
	Cache *pricing.Cache
	// Tracker reads the usage log. Nil hides usage and shows prices only.
	Tracker *telemetry.CostTracker
	// Days is the usage window; DefaultDays when zero.
	Days int
	// Watch reloads the prices when another process rewrites the cache.
	Watch  bool
	Theme  *styles.Theme
	Logger *slog.Logger
}

// Model is the Bubble Tea model of the cost dashboard.
type Model struct {
	ctx     context.Context
	cache   *pricing.Cache
	tracker *telemetry.CostTracker
	days    int
	logger  *slog.Logger
	changes <-chan struct{}

	theme  *styles.Theme
	keys   KeyMap
	width  int
	height int
	tab    Tab

	dash      *components.CostDashboard
	spinner   components.Spinner
	help      help.Model
	table     table.Model
	filter    textinput.Model
	filtering bool

	pending   int // loads in flight
	prices    *pricing.Table
	status    *pricing.Status
	trends    *telemetry.CostTrends
	priceErr  error
	usageErr  error
	updatedAt time.Time
	now       func() time.Time
	initCmd   tea.Cmd
}

// New creates the dashboard. The context bounds every load and the file
// watch.
func New(ctx context.Context, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}

	filter := textinput.New()
	filter.Prompt = "/ "
	filter.Placeholder = "model id or name"
	filter.CharLimit = 64

	tbl := table.New(
		table.WithColumns(priceColumns(0)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.Foreground(styles.Cyan).Bold(true)
	ts.Selected = ts.Selected.Foreground(styles.Purple).Bold(true)
	tbl.SetStyles(ts)

	m := Model{
		ctx:     ctx,
		cache:   opts.Cache,
		tracker: opts.Tracker,
		days:    days,
		logger:  logger.With("component", "dashboard"),
		theme:   theme,
		keys:    DefaultKeyMap(),
		dash:    components.NewCostDashboard(theme),
		spinner: components.NewSpinner(theme, "Loading"),
		help:    help.New(),
		table:   tbl,
		filter:  filter,
		now:     time.Now,
	}

	if opts.Watch && opts.Cache != nil {
		ch, err := opts.Cache.Watch(ctx, pricing.DefaultDebounce)
		if err != nil {
			m.logger.Warn("price cache watch unavailable", "error", err)
		} else {
			m.changes = ch
		}
	}
	if m.tracker == nil {
		m.trends = &telemetry.CostTrends{Days: days}
	}
	m.initCmd = m.startLoad(false)
	m.syncDashboard()
	return m
}

// Init starts the first loads.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.initCmd, m.waitForChange())
}

// =============================================================================
// COMMANDS
// =============================================================================

// startLoad marks loads in flight and returns the commands that perform them.
// It mutates m, so callers must hold the returned model.
func (m *Model) startLoad(force bool) tea.Cmd {
	cmds := []tea.Cmd{m.loadPrices(force)}
	m.pending = 1
	if m.tracker != nil {
		cmds = append(cmds, m.loadTrends())
		m.pending++
	}
	m.spinner.SetLabel("Loading prices")
	if force {
		m.spinner.SetLabel("Fetching prices")
	}
	cmds = append(cmds, m.spinner.Start())
	return tea.Batch(cmds...)
}

// loadPrices reads the table through the cache. Without force it waits on
// the cache's async load, so a fresh table on disk is never refetched.
func (m Model) loadPrices(force bool) tea.Cmd {
	ctx, cache := m.ctx, m.cache
	return func() tea.Msg {
		if cache == nil {
			return pricesLoadedMsg{err: pricing.ErrUnavailable}
		}
		var msg pricesLoadedMsg
		if force {
			msg.table, msg.err = cache.Refresh(ctx)
		} else {
			res := <-cache.GetAsync(ctx)
			msg.table, msg.err = res.Table, res.Err
		}
		msg.status = cache.Status()
		return msg
	}
}

func (m Model) loadTrends() tea.Cmd {
	ctx, tracker, days := m.ctx, m.tracker, m.days
	return func() tea.Msg {
		trends, err := tracker.GetTrends(ctx, days)
		return trendsLoadedMsg{trends: trends, err: err}
	}
}

// waitForChange blocks until the watched cache changes. It returns nil once
// the watch ends, which stops the loop.
func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return pricesChangedMsg{}
	}
}
