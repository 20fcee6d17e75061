// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tokencost/internal/ui/styles"
)

// =============================================================================
// LOAD SPINNER
// =============================================================================

// loadFrames stay ASCII so the status line keeps its width on every terminal.
var loadFrames = spinner.Spinner{
	Frames: []string{"|", "/", "-", "\\"},
	FPS:    time.Second / 10,
}

// Spinner is the status-line indicator shown while prices or usage load.
// It reports how long the current load has been running.
type Spinner struct {
	tick    spinner.Model
	theme   *styles.Theme
	label   string
	since   time.Time
	running bool
	timer   bool
	now     func() time.Time
}

// NewSpinner returns a stopped spinner with the given label.
func NewSpinner(theme *styles.Theme, label string) Spinner {
	if theme == nil {
		theme = styles.NewTheme()
	}
	tick := spinner.New()
	tick.Spinner = loadFrames
	return Spinner{
		tick:  tick,
		theme: theme,
		label: label,
		timer: true,
		now:   time.Now,
	}
}

// SetLabel changes the text next to the frames ("Fetching prices").
func (s *Spinner) SetLabel(label string) {
	s.label = label
}

// ShowTimer toggles the elapsed time suffix.
func (s *Spinner) ShowTimer(show bool) {
	s.timer = show
}

// Start begins a load and returns the first tick. Starting a running
// spinner restarts its clock.
func (s *Spinner) Start() tea.Cmd {
	s.running = true
	s.since = s.now()
	return s.tick.Tick
}

// Stop ends the load; pending ticks are dropped by Update.
func (s *Spinner) Stop() {
	s.running = false
}

// IsActive reports whether a load is running.
func (s Spinner) IsActive() bool {
	return s.running
}

// Elapsed is the time since Start, or zero before the first Start.
func (s Spinner) Elapsed() time.Duration {
	if s.since.IsZero() {
		return 0
	}
	return s.now().Sub(s.since)
}

// Update advances the frames while running.
func (s Spinner) Update(msg tea.Msg) (Spinner, tea.Cmd) {
	if !s.running {
		return s, nil
	}
	var cmd tea.Cmd
	s.tick, cmd = s.tick.Update(msg)
	return s, cmd
}

// View renders "| Fetching prices (3s)", or nothing when stopped.
func (s Spinner) View() string {
	if !s.running {
		return ""
	}
	out := s.theme.Spinner.Render(s.tick.View()) + " " + s.theme.StatusBar.Render(s.label)
	if s.timer {
		out += s.theme.Muted.Render(" (" + formatElapsed(s.Elapsed()) + ")")
	}
	return out
}
