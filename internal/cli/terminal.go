// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - decides how rich the output of a command may be.
//
// Reports are glamour-rendered and `prices show` is highlighted only when
// the destination is a terminal. NO_COLOR, FORCE_COLOR and TERM=dumb
// override the detection.

package cli

import (
	"io"
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// fdWriter is implemented by *os.File.
type fdWriter interface {
	Fd() uintptr
}

// isTerminal reports whether v is backed by a terminal. Buffers and pipes
// wrapped in other writers are not.
func isTerminal(v interface{}) bool {
	f, ok := v.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsStdinTTY reports whether stdin is a terminal. The shell needs one for
// line editing.
func IsStdinTTY() bool {
	return isTerminal(os.Stdin)
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return isTerminal(os.Stdout)
}

// Report widths clamp to this range; the fallback is used for non-terminals.
const (
	fallbackWidth = 80
	minWidth      = 40
	maxWidth      = 120
)

// terminalWidth returns the width to wrap output for w.
func terminalWidth(w io.Writer) int {
	f, ok := w.(fdWriter)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	switch {
	case err != nil || width <= 0:
		return fallbackWidth
	case width < minWidth:
		return minWidth
	case width > maxWidth:
		return maxWidth
	}
	return width
}

// =============================================================================
// COLOR
// =============================================================================

var (
	colorMu       sync.Mutex
	colorOverride *bool
)

// ColorsEnabled reports whether styled output should be used on stdout.
func ColorsEnabled() bool {
	colorMu.Lock()
	override := colorOverride
	colorMu.Unlock()
	if override != nil {
		return *override
	}
	return colorsFromEnv(os.Getenv, IsStdoutTTY())
}

// SetColorsEnabled pins color detection; nil restores it. Tests only.
func SetColorsEnabled(enabled *bool) {
	colorMu.Lock()
	colorOverride = enabled
	colorMu.Unlock()
}

// colorsFromEnv applies the NO_COLOR (https://no-color.org/) and FORCE_COLOR
// conventions on top of tty detection.
func colorsFromEnv(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case getenv("FORCE_COLOR") != "":
		return true
	case getenv("TERM") == "dumb":
		return false
	}
	return tty
}

// colorProfile returns the termenv profile lipgloss renders with.
func colorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}
