// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line interface functionality.
// This file contains rendering helpers shared by several commands.
package cli

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/tokencost/internal/util"
)

// formatAge renders how long ago t was ("3 hours ago"), or "never".
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

// formatBytes renders a byte count ("12 kB").
func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", m, s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// TABLES
// =============================================================================

// table renders aligned columns. Widths are measured in display cells so
// model names with wide characters stay aligned.
type table struct {
	headers []string
	right   map[int]bool
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers, right: make(map[int]bool)}
}

// alignRight right-aligns the given columns (numbers, prices).
func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = util.StringWidth(h)
	}
	for _, row := range t.rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if cw := util.StringWidth(row[i]); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	line := func(cells []string, style func(string) string) {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if t.right[i] {
				cell = util.PadLeft(cell, widths[i])
			} else if i < len(widths)-1 {
				cell = util.PadRight(cell, widths[i])
			}
			parts[i] = cell
		}
		fmt.Fprintln(w, style(strings.TrimRight(strings.Join(parts, "  "), " ")))
	}

	line(t.headers, func(s string) string { return SectionStyle.Render(s) })
	for _, row := range t.rows {
		line(row, func(s string) string { return s })
	}
}

// =============================================================================
// RICH OUTPUT
// =============================================================================

// writeHighlightedJSON writes src, colorized when the output is a terminal.
func (e *Env) writeHighlightedJSON(src []byte) error {
	if e.interactive && ColorsEnabled() {
		var buf bytes.Buffer
		if err := quick.Highlight(&buf, string(src), "json", "terminal256", "monokai"); err == nil {
			_, err = io.Copy(e.Out, &buf)
			return err
		}
	}
	_, err := e.Out.Write(src)
	return err
}

// writeMarkdown renders md with glamour on a terminal and writes it raw
// otherwise, so that piped output stays valid markdown.
func (e *Env) writeMarkdown(md string) error {
	if e.interactive {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(terminalWidth(e.Out)-4),
		)
		var out string
		if err == nil {
			out, err = renderer.Render(md)
		}
		if err == nil {
			_, err = io.WriteString(e.Out, out)
			return err
		}
		e.Logger.Debug("markdown rendering failed, writing raw", "error", err)
	}
	_, err := io.WriteString(e.Out, md)
	return err
}
