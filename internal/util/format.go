// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer is safe for concurrent use once constructed.
var printer = message.NewPrinter(language.English)

// FormatCount renders an integer with thousands separators ("1,234,567").
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatCount64 is FormatCount for int64 values.
func FormatCount64(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatPrice renders a per-million-token price, trimming trailing zeros
// but keeping at least two decimals ("2.50", "0.075", "15.00").
func FormatPrice(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	dot := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			dot = i
			break
		}
	}
	switch {
	case dot < 0:
		return s + ".00"
	case len(s)-dot-1 < 2:
		return s + "0"
	}
	return s
}
