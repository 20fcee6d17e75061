// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cost

import (
	"fmt"
	"math"
	"strings"

	"github.com/jeranaias/tokencost/internal/util"
)

// FormatUSD renders a dollar amount: "$0.00" for zero, four decimals below
// one dollar and two decimals otherwise. Amounts that round up to a dollar
// at four decimals count as a dollar.
func FormatUSD(v float64) string {
	switch {
	case v == 0:
		return "$0.00"
	case v < 0:
		return "-" + FormatUSD(-v)
	case math.Round(v*1e4) < 1e4:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

// UsageLine renders the token usage summary shown after a call:
//
//	Token usage: 1,234 input (200 cached), 567 output, Cost: $0.0123
//
// The cached part appears only when cached tokens were reported and the cost
// part only when b is non-nil.
func UsageLine(u Usage, b *Breakdown) string {
	u = u.Normalize()

	var sb strings.Builder
	sb.WriteString("Token usage: ")
	sb.WriteString(util.FormatCount(u.InputTokens))
	sb.WriteString(" input")
	if u.CachedInputTokens > 0 {
		sb.WriteString(" (")
		sb.WriteString(util.FormatCount(u.CachedInputTokens))
		sb.WriteString(" cached)")
	}
	sb.WriteString(", ")
	sb.WriteString(util.FormatCount(u.OutputTokens))
	sb.WriteString(" output")
	if b != nil {
		sb.WriteString(", Cost: ")
		sb.WriteString(FormatUSD(b.Total))
	}
	return sb.String()
}
