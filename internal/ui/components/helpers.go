// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"
)

// =============================================================================
// SHARED HELPER FUNCTIONS
// =============================================================================

// fmtPercent formats a percentage with one decimal place.
func fmtPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// formatElapsed renders a duration with its two largest units ("3m 12s",
// "5h 2m", "2d 4h"). Negative durations render as "0s".
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	case seconds < 86400:
		return fmt.Sprintf("%dh %dm", seconds/3600, seconds%3600/60)
	default:
		return fmt.Sprintf("%dd %dh", seconds/86400, seconds%86400/3600)
	}
}
