// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across tokencost.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe string truncation with ellipsis
//   - TruncateWidth, PadRight, PadLeft: display-width aware column helpers
//
// Number Formatting:
//   - FormatCount: thousands separators for token counts
//   - FormatPrice: per-million price rendering
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	line := util.PadRight(modelID, 32) + util.FormatCount(tokens)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
