// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kaptinlin/jsonrepair"
)

// LoadOverrides reads hand-maintained price entries from path.
//
// The file holds either a document ({"prices": [...]}) or a bare array of
// entries. Because people edit it by hand, trailing commas, comments and
// single quotes are repaired before decoding. A missing file is not an error.
func LoadOverrides(path string) ([]Price, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes override entries, repairing malformed JSON if needed.
func ParseOverrides(data []byte) ([]Price, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	prices, err := decodeOverrides(data)
	if err != nil {
		repaired, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return nil, fmt.Errorf("%w: overrides: %v", ErrInvalidDocument, err)
		}
		prices, err = decodeOverrides([]byte(repaired))
		if err != nil {
			return nil, fmt.Errorf("%w: overrides: %v", ErrInvalidDocument, err)
		}
	}

	for _, p := range prices {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("%w: overrides: %v", ErrInvalidDocument, err)
		}
	}
	return prices, nil
}

func decodeOverrides(data []byte) ([]Price, error) {
	if len(data) > 0 && data[0] == '[' {
		var prices []Price
		if err := json.Unmarshal(data, &prices); err != nil {
			return nil, err
		}
		return prices, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Prices, nil
}
