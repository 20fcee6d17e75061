// json_output.go - Machine-readable output for tokencost commands.
//
// Every command accepts --json and then writes a single JSONResponse
// envelope to stdout; human-readable notes go to stderr.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/tokencost/internal/cost"
	"github.com/jeranaias/tokencost/internal/pricing"
)

// JSONResponse is the envelope for --json output.
type JSONResponse struct {
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error is null on success
	Error *string `json:"error"`

	// Timestamp is RFC 3339 UTC
	Timestamp string `json:"timestamp"`

	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response, indented, to w.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the response as indented JSON.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// emit writes data as a JSONResponse when env is in JSON mode, otherwise it
// calls human. It keeps handlers to a single code path.
func (e *Env) emit(command string, data interface{}, human func() error) error {
	if e.JSON {
		return NewJSONResponse(command, data).Write(e.Out)
	}
	return human()
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// PricesListData is returned by `prices list`.
type PricesListData struct {
	UpdatedAt string          `json:"updated_at"`
	Count     int             `json:"count"`
	Prices    []pricing.Price `json:"prices"`
}

// CostData is returned by `cost`.
type CostData struct {
	Model     string          `json:"model"`
	Usage     cost.Usage      `json:"usage"`
	Breakdown *cost.Breakdown `json:"breakdown"`
	UsageLine string          `json:"usage_line"`
}

// EstimateData is returned by `estimate`.
type EstimateData struct {
	Model    string          `json:"model"`
	Prompt   cost.Prompt     `json:"estimate"`
	Priced   bool            `json:"priced"`
	Cost     *cost.Breakdown `json:"breakdown,omitempty"`
	Rendered string          `json:"usage_line"`
}

// VersionData is returned by `version`.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
