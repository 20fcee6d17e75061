// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single document fetch.
	DefaultTimeout = 10 * time.Second

	// MaxDocumentSize caps the remote document body. The current table is
	// well under 100KB; the historical one a few hundred KB.
	MaxDocumentSize = 5 * 1024 * 1024

	// DefaultUserAgent identifies fetches to the price host.
	DefaultUserAgent = "tokencost"
)

// sharedHTTPClient pools connections across fetches. Per-request deadlines
// come from the context, so the client itself has no timeout.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// FetchError describes a non-200 response from the price host.
type FetchError struct {
	URL    string
	Status int
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

// Fetcher downloads the raw price document.
type Fetcher struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
}

// Fetch downloads and validates the document, returning the raw bytes so the
// caller can persist exactly what the host served.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, *Document, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = sharedHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, nil, &FetchError{URL: f.URL, Status: resp.StatusCode}
	}

	body, err := readResponse(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	doc, err := DecodeDocument(body)
	if err != nil {
		return nil, nil, err
	}
	return body, doc, nil
}

// readResponse reads at most MaxDocumentSize bytes and fails if the body is larger.
func readResponse(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, MaxDocumentSize)
	}
	return body, nil
}
