// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tokencost/internal/config"
)

// priceServer serves body with status and counts requests.
type priceServer struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	status int
	body   string
	delay  time.Duration
}

func newPriceServer(t *testing.T, body string) *priceServer {
	t.Helper()
	ps := &priceServer{status: http.StatusOK, body: body}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		ps.mu.Lock()
		status, body, delay := ps.status, ps.body, ps.delay
		ps.mu.Unlock()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *priceServer) set(status int, body string) {
	ps.mu.Lock()
	ps.status, ps.body = status, body
	ps.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, ps *priceServer, mutate ...func(*Options)) *Cache {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		Path:          filepath.Join(dir, "prices.json"),
		OverridesPath: filepath.Join(dir, "prices.local.json"),
		TTL:           DefaultTTL,
		Timeout:       2 * time.Second,
		RetryInterval: time.Millisecond,
		Logger:        quietLogger(),
	}
	if ps != nil {
		opts.URL = ps.URL
		opts.HTTPClient = ps.Client()
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewCache(opts)
}

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestCache_FetchesAndPersists(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.EqualValues(t, 1, ps.hits.Load())

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.JSONEq(t, sampleDoc, string(data), "cache file holds the document as served")

	// Second call is served from memory.
	again, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, table, again)
	assert.EqualValues(t, 1, ps.hits.Load())
}

func TestCache_FreshFileSkipsNetwork(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)
	require.NoError(t, os.WriteFile(c.Path(), []byte(historicalDoc), 0644))
	age(t, c.Path(), 23*time.Hour)

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len(), "table read from disk")
	assert.EqualValues(t, 0, ps.hits.Load())
}

func TestCache_StaleFileRefetched(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)
	require.NoError(t, os.WriteFile(c.Path(), []byte(historicalDoc), 0644))
	age(t, c.Path(), 25*time.Hour)

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len(), "fresh table fetched")
	assert.EqualValues(t, 1, ps.hits.Load())

	info, err := os.Stat(c.Path())
	require.NoError(t, err)
	assert.Less(t, time.Since(info.ModTime()), time.Hour, "file rewritten")
}

func TestCache_StaleFallbackOnFetchFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"not found", http.StatusNotFound, ""},
		{"invalid json", http.StatusOK, "<html>maintenance</html>"},
		{"empty prices", http.StatusOK, `{"prices": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := newPriceServer(t, tt.body)
			ps.set(tt.status, tt.body)
			c := newTestCache(t, ps)
			require.NoError(t, os.WriteFile(c.Path(), []byte(sampleDoc), 0644))
			age(t, c.Path(), 72*time.Hour)

			table, err := c.Get(context.Background())
			require.NoError(t, err, "stale copy must be served without error")
			assert.Equal(t, 6, table.Len())
			assert.EqualValues(t, 1, ps.hits.Load())

			st := c.Status()
			assert.True(t, st.Exists)
			assert.False(t, st.Fresh)
			assert.NotEmpty(t, st.LastError)

			// The stale file is left in place.
			data, err := os.ReadFile(c.Path())
			require.NoError(t, err)
			assert.JSONEq(t, sampleDoc, string(data))
		})
	}
}

func TestFetcher_RejectsOversizedBody(t *testing.T) {
	ps := newPriceServer(t, sampleDoc+strings.Repeat(" ", MaxDocumentSize))
	f := &Fetcher{URL: ps.URL, Client: ps.Client()}

	raw, doc, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Nil(t, raw)
	assert.Nil(t, doc)
}

func TestFetcher_AcceptsBodyAtLimit(t *testing.T) {
	body := sampleDoc + strings.Repeat(" ", MaxDocumentSize-len(sampleDoc))
	ps := newPriceServer(t, body)
	f := &Fetcher{URL: ps.URL, Client: ps.Client()}

	raw, doc, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, raw, MaxDocumentSize)
	assert.Len(t, doc.Prices, 6)
}

func TestCache_OversizedResponseFallsBack(t *testing.T) {
	ps := newPriceServer(t, sampleDoc+strings.Repeat(" ", MaxDocumentSize))
	c := newTestCache(t, ps)
	require.NoError(t, os.WriteFile(c.Path(), []byte(sampleDoc), 0644))
	age(t, c.Path(), 48*time.Hour)

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())

	st := c.Status()
	assert.False(t, st.Fresh)
	assert.Contains(t, st.LastError, "too large")

	data, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.JSONEq(t, sampleDoc, string(data))
}

func TestCache_UnavailableWithoutCache(t *testing.T) {
	ps := newPriceServer(t, "")
	ps.set(http.StatusServiceUnavailable, "")
	c := newTestCache(t, ps)

	table, err := c.Get(context.Background())
	assert.Nil(t, table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}

func TestCache_NetworkError(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	url := ps.URL
	ps.Close()

	c := newTestCache(t, nil, func(o *Options) { o.URL = url })
	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCache_Timeout(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	ps.delay = 2 * time.Second
	c := newTestCache(t, ps, func(o *Options) { o.Timeout = 50 * time.Millisecond })

	start := time.Now()
	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCache_Offline(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps, func(o *Options) { o.Offline = true })

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOffline))

	// A stale file is still used offline.
	require.NoError(t, os.WriteFile(c.Path(), []byte(sampleDoc), 0644))
	age(t, c.Path(), 100*time.Hour)
	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.EqualValues(t, 0, ps.hits.Load())
}

func TestCache_CorruptFreshFileRefetched(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)
	require.NoError(t, os.WriteFile(c.Path(), []byte("{truncated"), 0644))

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.EqualValues(t, 1, ps.hits.Load())
}

func TestCache_ThrottlesRepeatedFailures(t *testing.T) {
	ps := newPriceServer(t, "")
	ps.set(http.StatusBadGateway, "")
	c := newTestCache(t, ps, func(o *Options) { o.RetryInterval = time.Hour })
	require.NoError(t, os.WriteFile(c.Path(), []byte(sampleDoc), 0644))
	age(t, c.Path(), 48*time.Hour)

	for i := 0; i < 5; i++ {
		_, err := c.Get(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, ps.hits.Load(), "only the first Get reaches the network")
}

func TestCache_ConcurrentGetSharesFetch(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	ps.delay = 100 * time.Millisecond
	c := newTestCache(t, ps)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, table)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ps.hits.Load())
}

func TestCache_GetAsync(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)

	ch := c.GetAsync(context.Background())
	select {
	case res, ok := <-ch:
		require.True(t, ok)
		require.NoError(t, res.Err)
		assert.Equal(t, 6, res.Table.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("GetAsync did not deliver")
	}

	_, ok := <-ch
	assert.False(t, ok, "channel closed after one result")
}

func TestCache_GetAsyncFailure(t *testing.T) {
	ps := newPriceServer(t, "")
	ps.set(http.StatusInternalServerError, "")
	c := newTestCache(t, ps)

	res := <-c.GetAsync(context.Background())
	assert.Nil(t, res.Table)
	assert.True(t, errors.Is(res.Err, ErrUnavailable))
}

func TestCache_Refresh(t *testing.T) {
	ps := newPriceServer(t, historicalDoc)
	c := newTestCache(t, ps)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	ps.set(http.StatusOK, sampleDoc)
	table, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, table.Len())
	assert.EqualValues(t, 2, ps.hits.Load(), "refresh ignores freshness")

	// A failed refresh still hands back the cached table.
	ps.set(http.StatusInternalServerError, "")
	table, err = c.Refresh(context.Background())
	require.Error(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 6, table.Len())
}

func TestCache_Overrides(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps, func(o *Options) {
		o.Aliases = map[string]string{"4o": "gpt-4o"}
	})
	overrides := `[
	  // self-hosted
	  {"id": "local-llama", "vendor": "self-hosted", "input": 0, "output": 0,},
	  {"id": "gpt-4o", "vendor": "openai", "input": 2, "output": 8},
	]`
	require.NoError(t, os.WriteFile(c.opts.OverridesPath, []byte(overrides), 0644))

	table, err := c.Get(context.Background())
	require.NoError(t, err)

	p, ok := table.Lookup("4o")
	require.True(t, ok)
	assert.InDelta(t, 2.0, p.Input, 1e-9, "override shadows remote entry")

	_, ok = table.Lookup("local-llama")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Status().Overrides)
}

func TestCache_ClearAndStatus(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)

	st := c.Status()
	assert.False(t, st.Exists)
	assert.Zero(t, st.Entries)
	assert.Equal(t, ps.URL, st.URL)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	st = c.Status()
	assert.True(t, st.Exists)
	assert.True(t, st.Fresh)
	assert.Equal(t, 6, st.Entries)
	assert.Equal(t, "2025-06-01", st.UpdatedAt)
	assert.Positive(t, st.Size)
	assert.False(t, st.LastFetch.IsZero())

	require.NoError(t, c.Clear())
	_, err = os.Stat(c.Path())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, c.Clear(), "clearing twice is fine")

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, ps.hits.Load(), "cleared cache refetches")
}

func TestCache_MemoryOnly(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps, func(o *Options) {
		o.Path = ""
		o.OverridesPath = ""
	})

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, ps.hits.Load())
	assert.False(t, c.Status().Exists)
}

func TestCache_AlwaysRefetch(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps, func(o *Options) { o.TTL = AlwaysRefetch })

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, ps.hits.Load())
	assert.False(t, c.Status().Fresh)
}

func TestCache_ZeroTTLUsesDefault(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps, func(o *Options) { o.TTL = 0 })

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, ps.hits.Load())
	assert.Equal(t, DefaultTTL, c.Status().TTL)
	assert.True(t, c.Status().Fresh)
}

func TestCache_Watch(t *testing.T) {
	ps := newPriceServer(t, sampleDoc)
	c := newTestCache(t, ps)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changed, err := c.Watch(ctx, 20*time.Millisecond)
	require.NoError(t, err)

	// Another process rewrites the cache.
	require.NoError(t, os.WriteFile(c.Path(), []byte(historicalDoc), 0644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("no change notification")
	}

	table, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len(), "reloaded from the rewritten file")
	assert.EqualValues(t, 1, ps.hits.Load())

	cancel()
	for range changed {
	}
}

func TestCache_WatchRequiresFile(t *testing.T) {
	c := newTestCache(t, nil, func(o *Options) { o.Path = "" })
	_, err := c.Watch(context.Background(), 0)
	assert.Error(t, err)
}

func TestDefaultSingleton(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	config.ResetGlobalForTesting()
	defer config.ResetGlobalForTesting()
	ResetDefaultForTesting()
	defer ResetDefaultForTesting()

	lazy := Default()
	require.NotNil(t, lazy)
	assert.Same(t, lazy, Default(), "built once")
	assert.Contains(t, lazy.Path(), "prices.json")

	custom := NewCache(Options{Path: filepath.Join(t.TempDir(), "p.json"), Offline: true, Logger: quietLogger()})
	SetDefault(custom)
	assert.Same(t, custom, Default())
}

func TestSetDefaultBeforeFirstUse(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	config.ResetGlobalForTesting()
	defer config.ResetGlobalForTesting()
	ResetDefaultForTesting()
	defer ResetDefaultForTesting()

	custom := NewCache(Options{Path: filepath.Join(t.TempDir(), "p.json"), Offline: true, Logger: quietLogger()})
	SetDefault(custom)
	assert.Same(t, custom, Default(), "Default must not replace a cache set earlier")
}

func TestDefaultFollowsGlobalConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	config.ResetGlobalForTesting()
	defer config.ResetGlobalForTesting()
	ResetDefaultForTesting()
	defer ResetDefaultForTesting()

	cfg := config.Default()
	cfg.Pricing.CachePath = filepath.Join(dir, "elsewhere.json")
	cfg.Pricing.Offline = true
	config.SetGlobal(cfg)

	c := Default()
	assert.Equal(t, cfg.Pricing.CachePath, c.Path())
	assert.True(t, c.Status().Offline)
}
