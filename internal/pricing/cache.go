// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/jeranaias/tokencost/internal/config"
	"github.com/jeranaias/tokencost/internal/util"
)

const (
	// DefaultTTL is how long a cached document is considered fresh.
	DefaultTTL = 24 * time.Hour

	// AlwaysRefetch as Options.TTL treats every cached copy as stale. A stale
	// copy is still the fallback when the fetch fails.
	AlwaysRefetch time.Duration = -1

	// DefaultRetryInterval is the minimum spacing between fetch attempts
	// made on behalf of Get after a failed fetch.
	DefaultRetryInterval = time.Minute
)

// =============================================================================
// CACHE
// =============================================================================

// Options configures a Cache.
type Options struct {
	// URL of the price document.
	URL string
	// Path of the cached document. Empty keeps the table in memory only.
	Path string
	// OverridesPath holds hand-maintained entries merged over the remote table.
	OverridesPath string
	// Aliases maps short names to price table ids.
	Aliases map[string]string

	// TTL defaults to DefaultTTL; AlwaysRefetch disables freshness.
	TTL           time.Duration
	Timeout       time.Duration
	RetryInterval time.Duration
	Offline       bool

	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
	// Now is the clock used for freshness checks.
	Now func() time.Time
}

// Result is delivered by GetAsync.
type Result struct {
	Table *Table
	Err   error
}

// Status describes the cache for display.
type Status struct {
	URL       string        `json:"url"`
	Path      string        `json:"path"`
	Exists    bool          `json:"exists"`
	Size      int64         `json:"size"`
	ModTime   time.Time     `json:"mod_time"`
	Age       time.Duration `json:"age"`
	TTL       time.Duration `json:"ttl"`
	Fresh     bool          `json:"fresh"`
	Offline   bool          `json:"offline"`
	Entries   int           `json:"entries"`
	Overrides int           `json:"overrides"`
	UpdatedAt string        `json:"updated_at,omitempty"`
	LastFetch time.Time     `json:"last_fetch,omitempty"`
	LastError string        `json:"last_error,omitempty"`
}

// Cache loads the price table lazily, persisting it to disk and refreshing
// it once the copy on disk is older than the TTL. When a refresh fails, the
// stale copy is served instead.
type Cache struct {
	opts    Options
	fetcher *Fetcher
	logger  *slog.Logger
	now     func() time.Time

	group   singleflight.Group
	limiter *rate.Limiter

	mu        sync.RWMutex
	table     *Table
	loadedMod time.Time // mtime of the file the table was read from
	lastFetch time.Time
	lastErr   error
}

// NewCache creates a cache. Nothing is read or fetched until first use.
func NewCache(opts Options) *Cache {
	switch {
	case opts.TTL == 0:
		opts.TTL = DefaultTTL
	case opts.TTL < 0:
		opts.TTL = AlwaysRefetch
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Cache{
		opts: opts,
		fetcher: &Fetcher{
			URL:       opts.URL,
			Timeout:   opts.Timeout,
			UserAgent: opts.UserAgent,
			Client:    opts.HTTPClient,
		},
		logger:  logger.With("component", "pricing"),
		now:     now,
		limiter: rate.NewLimiter(rate.Every(opts.RetryInterval), 1),
	}
}

// FromConfig builds a cache from the [pricing] section of cfg.
func FromConfig(cfg *config.Config) *Cache {
	opts := Options{
		URL:     cfg.Pricing.SourceURL(),
		Aliases: cfg.Pricing.Aliases,
		TTL:     cfg.Pricing.TTL(),
		Timeout: cfg.Pricing.Timeout(),
		Offline: cfg.Pricing.Offline,
	}
	if p, err := cfg.PriceCachePath(); err == nil {
		opts.Path = p
	} else {
		slog.Warn("price cache disabled", "error", err)
	}
	if p, err := cfg.OverridesPath(); err == nil {
		opts.OverridesPath = p
	}
	return NewCache(opts)
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.opts.Path
}

// Get returns the price table, loading it from disk or fetching it as needed.
//
// It fails with ErrUnavailable only when no fetch succeeded and no cached
// copy exists.
func (c *Cache) Get(ctx context.Context) (*Table, error) {
	if t := c.memoryFresh(); t != nil {
		return t, nil
	}
	v, err, _ := c.group.Do("load", func() (interface{}, error) {
		return c.load(ctx, false)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Table), nil
}

// GetAsync runs Get in the background. The channel receives exactly one
// Result and is then closed.
func (c *Cache) GetAsync(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		t, err := c.Get(ctx)
		ch <- Result{Table: t, Err: err}
	}()
	return ch
}

// Refresh fetches the document regardless of freshness. On failure the
// previously cached table, if any, is still returned alongside the error.
func (c *Cache) Refresh(ctx context.Context) (*Table, error) {
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.load(ctx, true)
	})
	t, _ := v.(*Table)
	return t, err
}

// Invalidate drops the in-memory table so the next Get re-reads the file.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.table = nil
	c.loadedMod = time.Time{}
	c.mu.Unlock()
}

// Clear removes the cached document from disk and memory.
func (c *Cache) Clear() error {
	c.Invalidate()
	if c.opts.Path == "" {
		return nil
	}
	if err := os.Remove(c.opts.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove price cache: %w", err)
	}
	_ = os.Remove(c.lockPath())
	return nil
}

// Status reports the state of the cache without fetching.
func (c *Cache) Status() Status {
	s := Status{
		URL:     c.opts.URL,
		Path:    c.opts.Path,
		TTL:     c.opts.TTL,
		Offline: c.opts.Offline,
	}
	if s.TTL < 0 {
		s.TTL = 0
	}

	c.mu.RLock()
	t := c.table
	s.LastFetch = c.lastFetch
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	if c.opts.Path != "" {
		if info, err := os.Stat(c.opts.Path); err == nil {
			s.Exists = true
			s.Size = info.Size()
			s.ModTime = info.ModTime()
			s.Age = c.now().Sub(info.ModTime())
			s.Fresh = c.fresh(s.Age)
			if t == nil {
				if data, err := os.ReadFile(c.opts.Path); err == nil {
					t, _ = Parse(data)
				}
			}
		}
	}
	if t != nil {
		s.Entries = t.Len()
		s.UpdatedAt = t.UpdatedAt()
	}
	if overrides, err := LoadOverrides(c.opts.OverridesPath); err == nil {
		s.Overrides = len(overrides)
	}
	return s
}

// =============================================================================
// LOADING
// =============================================================================

// fresh reports whether a copy of the given age is within the TTL.
func (c *Cache) fresh(age time.Duration) bool {
	return c.opts.TTL > 0 && age < c.opts.TTL
}

// memoryFresh returns the in-memory table if the file it came from is within TTL.
func (c *Cache) memoryFresh() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return nil
	}
	stamp := c.loadedMod
	if stamp.IsZero() {
		// Fetched but never persisted.
		stamp = c.lastFetch
	}
	if !stamp.IsZero() && c.fresh(c.now().Sub(stamp)) {
		return c.table
	}
	return nil
}

func (c *Cache) load(ctx context.Context, force bool) (*Table, error) {
	info, statErr := c.stat()

	if !force && statErr == nil && c.fresh(c.now().Sub(info.ModTime())) {
		t, err := c.readFile(info.ModTime())
		if err == nil {
			return t, nil
		}
		c.logger.Warn("cached prices unreadable, refetching", "path", c.opts.Path, "error", err)
	}

	t, fetchErr := c.fetch(ctx, force)
	if fetchErr == nil {
		return t, nil
	}

	c.mu.Lock()
	c.lastErr = fetchErr
	c.mu.Unlock()

	// Stale fallback.
	if info, err := c.stat(); err == nil {
		if t, err := c.readFile(info.ModTime()); err == nil {
			level := slog.LevelWarn
			if errors.Is(fetchErr, ErrThrottled) || errors.Is(fetchErr, ErrOffline) {
				level = slog.LevelDebug
			}
			c.logger.Log(ctx, level, "using stale cached prices",
				"path", c.opts.Path,
				"age", c.now().Sub(info.ModTime()).Round(time.Minute),
				"error", fetchErr)
			if force {
				return t, fetchErr
			}
			return t, nil
		}
	}
	if mem := c.memoryTable(); mem != nil {
		if force {
			return mem, fetchErr
		}
		return mem, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, fetchErr)
}

func (c *Cache) fetch(ctx context.Context, force bool) (*Table, error) {
	if c.opts.Offline {
		return nil, ErrOffline
	}
	if c.opts.URL == "" {
		return nil, errors.New("no price URL configured")
	}
	// Every attempt spends a token; only attempts following a failure wait for one.
	allowed := c.limiter.Allow()
	c.mu.RLock()
	failing := c.lastErr != nil
	c.mu.RUnlock()
	if !force && failing && !allowed {
		return nil, ErrThrottled
	}

	c.logger.Debug("fetching prices", "url", c.opts.URL)
	start := c.now()
	raw, doc, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	var modTime time.Time
	if c.opts.Path != "" {
		if err := c.persist(raw); err != nil {
			// The fetched table is still usable for this process.
			c.logger.Warn("could not write price cache", "path", c.opts.Path, "error", err)
		} else if info, err := os.Stat(c.opts.Path); err == nil {
			modTime = info.ModTime()
		}
	}

	t := c.decorate(NewTable(doc.UpdatedAt, doc.Prices))
	c.mu.Lock()
	c.table = t
	c.loadedMod = modTime
	c.lastFetch = c.now()
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Debug("prices fetched", "entries", t.Len(), "elapsed", c.now().Sub(start))
	return t, nil
}

// persist writes the document under a cross-process lock.
func (c *Cache) persist(raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.opts.Path), 0755); err != nil {
		return err
	}
	unlock, err := lockFile(c.lockPath())
	if err != nil {
		return err
	}
	defer unlock()
	return util.AtomicWriteFile(c.opts.Path, raw, 0644)
}

func (c *Cache) readFile(modTime time.Time) (*Table, error) {
	data, err := os.ReadFile(c.opts.Path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, err
	}
	t = c.decorate(t)

	c.mu.Lock()
	c.table = t
	c.loadedMod = modTime
	c.mu.Unlock()
	return t, nil
}

// decorate merges local overrides and aliases into a freshly parsed table.
func (c *Cache) decorate(t *Table) *Table {
	overrides, err := LoadOverrides(c.opts.OverridesPath)
	if err != nil {
		c.logger.Warn("ignoring price overrides", "path", c.opts.OverridesPath, "error", err)
	}
	return t.WithOverrides(overrides).WithAliases(c.opts.Aliases)
}

func (c *Cache) memoryTable() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

func (c *Cache) stat() (os.FileInfo, error) {
	if c.opts.Path == "" {
		return nil, os.ErrNotExist
	}
	return os.Stat(c.opts.Path)
}

func (c *Cache) lockPath() string {
	return c.opts.Path + ".lock"
}


// =============================================================================
// SINGLETON
// =============================================================================

var (
	defaultCache     *Cache
	defaultCacheOnce sync.Once
	defaultCacheMu   sync.RWMutex
)

// Default returns the process-wide cache, built from config.Global() on first use.
func Default() *Cache {
	defaultCacheOnce.Do(func() {
		c := FromConfig(config.Global())
		defaultCacheMu.Lock()
		if defaultCache == nil {
			defaultCache = c
		}
		defaultCacheMu.Unlock()
	})

	defaultCacheMu.RLock()
	defer defaultCacheMu.RUnlock()
	return defaultCache
}

// SetDefault replaces the process-wide cache. Default will not build one
// from config afterwards.
func SetDefault(c *Cache) {
	defaultCacheOnce.Do(func() {})
	defaultCacheMu.Lock()
	defer defaultCacheMu.Unlock()
	defaultCache = c
}

// ResetDefaultForTesting clears the process-wide cache.
func ResetDefaultForTesting() {
	defaultCacheMu.Lock()
	defer defaultCacheMu.Unlock()
	defaultCache = nil
	defaultCacheOnce = sync.Once{}
}
