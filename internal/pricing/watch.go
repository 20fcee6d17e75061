// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of file events (temp write, chmod, rename).
const DefaultDebounce = 200 * time.Millisecond

// Watch observes the cache file and the overrides file. When either changes,
// for example after another process refreshed the prices, the in-memory table
// is dropped and a value is sent on the returned channel. The channel is
// closed once ctx is done.
func (c *Cache) Watch(ctx context.Context, debounce time.Duration) (<-chan struct{}, error) {
	if c.opts.Path == "" {
		return nil, errors.New("watch: cache has no file")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	targets := map[string]bool{filepath.Clean(c.opts.Path): true}
	dirs := map[string]bool{filepath.Dir(c.opts.Path): true}
	if c.opts.OverridesPath != "" {
		targets[filepath.Clean(c.opts.OverridesPath)] = true
		dirs[filepath.Dir(c.opts.OverridesPath)] = true
	}
	// Watch directories, not files: atomic renames replace the inode.
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch: %w", err)
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	changed := make(chan struct{}, 1)
	go c.watchLoop(ctx, w, targets, debounce, changed)
	return changed, nil
}

func (c *Cache) watchLoop(ctx context.Context, w *fsnotify.Watcher, targets map[string]bool, debounce time.Duration, changed chan<- struct{}) {
	defer close(changed)
	defer w.Close()

	// Stopped timer; armed by the first relevant event.
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			c.Invalidate()
			c.logger.Debug("price files changed on disk, table invalidated")
			select {
			case changed <- struct{}{}:
			default:
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Warn("price file watcher error", "error", err)
		}
	}
}
