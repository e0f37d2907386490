// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before changed datasets are
// invalidated.
const DefaultDebounce = 250 * time.Millisecond

// Watcher invalidates cache entries whose dataset directory changed.
//
// # Description
//
// The root and every dataset directory are watched with fsnotify. Events
// are mapped to the dataset they belong to and collected until no event has
// arrived for the debounce window, then each touched dataset is invalidated
// once. New dataset directories are added to the watch as they appear.
type Watcher struct {
	cache    *Cache
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	changes chan string
	// overflow is set when a change could not be queued; the next flush
	// then invalidates every dataset.
	overflow atomic.Bool
	done     chan struct{}
	stop     sync.Once
	wg       sync.WaitGroup

	// OnInvalidate, when set, is called after each debounced batch. A nil
	// slice means every dataset was invalidated.
	OnInvalidate func(names []string)
}

// NewWatcher creates a watcher for the cache's catalog root. A zero debounce
// uses DefaultDebounce.
func NewWatcher(cache *Cache, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		cache:    cache,
		watcher:  fw,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan string, 256),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. It returns after the initial directories are
// registered; events are processed until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	root := w.cache.Catalog().Root()
	if err := w.watcher.Add(root); err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("list %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.watcher.Add(filepath.Join(root, e.Name())); err != nil {
				w.logger.Warn("dataset directory not watched", "dataset", e.Name(), "error", err)
			}
		}
	}

	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	w.logger.Info("watching datasets", "root", root, "debounce", w.debounce)
	return nil
}

// Stop ends watching and waits for the background goroutines.
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := w.cache.Catalog().datasetOf(event.Name)
			if name == "" {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.watcher.Add(event.Name)
				}
			}
			w.notify(name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("dataset watcher error", "error", err)
		}
	}
}

// notify queues a changed dataset for the debounce loop. A full queue
// escalates to invalidating the whole cache at the next flush.
func (w *Watcher) notify(name string) {
	select {
	case w.changes <- name:
	default:
		if !w.overflow.Swap(true) {
			w.logger.Warn("dataset change queue full, invalidating all datasets", "dataset", name)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if w.overflow.Swap(false) {
			w.cache.InvalidateAll()
			clear(pending)
			if w.OnInvalidate != nil {
				w.OnInvalidate(nil)
			}
		}
		if len(pending) > 0 {
			names := make([]string, 0, len(pending))
			for name := range pending {
				w.cache.Invalidate(name)
				names = append(names, name)
			}
			clear(pending)
			if w.OnInvalidate != nil {
				w.OnInvalidate(names)
			}
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case name := <-w.changes:
			pending[name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}
