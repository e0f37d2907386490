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
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Loads         int64 `json:"loads"`
	Invalidations int64 `json:"invalidations"`
	Entries       int   `json:"entries"`
}

// Cache holds parsed datasets keyed by name.
//
// # Description
//
// A miss loads the dataset from the catalog. Concurrent misses for the same
// name share one load through singleflight. Entries stay until Invalidate
// is called, typically by a Watcher.
//
// # Thread Safety
//
// Safe for concurrent use. Returned datasets are shared and must not be
// modified.
type Cache struct {
	catalog *Catalog
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Dataset
	// generation is bumped by every invalidation so a load that raced with
	// an invalidation is not stored.
	generation map[string]uint64
	flight     singleflight.Group

	hits          atomic.Int64
	misses        atomic.Int64
	loads         atomic.Int64
	invalidations atomic.Int64

	// OnLoad, when set, observes every load from disk.
	OnLoad func(name string, err error)
}

// NewCache creates an empty cache over catalog.
func NewCache(catalog *Catalog, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		catalog:    catalog,
		logger:     logger,
		entries:    make(map[string]*Dataset),
		generation: make(map[string]uint64),
	}
}

// Catalog returns the catalog backing the cache.
func (c *Cache) Catalog() *Catalog {
	return c.catalog
}

// Get returns the named dataset, loading it on a miss. The second return
// value reports whether the dataset was served from memory.
func (c *Cache) Get(ctx context.Context, name string) (*Dataset, bool, error) {
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	ds, ok := c.entries[name]
	gen := c.generation[name]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return ds, true, nil
	}
	c.misses.Add(1)

	ch := c.flight.DoChan(name, func() (any, error) {
		c.loads.Add(1)
		ds, err := c.catalog.Load(name)
		if c.OnLoad != nil {
			c.OnLoad(name, err)
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation[name] == gen {
			c.entries[name] = ds
		}
		c.mu.Unlock()
		c.logger.Info("dataset loaded",
			"dataset", name,
			"points", ds.NumPoints(),
			"attributes", len(ds.Columns),
			"projection", ds.HasProjection(),
		)
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("load dataset %q: %w", name, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*Dataset), false, nil
	}
}

// Invalidate drops the named dataset so the next Get reloads it.
func (c *Cache) Invalidate(name string) {
	name = NormalizeName(name)
	c.mu.Lock()
	_, had := c.entries[name]
	delete(c.entries, name)
	c.generation[name]++
	c.mu.Unlock()
	c.flight.Forget(name)
	c.invalidations.Add(1)
	if had {
		c.logger.Info("dataset invalidated", "dataset", name)
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	c.mu.Unlock()
	for _, name := range names {
		c.Invalidate(name)
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Loads:         c.loads.Load(),
		Invalidations: c.invalidations.Load(),
		Entries:       n,
	}
}
