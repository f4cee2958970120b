//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

package snapshots

import (
	"strings"
	"time"

	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/monitoring"

	gocache "github.com/patrickmn/go-cache"
)

const (
	snapshotKeyPrefix = "snapshot/"
	listKeyPrefix     = "list/"

	_CacheCleanupInterval = 10 * time.Minute
)

// Cache is the explicit, injectable read cache of the store. Reconstructed
// snapshots and listing results live under separate TTLs; the writer and
// the delete operation invalidate explicitly, everything else expires
// passively. Every cached value is reproducible by re-reading disk, so the
// cache is an optimization, never a correctness dependency. A nil *Cache
// is valid and means caching is off.
type Cache struct {
	entries     *gocache.Cache
	snapshotTTL time.Duration
	listTTL     time.Duration
	metrics     *monitoring.PrometheusMetrics
}

// NewCache builds a cache service. A TTL of zero or below disables the
// respective cache section.
func NewCache(snapshotTTL, listTTL time.Duration,
	metrics *monitoring.PrometheusMetrics,
) *Cache {
	return &Cache{
		entries:     gocache.New(gocache.NoExpiration, _CacheCleanupInterval),
		snapshotTTL: snapshotTTL,
		listTTL:     listTTL,
		metrics:     metrics,
	}
}

func (c *Cache) snapshotsEnabled() bool {
	return c != nil && c.snapshotTTL > 0
}

func (c *Cache) listsEnabled() bool {
	return c != nil && c.listTTL > 0
}

// GetSnapshot returns the cached reconstruction for a snapshot id. Callers
// must treat the result as immutable; it is shared between readers.
func (c *Cache) GetSnapshot(id string) (*snapshots.Snapshot, bool) {
	if !c.snapshotsEnabled() {
		return nil, false
	}

	val, ok := c.entries.Get(snapshotKeyPrefix + id)
	if !ok {
		c.metrics.IncCacheMiss(monitoring.CacheSnapshot)
		return nil, false
	}
	snap, ok := val.(*snapshots.Snapshot)
	if !ok {
		return nil, false
	}
	c.metrics.IncCacheHit(monitoring.CacheSnapshot)
	return snap, true
}

func (c *Cache) SetSnapshot(id string, snap *snapshots.Snapshot) {
	if !c.snapshotsEnabled() || snap == nil {
		return
	}
	c.entries.Set(snapshotKeyPrefix+id, snap, c.snapshotTTL)
}

// GetList returns a cached listing result. The key must encode the full
// query (limit plus filters), see ListFilters.cacheKey.
func (c *Cache) GetList(key string) ([]*snapshots.Metadata, bool) {
	if !c.listsEnabled() {
		return nil, false
	}

	val, ok := c.entries.Get(listKeyPrefix + key)
	if !ok {
		c.metrics.IncCacheMiss(monitoring.CacheList)
		return nil, false
	}
	metas, ok := val.([]*snapshots.Metadata)
	if !ok {
		return nil, false
	}
	c.metrics.IncCacheHit(monitoring.CacheList)
	return metas, true
}

func (c *Cache) SetList(key string, metas []*snapshots.Metadata) {
	if !c.listsEnabled() {
		return
	}
	c.entries.Set(listKeyPrefix+key, metas, c.listTTL)
}

// InvalidateSnapshot drops the cached reconstruction of one snapshot id.
func (c *Cache) InvalidateSnapshot(id string) {
	if c == nil {
		return
	}
	c.entries.Delete(snapshotKeyPrefix + id)
}

// InvalidateList drops every cached listing, whatever its query key.
func (c *Cache) InvalidateList() {
	if c == nil {
		return
	}
	for key := range c.entries.Items() {
		if strings.HasPrefix(key, listKeyPrefix) {
			c.entries.Delete(key)
		}
	}
}

// InvalidateAll empties the cache completely.
func (c *Cache) InvalidateAll() {
	if c == nil {
		return
	}
	c.entries.Flush()
}
