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
	"github.com/edstats/edstats/usecases/config"
	"github.com/edstats/edstats/usecases/monitoring"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Store bundles the writer, reader, and discovery halves of the snapshot
// store behind one handle. All three share the same root directory and
// the same cache, so a write immediately affects subsequent reads.
type Store struct {
	*Writer
	*Reader
	*Discovery

	cache *Cache
}

// New builds a store from the validated config. The snapshots root is not
// created eagerly: reads against a root that does not exist yet behave
// like reads against an empty store, and the first write creates it.
func New(cfg config.Config, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "snapshot store")
	}

	cache := NewCache(cfg.CacheTTL, cfg.ListCacheTTL, metrics)
	reader := NewReader(cfg.SnapshotsPath, cfg.Versions, cfg.MaxConcurrentReads,
		cache, logger, metrics)
	writer := NewWriter(cfg.SnapshotsPath, cfg.Versions, cfg.DataSource,
		cache, logger, metrics)
	discovery := NewDiscovery(cfg.SnapshotsPath, reader, logger, metrics)

	return &Store{
		Writer:    writer,
		Reader:    reader,
		Discovery: discovery,
		cache:     cache,
	}, nil
}

// InvalidateAll drops every cached snapshot and listing, forcing the next
// reads back to disk. Meant for operators poking at the store directory
// out of band.
func (s *Store) InvalidateAll() {
	s.cache.InvalidateAll()
}
