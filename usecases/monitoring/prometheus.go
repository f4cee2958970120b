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

// Package monitoring exposes the store's prometheus metrics. Components
// receive a *PrometheusMetrics which may be nil; every method tolerates
// the nil receiver so wiring metrics stays optional.
package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	// SnapshotWriteDurations tracks complete write calls end to end,
	// labeled by the snapshot status the caller declared.
	SnapshotWriteDurations *prometheus.HistogramVec

	// SnapshotEntityFailures counts entity records that could not be
	// persisted, across all snapshots.
	SnapshotEntityFailures prometheus.Counter

	// SnapshotDataTransferred counts bytes moved to and from the store,
	// labeled by operation (write or read).
	SnapshotDataTransferred *prometheus.CounterVec

	// LatestPointerHits counts latest-successful lookups answered by a
	// valid pointer file without scanning.
	LatestPointerHits prometheus.Counter

	// LatestFallbackScans counts full directory scans, which only happen
	// when the pointer file is missing, corrupt, or lying.
	LatestFallbackScans prometheus.Counter

	// LatestPointerRepairFailures counts pointer rewrites that failed
	// after a fallback scan. Repairs are best effort, so failures only
	// ever show up here and in logs.
	LatestPointerRepairFailures prometheus.Counter

	// SnapshotCacheHits and SnapshotCacheMisses are labeled by cache
	// (snapshot or list).
	SnapshotCacheHits   *prometheus.CounterVec
	SnapshotCacheMisses *prometheus.CounterVec

	// SnapshotListDurations tracks uncached listing calls, which walk
	// every snapshot directory.
	SnapshotListDurations prometheus.Histogram

	SnapshotDeletes prometheus.Counter
}

var (
	metrics  *PrometheusMetrics
	initOnce sync.Once
)

// GetMetrics returns the process-wide metrics instance, registered on the
// default prometheus registerer.
func GetMetrics() *PrometheusMetrics {
	initOnce.Do(func() {
		metrics = NewPrometheusMetrics(prometheus.DefaultRegisterer)
	})
	return metrics
}

// NewPrometheusMetrics builds a fresh metrics instance registered on r.
// Tests pass their own registry to keep counters isolated; passing nil
// registers nothing but still yields usable metrics.
func NewPrometheusMetrics(r prometheus.Registerer) *PrometheusMetrics {
	if r == nil {
		r = noop
	}

	m := &PrometheusMetrics{
		SnapshotWriteDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "snapshot_write_durations_ms",
			Help:    "Duration of complete snapshot writes in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"status"}),
		SnapshotEntityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapshot_entity_failures_total",
			Help: "Number of entity records that failed to persist",
		}),
		SnapshotDataTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapshot_data_transferred_bytes_total",
			Help: "Bytes written to and read from the snapshot store",
		}, []string{"operation"}),
		LatestPointerHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapshot_latest_pointer_hits_total",
			Help: "Latest-successful lookups resolved by the pointer file",
		}),
		LatestFallbackScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapshot_latest_fallback_scans_total",
			Help: "Latest-successful lookups that fell back to a directory scan",
		}),
		LatestPointerRepairFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapshot_latest_pointer_repair_failures_total",
			Help: "Pointer repairs after a fallback scan that did not stick",
		}),
		SnapshotCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapshot_cache_hits_total",
			Help: "Read cache hits by cache",
		}, []string{"cache"}),
		SnapshotCacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapshot_cache_misses_total",
			Help: "Read cache misses by cache",
		}, []string{"cache"}),
		SnapshotListDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapshot_list_durations_ms",
			Help:    "Duration of uncached snapshot listings in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SnapshotDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapshot_deletes_total",
			Help: "Snapshots removed from the store",
		}),
	}

	r.MustRegister(
		m.SnapshotWriteDurations,
		m.SnapshotEntityFailures,
		m.SnapshotDataTransferred,
		m.LatestPointerHits,
		m.LatestFallbackScans,
		m.LatestPointerRepairFailures,
		m.SnapshotCacheHits,
		m.SnapshotCacheMisses,
		m.SnapshotListDurations,
		m.SnapshotDeletes,
	)
	return m
}
