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

package monitoring

import "time"

const (
	OpWrite = "write"
	OpRead  = "read"

	CacheSnapshot = "snapshot"
	CacheList     = "list"
)

// Record a finished snapshot write
func (pm *PrometheusMetrics) ObserveSnapshotWrite(status string, took time.Duration) {
	if pm == nil {
		return
	}

	pm.SnapshotWriteDurations.WithLabelValues(status).
		Observe(float64(took.Milliseconds()))
}

// Record entity records that could not be persisted
func (pm *PrometheusMetrics) AddEntityFailures(n int) {
	if pm == nil || n <= 0 {
		return
	}

	pm.SnapshotEntityFailures.Add(float64(n))
}

// Record bytes moved into the store
func (pm *PrometheusMetrics) AddBytesWritten(n int64) {
	if pm == nil || n <= 0 {
		return
	}

	pm.SnapshotDataTransferred.WithLabelValues(OpWrite).Add(float64(n))
}

// Record bytes moved out of the store
func (pm *PrometheusMetrics) AddBytesRead(n int64) {
	if pm == nil || n <= 0 {
		return
	}

	pm.SnapshotDataTransferred.WithLabelValues(OpRead).Add(float64(n))
}

// Record a latest-successful lookup answered by the pointer file
func (pm *PrometheusMetrics) IncPointerHit() {
	if pm == nil {
		return
	}

	pm.LatestPointerHits.Inc()
}

// Record a latest-successful lookup that needed a directory scan
func (pm *PrometheusMetrics) IncFallbackScan() {
	if pm == nil {
		return
	}

	pm.LatestFallbackScans.Inc()
}

// Record a pointer repair that failed
func (pm *PrometheusMetrics) IncPointerRepairFailure() {
	if pm == nil {
		return
	}

	pm.LatestPointerRepairFailures.Inc()
}

// Record a cache hit for the given cache
func (pm *PrometheusMetrics) IncCacheHit(cache string) {
	if pm == nil {
		return
	}

	pm.SnapshotCacheHits.WithLabelValues(cache).Inc()
}

// Record a cache miss for the given cache
func (pm *PrometheusMetrics) IncCacheMiss(cache string) {
	if pm == nil {
		return
	}

	pm.SnapshotCacheMisses.WithLabelValues(cache).Inc()
}

// Record an uncached listing walk
func (pm *PrometheusMetrics) ObserveSnapshotList(took time.Duration) {
	if pm == nil {
		return
	}

	pm.SnapshotListDurations.Observe(float64(took.Milliseconds()))
}

// Record a snapshot removal
func (pm *PrometheusMetrics) IncSnapshotDelete() {
	if pm == nil {
		return
	}

	pm.SnapshotDeletes.Inc()
}
