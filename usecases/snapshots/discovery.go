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
	"context"
	"os"
	"sort"
	"time"

	"github.com/edstats/edstats/entities/diskio"
	"github.com/edstats/edstats/entities/pathguard"
	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/monitoring"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Discovery locates the most recent successful snapshot. The happy path is
// a single read of the latest-successful pointer file; whenever the
// pointer is missing, unparseable, or references a snapshot that no longer
// reconstructs as successful, Discovery falls back to scanning the date
// directories newest-first and repairs the pointer with what it found.
type Discovery struct {
	root    string
	reader  *Reader
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

func NewDiscovery(root string, reader *Reader, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) *Discovery {
	return &Discovery{
		root:    root,
		reader:  reader,
		logger:  logger,
		metrics: metrics,
	}
}

// LatestSuccessful returns the newest snapshot whose top-level status is
// success, or nil when the store holds none. An empty or missing store is
// not an error.
func (d *Discovery) LatestSuccessful(ctx context.Context) (*snapshots.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if snap := d.tryPointer(ctx); snap != nil {
		d.metrics.IncPointerHit()
		return snap, nil
	}
	return d.scanAndRepair(ctx)
}

// tryPointer resolves the pointer file to a reconstructed successful
// snapshot. Every defect on this path returns nil so the caller falls
// back to the scan; a broken pointer must never make latest lookups fail.
func (d *Discovery) tryPointer(ctx context.Context) *snapshots.Snapshot {
	path, err := pathguard.ResolveForRead(d.root, snapshots.PointerFile)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			d.logger.WithField("action", "latest_pointer").
				WithError(err).Debug("pointer not readable")
		}
		return nil
	}

	var ptr snapshots.Pointer
	if _, err := diskio.ReadJSON(path, &ptr); err != nil {
		d.logger.WithField("action", "latest_pointer").
			WithError(err).Debug("pointer not readable")
		return nil
	}
	if err := ptr.Validate(); err != nil {
		d.logger.WithField("action", "latest_pointer").
			WithError(err).Debug("pointer invalid")
		return nil
	}

	snap, err := d.reader.ReconstructSnapshot(ctx, ptr.SnapshotID)
	if err != nil || snap == nil {
		d.logger.WithField("action", "latest_pointer").
			WithField("snapshot_id", ptr.SnapshotID).
			WithError(err).Debug("pointer target not reconstructable")
		return nil
	}
	if snap.Status != snapshots.StatusSuccess {
		d.logger.WithField("action", "latest_pointer").
			WithField("snapshot_id", ptr.SnapshotID).
			WithField("status", snap.Status).
			Debug("pointer target is not a successful snapshot")
		return nil
	}
	return snap
}

// scanAndRepair walks the date directories in descending lexical order,
// which for the YYYY-MM-DD naming is newest first, and returns the first
// snapshot that reconstructs with status success. The pointer is rewritten
// to the winner so the next lookup takes the fast path again.
func (d *Discovery) scanAndRepair(ctx context.Context) (*snapshots.Snapshot, error) {
	d.metrics.IncFallbackScan()

	dirEntries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, snapshots.NewErrInternal(errors.Wrap(err, "scan snapshots root"))
	}

	ids := make([]string, 0, len(dirEntries))
	for _, ent := range dirEntries {
		if !ent.IsDir() {
			continue
		}
		if err := pathguard.ValidateSnapshotID(ent.Name()); err != nil {
			continue
		}
		ids = append(ids, ent.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		meta, err := d.reader.ReadMetadata(ctx, id)
		if err != nil {
			d.logger.WithField("action", "latest_scan").
				WithField("snapshot_id", id).
				WithError(err).Debug("skipping snapshot with unreadable metadata")
			continue
		}
		if meta == nil || meta.Status != snapshots.StatusSuccess || !meta.WriteComplete {
			continue
		}

		snap, err := d.reader.ReconstructSnapshot(ctx, id)
		if err != nil {
			d.logger.WithField("action", "latest_scan").
				WithField("snapshot_id", id).
				WithError(err).Warn("skipping snapshot that failed to reconstruct")
			continue
		}
		if snap == nil {
			continue
		}

		d.repairPointer(id)
		return snap, nil
	}
	return nil, nil
}

// repairPointer rewrites the pointer file after a fallback scan. Repair is
// an optimization for the next lookup, so a failure is logged and counted
// but never surfaced: the scan already produced a correct answer.
func (d *Discovery) repairPointer(snapshotID string) {
	path, err := pathguard.ResolveForWrite(d.root, snapshots.PointerFile)
	if err == nil {
		_, err = diskio.WriteJSONAtomic(path, snapshots.NewPointer(snapshotID, time.Now()))
	}
	if err != nil {
		d.metrics.IncPointerRepairFailure()
		d.logger.WithField("action", "pointer_repair").
			WithField("snapshot_id", snapshotID).
			WithError(err).Warn("could not repair latest-successful pointer")
		return
	}
	d.logger.WithField("action", "pointer_repair").
		WithField("snapshot_id", snapshotID).
		Info("latest-successful pointer repaired")
}
