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
	"time"

	"github.com/edstats/edstats/entities/diskio"
	"github.com/edstats/edstats/entities/pathguard"
	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/config"
	"github.com/edstats/edstats/usecases/monitoring"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Writer persists snapshots. At most one writer may be active per as-of
// date at any time; that is an invariant the refresh orchestration
// upstream enforces, not this store. Two concurrent writes to the same
// date are undefined behavior.
type Writer struct {
	root       string
	versions   config.Versions
	dataSource string
	cache      *Cache
	logger     logrus.FieldLogger
	metrics    *monitoring.PrometheusMetrics
}

func NewWriter(root string, versions config.Versions, dataSource string,
	cache *Cache, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) *Writer {
	return &Writer{
		root:       root,
		versions:   versions,
		dataSource: dataSource,
		cache:      cache,
		logger:     logger,
		metrics:    metrics,
	}
}

type WriteOptions struct {
	// AsOfDateOverride addresses the write to a different date than the
	// snapshot payload declares, for back-dated closing-period data.
	AsOfDateOverride string
}

// WriteResult summarizes one completed write for the caller's bookkeeping.
type WriteResult struct {
	SnapshotID         string
	Status             snapshots.Status
	SuccessfulEntities []string
	FailedEntities     []string
	Errors             []snapshots.EntityError
	HasAggregate       bool
	BytesWritten       int64
	Took               time.Duration
}

// Write persists the snapshot under its as-of date, overwriting any
// previous snapshot for that date wholesale. Entity records are written in
// isolation: one failing record is captured as a structured error and a
// failed manifest entry without aborting its siblings. The aggregate
// artifact has no such isolation; when supplied, a failure to persist it
// fails the whole write. The asymmetry comes from the aggregate being a
// single cross-entity document with no meaningful partial form.
//
// File order is entity files, aggregate, manifest, metadata. Metadata goes
// last with WriteComplete set so its presence certifies the directory is
// not a torn intermediate state. The caller declares the top-level status,
// but a declared success is demoted to partial when any record failed to
// persist: the store never reports success against a manifest that shows
// failures. When the recorded status is success, the latest-successful
// pointer is atomically rewritten and the read caches for this id and for
// listings are invalidated; partial and failed writes touch neither.
func (w *Writer) Write(ctx context.Context, snap *snapshots.Snapshot,
	agg *snapshots.AggregateArtifact, opts WriteOptions,
) (*WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("empty snapshot")
	}
	start := time.Now()

	if err := snap.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid snapshot")
	}

	asOf := opts.AsOfDateOverride
	if asOf == "" {
		asOf = snap.AsOfDate
	}
	if asOf == "" {
		asOf = snap.ID
	}
	if asOf == "" {
		return nil, errors.New("snapshot misses an as-of date")
	}
	if err := pathguard.ValidateSnapshotID(asOf); err != nil {
		return nil, err
	}
	snap.ID = asOf
	snap.AsOfDate = asOf

	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	if snap.SchemaVersion == "" {
		snap.SchemaVersion = w.versions.Schema
	}
	if snap.CalculationVersion == "" {
		snap.CalculationVersion = w.versions.Calculation
	}
	if snap.RankingVersion == "" {
		snap.RankingVersion = w.versions.Ranking
	}
	if snap.DataSource == "" {
		snap.DataSource = w.dataSource
	}

	dir, err := pathguard.ResolveForWrite(w.root, asOf)
	if err != nil {
		return nil, err
	}
	// last writer wins, no merge: leftovers of a previous write to the
	// same date must not shine through the new snapshot
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrapf(err, "clear previous snapshot %q", asOf)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create snapshot directory %q", asOf)
	}

	writeErrors := append([]snapshots.EntityError{}, snap.Errors...)
	entries := make([]snapshots.ManifestEntry, 0, len(snap.Entities))
	successIDs := []string{}
	failedIDs := []string{}
	var bytesWritten int64

	for i := range snap.Entities {
		rec := &snap.Entities[i]
		entry, n, entErr := w.writeEntity(dir, rec, snap.Errors)
		bytesWritten += n
		if entErr != nil {
			writeErrors = append(writeErrors, *entErr)
			failedIDs = append(failedIDs, rec.EntityID)
			w.metrics.AddEntityFailures(1)
			w.logger.WithField("action", "write_entity").
				WithField("snapshot_id", asOf).
				WithField("entity_id", rec.EntityID).
				WithField("operation", entErr.Operation).
				Warn(entErr.Message)
		} else if rec.Status == snapshots.RecordSuccess {
			successIDs = append(successIDs, rec.EntityID)
		} else {
			// upstream marked the record failed; its file still lands so
			// the audit trail keeps the payload shape
			failedIDs = append(failedIDs, rec.EntityID)
		}
		entries = append(entries, entry)
	}

	w.stampFileInfos(dir, entries)

	// a snapshot declared successful must have every record on disk; when
	// the storage layer failed some, the recorded status is partial no
	// matter what the caller declared
	status := snap.Status
	if status == snapshots.StatusSuccess && len(failedIDs) > 0 {
		status = snapshots.StatusPartial
		w.logger.WithField("action", "snapshot_write").
			WithField("snapshot_id", asOf).
			WithField("failed_entities", len(failedIDs)).
			Warn("declared successful but some entities failed to persist, recording partial")
	}

	hasAggregate := false
	var aggregateSize int64
	if agg != nil {
		n, err := w.writeAggregate(dir, asOf, snap, agg)
		if err != nil {
			return nil, err
		}
		bytesWritten += n
		aggregateSize = n
		hasAggregate = true
	}

	manifest := &snapshots.Manifest{
		SnapshotID:         asOf,
		GeneratedAt:        time.Now().UTC(),
		TotalEntities:      len(entries),
		SuccessfulEntities: len(successIDs),
		FailedEntities:     len(failedIDs),
		Entities:           entries,
		HasAggregate:       hasAggregate,
		AggregateSizeBytes: aggregateSize,
	}
	manifestPath, err := pathguard.ResolveForWrite(dir, snapshots.ManifestFile)
	if err != nil {
		return nil, err
	}
	n, err := diskio.WriteJSONAtomic(manifestPath, manifest)
	if err != nil {
		return nil, errors.Wrapf(err, "write manifest of snapshot %q", asOf)
	}
	bytesWritten += n

	meta := &snapshots.Metadata{
		SnapshotID:           asOf,
		CreatedAt:            snap.CreatedAt,
		AsOfDate:             asOf,
		SchemaVersion:        snap.SchemaVersion,
		CalculationVersion:   snap.CalculationVersion,
		RankingVersion:       snap.RankingVersion,
		Status:               status,
		ConfiguredEntities:   snap.EntityIDs(),
		SuccessfulEntities:   successIDs,
		FailedEntities:       failedIDs,
		Errors:               snapshots.RawErrors(writeErrors),
		EntityErrors:         writeErrors,
		ProcessingDurationMs: time.Since(start).Milliseconds(),
		DataSource:           snap.DataSource,
		WriteComplete:        true,
	}
	metaPath, err := pathguard.ResolveForWrite(dir, snapshots.MetadataFile)
	if err != nil {
		return nil, err
	}
	n, err = diskio.WriteJSONAtomic(metaPath, meta)
	if err != nil {
		return nil, errors.Wrapf(err, "write metadata of snapshot %q", asOf)
	}
	bytesWritten += n

	if status == snapshots.StatusSuccess {
		if err := w.updatePointer(asOf); err != nil {
			return nil, errors.Wrapf(err, "update latest-successful pointer to %q", asOf)
		}
		w.cache.InvalidateSnapshot(asOf)
		w.cache.InvalidateList()
	}

	took := time.Since(start)
	w.metrics.ObserveSnapshotWrite(string(status), took)
	w.metrics.AddBytesWritten(bytesWritten)
	w.logger.WithField("action", "snapshot_write").
		WithField("snapshot_id", asOf).
		WithField("status", status).
		WithField("successful_entities", len(successIDs)).
		WithField("failed_entities", len(failedIDs)).
		WithField("took", took).
		Info("snapshot written")

	return &WriteResult{
		SnapshotID:         asOf,
		Status:             status,
		SuccessfulEntities: successIDs,
		FailedEntities:     failedIDs,
		Errors:             writeErrors,
		HasAggregate:       hasAggregate,
		BytesWritten:       bytesWritten,
		Took:               took,
	}, nil
}

// writeEntity persists one record. It returns the manifest entry for the
// record and, on failure, the structured error to report; failures here
// never abort the write as a whole.
func (w *Writer) writeEntity(dir string, rec *snapshots.EntityRecord,
	upstream []snapshots.EntityError,
) (snapshots.ManifestEntry, int64, *snapshots.EntityError) {
	entry := snapshots.ManifestEntry{EntityID: rec.EntityID, Status: rec.Status}

	fail := func(op string, err error) (snapshots.ManifestEntry, int64, *snapshots.EntityError) {
		entErr := &snapshots.EntityError{
			EntityID:  rec.EntityID,
			Operation: op,
			Message:   err.Error(),
		}
		entry.Status = snapshots.RecordFailed
		entry.Error = entErr.Message
		entry.File = ""
		return entry, 0, entErr
	}

	if err := pathguard.ValidateID(rec.EntityID); err != nil {
		return fail("validate entity id", err)
	}
	if err := rec.Validate(); err != nil {
		return fail("validate entity record", err)
	}

	fileName := snapshots.EntityFileName(rec.EntityID)
	path, err := pathguard.ResolveForWrite(dir, fileName)
	if err != nil {
		return fail("resolve entity path", err)
	}
	n, err := diskio.WriteJSONAtomic(path, rec)
	if err != nil {
		return fail("write entity file", err)
	}

	entry.File = fileName
	entry.SizeBytes = n
	if rec.Status == snapshots.RecordFailed {
		// carry the upstream failure reason into the manifest entry
		for _, upErr := range upstream {
			if upErr.EntityID == rec.EntityID {
				entry.Error = upErr.String()
				break
			}
		}
	}
	return entry, n, nil
}

// stampFileInfos overwrites sizes and sets modification times on the
// manifest entries from one directory stat pass. Failure is survivable:
// the entries keep the byte counts observed at write time.
func (w *Writer) stampFileInfos(dir string, entries []snapshots.ManifestEntry) {
	infos, err := diskio.DirEntryInfos(dir)
	if err != nil {
		w.logger.WithField("action", "snapshot_write").
			WithError(err).Warn("could not stat snapshot directory for the manifest")
		return
	}
	for i := range entries {
		if entries[i].File == "" {
			continue
		}
		if info, ok := infos[entries[i].File]; ok {
			entries[i].SizeBytes = info.Size()
			entries[i].ModifiedAt = info.ModTime().UTC()
		}
	}
}

// writeAggregate persists the cross-entity rankings document. Any failure
// is fatal for the surrounding write.
func (w *Writer) writeAggregate(dir, snapshotID string, snap *snapshots.Snapshot,
	agg *snapshots.AggregateArtifact,
) (int64, error) {
	if err := agg.Validate(); err != nil {
		return 0, errors.Wrapf(err, "aggregate artifact of snapshot %q", snapshotID)
	}
	if agg.GeneratedAt.IsZero() {
		agg.GeneratedAt = snap.CreatedAt
	}
	if agg.SchemaVersion == "" {
		agg.SchemaVersion = snap.SchemaVersion
	}
	if agg.RankingVersion == "" {
		agg.RankingVersion = snap.RankingVersion
	}

	path, err := pathguard.ResolveForWrite(dir, snapshots.AggregateFile)
	if err != nil {
		return 0, err
	}
	n, err := diskio.WriteJSONAtomic(path, agg)
	if err != nil {
		return 0, errors.Wrapf(err, "write aggregate artifact of snapshot %q", snapshotID)
	}
	return n, nil
}

func (w *Writer) updatePointer(snapshotID string) error {
	path, err := pathguard.ResolveForWrite(w.root, snapshots.PointerFile)
	if err != nil {
		return err
	}
	_, err = diskio.WriteJSONAtomic(path, snapshots.NewPointer(snapshotID, time.Now()))
	return err
}

// Delete removes a snapshot directory wholesale and drops every cache
// entry keyed by its id, plus the listings. The latest-successful pointer
// is deliberately left alone even when it references the deleted
// snapshot: Discovery treats a dangling pointer as stale and repairs it
// on the next lookup.
func (w *Writer) Delete(ctx context.Context, snapshotID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return err
	}

	dir, err := pathguard.ResolveForWrite(w.root, snapshotID)
	if err != nil {
		return err
	}
	existed, err := diskio.FileExists(dir)
	if err != nil {
		return errors.Wrapf(err, "stat snapshot %q", snapshotID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "delete snapshot %q", snapshotID)
	}

	w.cache.InvalidateSnapshot(snapshotID)
	w.cache.InvalidateList()

	if existed {
		w.metrics.IncSnapshotDelete()
		w.logger.WithField("action", "snapshot_delete").
			WithField("snapshot_id", snapshotID).
			Info("snapshot deleted")
	}
	return nil
}
