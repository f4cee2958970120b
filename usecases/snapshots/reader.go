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

// Package snapshots implements the snapshot store: writing immutable,
// date-keyed snapshot directories, reading them back with schema
// validation, listing them, and resolving the latest successful one
// through a pointer fast path with a scan fallback.
package snapshots

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/edstats/edstats/entities/diskio"
	enterrors "github.com/edstats/edstats/entities/errors"
	"github.com/edstats/edstats/entities/pathguard"
	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/config"
	"github.com/edstats/edstats/usecases/monitoring"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Reader serves all read operations of the store. Reads never mutate
// on-disk state; the one documented exception, pointer repair, lives in
// Discovery. A snapshot that does not exist is a nil result, not an
// error; see the entities/snapshots error classes for the corrupt and
// internal cases.
type Reader struct {
	root          string
	versions      config.Versions
	maxConcurrent int
	cache         *Cache
	logger        logrus.FieldLogger
	metrics       *monitoring.PrometheusMetrics
}

func NewReader(root string, versions config.Versions, maxConcurrent int,
	cache *Cache, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) *Reader {
	if maxConcurrent < 1 {
		maxConcurrent = config.DefaultMaxConcurrentReads
	}
	return &Reader{
		root:          root,
		versions:      versions,
		maxConcurrent: maxConcurrent,
		cache:         cache,
		logger:        logger,
		metrics:       metrics,
	}
}

// readJSON reads and decodes one store file, feeding the bytes-read
// metric. Callers classify the returned error: not-exist passes through
// untouched, undecodable content comes back as diskio.DecodeError.
func (r *Reader) readJSON(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	metered := diskio.NewMeteredReader(f, func(read, _ int64) {
		r.metrics.AddBytesRead(read)
	})
	data, err := io.ReadAll(metered)
	if err != nil {
		return errors.Wrapf(err, "read %q", path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return diskio.DecodeError{Path: path, Err: err}
	}
	return nil
}

// ReadEntity returns one entity record of a snapshot. The result is nil
// without an error when the file is absent or the record's own stored
// status says the entity was never successfully collected. A file that
// exists but does not parse or validate is a corrupt-class error.
func (r *Reader) ReadEntity(ctx context.Context, snapshotID, entityID string) (*snapshots.EntityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateID(entityID); err != nil {
		return nil, err
	}

	path, err := pathguard.ResolveForRead(r.root, snapshotID, snapshots.EntityFileName(entityID))
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, err
	}

	var rec snapshots.EntityRecord
	if err := r.readJSON(path, &rec); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, r.classifyRead(err, "read_entity", snapshotID, entityID)
	}
	if err := rec.Validate(); err != nil {
		r.logger.WithField("action", "read_entity").
			WithField("snapshot_id", snapshotID).
			WithField("entity_id", entityID).
			WithError(err).Error("entity file fails validation")
		return nil, snapshots.NewErrCorrupt(errors.Wrapf(err, "entity %q of snapshot %q", entityID, snapshotID))
	}

	if rec.Status != snapshots.RecordSuccess {
		r.logger.WithField("action", "read_entity").
			WithField("snapshot_id", snapshotID).
			WithField("entity_id", entityID).
			Debug("entity stored as failed, treating as absent")
		return nil, nil
	}
	return &rec, nil
}

// ReadAggregateArtifact returns the snapshot's aggregate document, nil
// without an error when the snapshot never carried one.
func (r *Reader) ReadAggregateArtifact(ctx context.Context, snapshotID string) (*snapshots.AggregateArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return nil, err
	}

	path, err := pathguard.ResolveForRead(r.root, snapshotID, snapshots.AggregateFile)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, err
	}

	var artifact snapshots.AggregateArtifact
	if err := r.readJSON(path, &artifact); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, r.classifyRead(err, "read_aggregate", snapshotID, "")
	}
	if err := artifact.Validate(); err != nil {
		r.logger.WithField("action", "read_aggregate").
			WithField("snapshot_id", snapshotID).
			WithError(err).Error("aggregate artifact fails validation")
		return nil, snapshots.NewErrCorrupt(errors.Wrapf(err, "aggregate artifact of snapshot %q", snapshotID))
	}
	return &artifact, nil
}

// ReadManifest returns the snapshot's manifest, nil without an error when
// absent. Unlike entity files, a corrupt manifest is always an error: the
// snapshot is unusable without it.
func (r *Reader) ReadManifest(ctx context.Context, snapshotID string) (*snapshots.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return nil, err
	}

	path, err := pathguard.ResolveForRead(r.root, snapshotID, snapshots.ManifestFile)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, err
	}

	var manifest snapshots.Manifest
	if err := r.readJSON(path, &manifest); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, r.classifyRead(err, "read_manifest", snapshotID, "")
	}
	if err := manifest.Validate(); err != nil {
		r.logger.WithField("action", "read_manifest").
			WithField("snapshot_id", snapshotID).
			WithError(err).Error("manifest fails validation")
		return nil, snapshots.NewErrCorrupt(errors.Wrapf(err, "manifest of snapshot %q", snapshotID))
	}
	return &manifest, nil
}

// ReadMetadata returns the snapshot's audit metadata, nil without an
// error when absent, corrupt-class error when unreadable.
func (r *Reader) ReadMetadata(ctx context.Context, snapshotID string) (*snapshots.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return nil, err
	}

	path, err := pathguard.ResolveForRead(r.root, snapshotID, snapshots.MetadataFile)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, err
	}

	var meta snapshots.Metadata
	if err := r.readJSON(path, &meta); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil, nil
		}
		return nil, r.classifyRead(err, "read_metadata", snapshotID, "")
	}
	if err := meta.Validate(); err != nil {
		r.logger.WithField("action", "read_metadata").
			WithField("snapshot_id", snapshotID).
			WithError(err).Error("metadata fails validation")
		return nil, snapshots.NewErrCorrupt(errors.Wrapf(err, "metadata of snapshot %q", snapshotID))
	}
	return &meta, nil
}

// ReconstructSnapshot reassembles the full logical snapshot: metadata plus
// manifest plus every entity file the manifest marks successful. Missing
// metadata or manifest means the snapshot does not exist. A metadata file
// without the write-complete flag marks a torn write and is treated the
// same way. Entity files that went missing or corrupt since the manifest
// was written are logged and skipped; the reconstruction tolerates partial
// data the way downstream consumers do.
func (r *Reader) ReconstructSnapshot(ctx context.Context, snapshotID string) (*snapshots.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathguard.ValidateSnapshotID(snapshotID); err != nil {
		return nil, err
	}

	if snap, ok := r.cache.GetSnapshot(snapshotID); ok {
		return snap, nil
	}

	meta, err := r.ReadMetadata(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	if !meta.WriteComplete {
		r.logger.WithField("action", "reconstruct_snapshot").
			WithField("snapshot_id", snapshotID).
			Warn("metadata present but write incomplete, treating snapshot as torn")
		return nil, nil
	}

	manifest, err := r.ReadManifest(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		r.logger.WithField("action", "reconstruct_snapshot").
			WithField("snapshot_id", snapshotID).
			Warn("metadata present but manifest missing, treating snapshot as absent")
		return nil, nil
	}

	ids := manifest.SuccessfulIDs()
	slots := make([]*snapshots.EntityRecord, len(ids))

	eg := enterrors.NewErrorGroupWrapper(r.logger, "reconstruct", snapshotID)
	eg.SetLimit(r.maxConcurrent)
	for i, entityID := range ids {
		i, entityID := i, entityID
		eg.Go(func() error {
			rec, err := r.ReadEntity(ctx, snapshotID, entityID)
			if err != nil {
				var corrupt snapshots.ErrCorrupt
				if errors.As(err, &corrupt) {
					r.logger.WithField("action", "reconstruct_snapshot").
						WithField("snapshot_id", snapshotID).
						WithField("entity_id", entityID).
						WithError(err).Warn("skipping corrupt entity file")
					return nil
				}
				return errors.Wrapf(err, "entity %q of snapshot %q", entityID, snapshotID)
			}
			if rec == nil {
				r.logger.WithField("action", "reconstruct_snapshot").
					WithField("snapshot_id", snapshotID).
					WithField("entity_id", entityID).
					Warn("manifest lists entity as successful but file is unusable")
				return nil
			}
			slots[i] = rec
			return nil
		}, entityID)
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	records := make([]snapshots.EntityRecord, 0, len(ids))
	for _, rec := range slots {
		if rec != nil {
			records = append(records, *rec)
		}
	}

	snap := &snapshots.Snapshot{
		ID:                 meta.SnapshotID,
		CreatedAt:          meta.CreatedAt,
		AsOfDate:           meta.AsOfDate,
		SchemaVersion:      meta.SchemaVersion,
		CalculationVersion: meta.CalculationVersion,
		RankingVersion:     meta.RankingVersion,
		Status:             meta.Status,
		Errors:             meta.EntityErrors,
		Entities:           records,
		DataSource:         meta.DataSource,
		HasAggregate:       manifest.HasAggregate,
	}

	r.cache.SetSnapshot(snapshotID, snap)
	return snap, nil
}

// classifyRead translates low-level read failures into the store's error
// taxonomy: undecodable files become the corrupt class, the rest internal.
// Vanished files never reach it; call sites map those to nil first.
func (r *Reader) classifyRead(err error, action, snapshotID, entityID string) error {
	entry := r.logger.WithField("action", action).WithField("snapshot_id", snapshotID)
	if entityID != "" {
		entry = entry.WithField("entity_id", entityID)
	}

	var decErr diskio.DecodeError
	if errors.As(err, &decErr) {
		entry.WithError(err).Error("store file is corrupt")
		return snapshots.NewErrCorrupt(err)
	}
	entry.WithError(err).Error("store file is unreadable")
	return snapshots.NewErrInternal(err)
}
