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
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/edstats/edstats/entities/errorcompounder"
	enterrors "github.com/edstats/edstats/entities/errors"
	"github.com/edstats/edstats/entities/pathguard"
	"github.com/edstats/edstats/entities/snapshots"

	"github.com/pkg/errors"
)

// ListFilters narrows a listing. Zero values mean "no constraint".
type ListFilters struct {
	// Status keeps only snapshots whose caller-declared status matches.
	Status snapshots.Status

	// SchemaVersion keeps only snapshots stamped with this exact version.
	SchemaVersion string

	// CreatedAfter and CreatedBefore bound the write timestamp, both ends
	// inclusive.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// MinEntities keeps only snapshots holding at least this many
	// successfully persisted entities.
	MinEntities int
}

func (f *ListFilters) match(meta *snapshots.Metadata) bool {
	if f == nil {
		return true
	}
	if f.Status != "" && meta.Status != f.Status {
		return false
	}
	if f.SchemaVersion != "" && meta.SchemaVersion != f.SchemaVersion {
		return false
	}
	if !f.CreatedAfter.IsZero() && meta.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && meta.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	if f.MinEntities > 0 && len(meta.SuccessfulEntities) < f.MinEntities {
		return false
	}
	return true
}

// cacheKey encodes the full query so differently filtered listings never
// share a cache entry.
func (f *ListFilters) cacheKey(limit int) string {
	if f == nil {
		f = &ListFilters{}
	}
	return fmt.Sprintf("limit=%d|status=%s|schema=%s|after=%d|before=%d|min=%d",
		limit, f.Status, f.SchemaVersion,
		f.CreatedAfter.UnixNano(), f.CreatedBefore.UnixNano(), f.MinEntities)
}

// ListSnapshots enumerates the date-named snapshot directories and returns
// their audit metadata, newest first by creation timestamp. Only the
// lightweight metadata file is read per directory, with bounded
// concurrency; directories whose metadata is missing or unreadable are
// skipped and logged, never fatal. A limit above zero caps the result
// after filtering and sorting. A missing snapshots root yields an empty
// list.
func (r *Reader) ListSnapshots(ctx context.Context, limit int, filters *ListFilters) ([]*snapshots.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := filters.cacheKey(limit)
	if metas, ok := r.cache.GetList(key); ok {
		return metas, nil
	}

	start := time.Now()

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []*snapshots.Metadata{}, nil
		}
		return nil, snapshots.NewErrInternal(errors.Wrapf(err, "list snapshots root %q", r.root))
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if pathguard.ValidateSnapshotID(entry.Name()) != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}

	slots := make([]*snapshots.Metadata, len(ids))
	skipped := make([]error, len(ids))

	eg := enterrors.NewErrorGroupWrapper(r.logger, "list_snapshots")
	eg.SetLimit(r.maxConcurrent)
	for i, id := range ids {
		i, id := i, id
		eg.Go(func() error {
			meta, err := r.ReadMetadata(ctx, id)
			if err != nil {
				skipped[i] = errors.Wrapf(err, "snapshot %q", id)
				return nil
			}
			slots[i] = meta
			return nil
		}, id)
	}
	if err := eg.Wait(); err != nil {
		return nil, snapshots.NewErrInternal(err)
	}

	ec := errorcompounder.New()
	for _, err := range skipped {
		ec.Add(err)
	}
	if !ec.Empty() {
		r.logger.WithField("action", "list_snapshots").
			WithField("skipped", ec.Len()).
			WithError(ec.ToError()).
			Warn("skipping snapshots with unreadable metadata")
	}

	result := make([]*snapshots.Metadata, 0, len(ids))
	for _, meta := range slots {
		if meta == nil {
			continue
		}
		if filters.match(meta) {
			result = append(result, meta)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].SnapshotID > result[j].SnapshotID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	r.cache.SetList(key, result)
	r.metrics.ObserveSnapshotList(time.Since(start))
	return result, nil
}
