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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edstats/edstats/entities/snapshots"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100", "D-200", "D-300")
	res, err := store.Write(ctx, snap, testAggregate(), WriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", res.SnapshotID)
	assert.Equal(t, snapshots.StatusSuccess, res.Status)
	assert.Equal(t, []string{"D-100", "D-200", "D-300"}, res.SuccessfulEntities)
	assert.Empty(t, res.FailedEntities)
	assert.True(t, res.HasAggregate)
	assert.Positive(t, res.BytesWritten)

	dir := filepath.Join(store.Writer.root, "2024-01-15")
	for _, name := range []string{
		snapshots.MetadataFile,
		snapshots.ManifestFile,
		snapshots.AggregateFile,
		snapshots.EntityFileName("D-100"),
		snapshots.EntityFileName("D-200"),
		snapshots.EntityFileName("D-300"),
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	rec, err := store.ReadEntity(ctx, "2024-01-15", "D-200")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "D-200", rec.EntityID)
	assert.JSONEq(t, string(districtRecord("D-200").Data), string(rec.Data))

	agg, err := store.ReadAggregateArtifact(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, "1.0", agg.SchemaVersion)
	assert.Equal(t, "1.1.0", agg.RankingVersion)
	assert.False(t, agg.GeneratedAt.IsZero())

	manifest, err := store.ReadManifest(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, 3, manifest.TotalEntities)
	assert.Equal(t, 3, manifest.SuccessfulEntities)
	assert.Zero(t, manifest.FailedEntities)
	assert.True(t, manifest.HasAggregate)
	assert.Positive(t, manifest.AggregateSizeBytes)
	for _, entry := range manifest.Entities {
		assert.Positive(t, entry.SizeBytes, entry.EntityID)
		assert.False(t, entry.ModifiedAt.IsZero(), entry.EntityID)
	}

	meta, err := store.ReadMetadata(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.WriteComplete)
	assert.Equal(t, snapshots.StatusSuccess, meta.Status)
	assert.Equal(t, "2.3.0", meta.CalculationVersion)
	assert.Equal(t, "state-doe-api", meta.DataSource)
	assert.Equal(t, []string{"D-100", "D-200", "D-300"}, meta.SuccessfulEntities)
	assert.Empty(t, meta.FailedEntities)
	assert.Empty(t, meta.Errors)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100", "D-200")
	_, err := store.Write(ctx, snap, testAggregate(), WriteOptions{})
	require.NoError(t, err)

	err = filepath.WalkDir(store.Writer.root, func(path string, _ os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		assert.NotContains(t, filepath.Base(path), ".tmp-", path)
		return nil
	})
	require.NoError(t, err)
}

func TestWriteIsolatesEntityFailures(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusPartial, "D-100", "D-300")
	// invalid id: rejected per entity, never aborts the write
	snap.Entities = append(snap.Entities, snapshots.EntityRecord{
		EntityID: "../escape",
		Status:   snapshots.RecordSuccess,
		Data:     json.RawMessage(`{"x":1}`),
	})
	// structurally broken: success without data
	snap.Entities = append(snap.Entities, snapshots.EntityRecord{
		EntityID: "D-400",
		Status:   snapshots.RecordSuccess,
	})

	res, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"D-100", "D-300"}, res.SuccessfulEntities)
	assert.Equal(t, []string{"../escape", "D-400"}, res.FailedEntities)
	require.Len(t, res.Errors, 2)

	manifest, err := store.ReadManifest(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, 4, manifest.TotalEntities)
	assert.Equal(t, 2, manifest.SuccessfulEntities)
	assert.Equal(t, 2, manifest.FailedEntities)

	broken := manifest.Entry("D-400")
	require.NotNil(t, broken)
	assert.Equal(t, snapshots.RecordFailed, broken.Status)
	assert.Empty(t, broken.File)
	assert.NotEmpty(t, broken.Error)

	// the rejected id never produced a file outside or inside the snapshot
	_, err = os.Stat(filepath.Join(store.Writer.root, "escape"))
	assert.True(t, os.IsNotExist(err))

	meta, err := store.ReadMetadata(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.WriteComplete)
	assert.Len(t, meta.EntityErrors, 2)
	assert.Len(t, meta.Errors, 2)
}

func TestWriteAggregateFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
	agg := &snapshots.AggregateArtifact{} // no data

	_, err := store.Write(ctx, snap, agg, WriteOptions{})
	require.ErrorContains(t, err, "aggregate artifact")

	// no metadata means the directory is a torn write, invisible to reads
	meta, readErr := store.ReadMetadata(ctx, "2024-01-15")
	require.NoError(t, readErr)
	assert.Nil(t, meta)
	rebuilt, readErr := store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, readErr)
	assert.Nil(t, rebuilt)
}

func TestWriteOverwritesSameDate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	first := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100", "D-200")
	_, err := store.Write(ctx, first, testAggregate(), WriteOptions{})
	require.NoError(t, err)

	second := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-300")
	_, err = store.Write(ctx, second, nil, WriteOptions{})
	require.NoError(t, err)

	// nothing of the first write shines through
	rec, err := store.ReadEntity(ctx, "2024-01-15", "D-100")
	require.NoError(t, err)
	assert.Nil(t, rec)
	agg, err := store.ReadAggregateArtifact(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.Nil(t, agg)

	manifest, err := store.ReadManifest(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, 1, manifest.TotalEntities)
	assert.False(t, manifest.HasAggregate)
}

func TestWriteAsOfDatePrecedence(t *testing.T) {
	ctx := context.Background()

	t.Run("override beats payload", func(t *testing.T) {
		store, _ := newTestStore(t)
		snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
		snap.AsOfDate = "2024-01-16"

		res, err := store.Write(ctx, snap, nil, WriteOptions{AsOfDateOverride: "2024-01-17"})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-17", res.SnapshotID)

		meta, err := store.ReadMetadata(ctx, "2024-01-17")
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Equal(t, "2024-01-17", meta.AsOfDate)
	})

	t.Run("asOfDate beats id", func(t *testing.T) {
		store, _ := newTestStore(t)
		snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
		snap.AsOfDate = "2024-01-16"

		res, err := store.Write(ctx, snap, nil, WriteOptions{})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-16", res.SnapshotID)
	})

	t.Run("no date anywhere fails", func(t *testing.T) {
		store, _ := newTestStore(t)
		snap := &snapshots.Snapshot{Status: snapshots.StatusSuccess}

		_, err := store.Write(ctx, snap, nil, WriteOptions{})
		require.ErrorContains(t, err, "as-of date")
	})

	t.Run("non-date id fails", func(t *testing.T) {
		store, _ := newTestStore(t)
		snap := testSnapshot("not-a-date", snapshots.StatusSuccess, "D-100")

		_, err := store.Write(ctx, snap, nil, WriteOptions{})
		require.Error(t, err)
	})
}

func TestWritePointerOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	pointerPath := filepath.Join(store.Writer.root, snapshots.PointerFile)

	partial := testSnapshot("2024-01-15", snapshots.StatusPartial, "D-100")
	_, err := store.Write(ctx, partial, nil, WriteOptions{})
	require.NoError(t, err)
	_, err = os.Stat(pointerPath)
	assert.True(t, os.IsNotExist(err), "partial write must not create the pointer")

	failed := testSnapshot("2024-01-16", snapshots.StatusFailed, "D-100")
	_, err = store.Write(ctx, failed, nil, WriteOptions{})
	require.NoError(t, err)
	_, err = os.Stat(pointerPath)
	assert.True(t, os.IsNotExist(err), "failed write must not create the pointer")

	success := testSnapshot("2024-01-17", snapshots.StatusSuccess, "D-100")
	_, err = store.Write(ctx, success, nil, WriteOptions{})
	require.NoError(t, err)

	raw, err := os.ReadFile(pointerPath)
	require.NoError(t, err)
	var ptr snapshots.Pointer
	require.NoError(t, json.Unmarshal(raw, &ptr))
	assert.Equal(t, "2024-01-17", ptr.SnapshotID)
	require.NoError(t, ptr.Validate())
}

func TestWriteInvalidatesCachesOnSuccessOnly(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	v1 := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
	_, err := store.Write(ctx, v1, nil, WriteOptions{})
	require.NoError(t, err)

	cached, err := store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, cached)

	// a partial rewrite of the same date leaves the cache alone: readers
	// keep seeing the last successful state until expiry
	v2 := testSnapshot("2024-01-15", snapshots.StatusPartial, "D-999")
	_, err = store.Write(ctx, v2, nil, WriteOptions{})
	require.NoError(t, err)

	stale, err := store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.Same(t, cached, stale)

	// a successful rewrite invalidates, the next read sees fresh state
	v3 := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-300")
	_, err = store.Write(ctx, v3, nil, WriteOptions{})
	require.NoError(t, err)

	fresh, err := store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	require.Len(t, fresh.Entities, 1)
	assert.Equal(t, "D-300", fresh.Entities[0].EntityID)
}

func TestWriteDemotesDeclaredSuccessOnEntityFailure(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
	snap.Entities = append(snap.Entities, snapshots.EntityRecord{
		EntityID: "D-200",
		Status:   snapshots.RecordSuccess, // declared fine, but no data
	})

	res, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshots.StatusPartial, res.Status)

	meta, err := store.ReadMetadata(ctx, "2024-01-15")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, snapshots.StatusPartial, meta.Status)

	// a demoted snapshot never becomes the latest successful one
	_, err = os.Stat(filepath.Join(store.Writer.root, snapshots.PointerFile))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRejectsNilAndInvalid(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Write(ctx, nil, nil, WriteOptions{})
	require.ErrorContains(t, err, "empty snapshot")

	snap := testSnapshot("2024-01-15", "bogus-status", "D-100")
	_, err = store.Write(ctx, snap, nil, WriteOptions{})
	require.ErrorContains(t, err, "invalid snapshot")

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Write(canceled, testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100"), nil, WriteOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWriteStoresUpstreamFailedRecords(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusPartial, "D-100")
	snap.Entities = append(snap.Entities, snapshots.EntityRecord{
		EntityID: "D-200",
		Status:   snapshots.RecordFailed,
		Data:     json.RawMessage(`{"districtId":"D-200","partial":true}`),
	})
	snap.Errors = []snapshots.EntityError{{
		EntityID:  "D-200",
		Operation: "collect district stats",
		Message:   "timeout after 30s",
	}}

	res, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"D-200"}, res.FailedEntities)

	// the failed record's file still lands for the audit trail
	raw, err := os.ReadFile(filepath.Join(store.Writer.root, "2024-01-15",
		snapshots.EntityFileName("D-200")))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "partial"))

	// but reads treat it as absent
	rec, err := store.ReadEntity(ctx, "2024-01-15", "D-200")
	require.NoError(t, err)
	assert.Nil(t, rec)

	manifest, err := store.ReadManifest(ctx, "2024-01-15")
	require.NoError(t, err)
	entry := manifest.Entry("D-200")
	require.NotNil(t, entry)
	assert.Equal(t, snapshots.RecordFailed, entry.Status)
	assert.Contains(t, entry.Error, "timeout after 30s")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-15", snapshots.StatusSuccess, "D-100")
	_, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)

	// prime the cache so delete has something to invalidate
	_, err = store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "2024-01-15"))

	_, err = os.Stat(filepath.Join(store.Writer.root, "2024-01-15"))
	assert.True(t, os.IsNotExist(err))

	rebuilt, err := store.ReconstructSnapshot(ctx, "2024-01-15")
	require.NoError(t, err)
	assert.Nil(t, rebuilt)

	// deleting again is a no-op
	require.NoError(t, store.Delete(ctx, "2024-01-15"))

	// ids must still be well-formed dates
	require.Error(t, store.Delete(ctx, "../../etc"))
}
