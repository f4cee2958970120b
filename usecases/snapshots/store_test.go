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
	"fmt"
	"testing"

	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/config"
	"github.com/edstats/edstats/usecases/monitoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *monitoring.PrometheusMetrics) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SnapshotsPath = t.TempDir()
	cfg.DataSource = "state-doe-api"
	cfg.Versions = config.Versions{
		Schema:      "1.0",
		Calculation: "2.3.0",
		Ranking:     "1.1.0",
	}

	logger, _ := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())

	store, err := New(cfg, logger, metrics)
	require.NoError(t, err)
	return store, metrics
}

func districtRecord(id string) snapshots.EntityRecord {
	data := fmt.Sprintf(`{"districtId":%q,"enrollment":%d,"graduationRate":0.87}`,
		id, 1000+len(id))
	return snapshots.EntityRecord{
		EntityID: id,
		Status:   snapshots.RecordSuccess,
		Data:     json.RawMessage(data),
	}
}

func testSnapshot(id string, status snapshots.Status, districts ...string) *snapshots.Snapshot {
	recs := make([]snapshots.EntityRecord, len(districts))
	for i, d := range districts {
		recs[i] = districtRecord(d)
	}
	return &snapshots.Snapshot{ID: id, Status: status, Entities: recs}
}

func testAggregate() *snapshots.AggregateArtifact {
	return &snapshots.AggregateArtifact{
		Data: json.RawMessage(`{"rankings":[{"districtId":"D-100","rank":1}]}`),
	}
}

func TestNewValidatesConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewRegistry())

	cfg := config.DefaultConfig()
	cfg.SnapshotsPath = ""

	store, err := New(cfg, logger, metrics)
	assert.Nil(t, store)
	require.ErrorContains(t, err, "snapshots_path")
}

// A refresh where one district fails midway: the caller declares the
// snapshot partial, the failing district is isolated, and everything the
// spec of the nightly job cares about stays observable.
func TestScenarioPartialRefresh(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	// the previous night succeeded
	prev := testSnapshot("2024-01-01", snapshots.StatusSuccess, "D-100", "D-200")
	_, err := store.Write(ctx, prev, testAggregate(), WriteOptions{})
	require.NoError(t, err)

	// tonight D-200 fails upstream: its record is stored as failed and the
	// caller declares the whole snapshot partial
	snap := testSnapshot("2024-01-02", snapshots.StatusPartial, "D-100")
	snap.Entities = append(snap.Entities, snapshots.EntityRecord{
		EntityID: "D-200",
		Status:   snapshots.RecordFailed,
	})
	snap.Errors = []snapshots.EntityError{{
		EntityID:  "D-200",
		Operation: "collect district stats",
		Message:   "upstream API returned 503",
	}}
	res, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshots.StatusPartial, res.Status)
	assert.Equal(t, []string{"D-100"}, res.SuccessfulEntities)
	assert.Equal(t, []string{"D-200"}, res.FailedEntities)

	// the manifest reflects the split
	manifest, err := store.ReadManifest(ctx, "2024-01-02")
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, 2, manifest.TotalEntities)
	assert.Equal(t, 1, manifest.SuccessfulEntities)
	assert.Equal(t, 1, manifest.FailedEntities)
	require.NotNil(t, manifest.Entry("D-200"))
	assert.Contains(t, manifest.Entry("D-200").Error, "503")

	// reconstruction contains only the successful district
	rebuilt, err := store.ReconstructSnapshot(ctx, "2024-01-02")
	require.NoError(t, err)
	require.NotNil(t, rebuilt)
	require.Len(t, rebuilt.Entities, 1)
	assert.Equal(t, "D-100", rebuilt.Entities[0].EntityID)
	assert.Equal(t, snapshots.StatusPartial, rebuilt.Status)

	// listings expose the partial status and its error count
	metas, err := store.ListSnapshots(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "2024-01-02", metas[0].SnapshotID)
	assert.Equal(t, snapshots.StatusPartial, metas[0].Status)
	assert.GreaterOrEqual(t, metas[0].ErrorCount(), 1)

	// latest-successful still resolves to the previous night
	latest, err := store.LatestSuccessful(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2024-01-01", latest.ID)
}

// A store that has never seen a write behaves like an empty one, not a
// broken one.
func TestScenarioEmptyStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	metas, err := store.ListSnapshots(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, metas)

	latest, err := store.LatestSuccessful(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	snap, err := store.ReconstructSnapshot(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestStoreInvalidateAll(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := testSnapshot("2024-01-01", snapshots.StatusSuccess, "D-100")
	_, err := store.Write(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)

	first, err := store.ReconstructSnapshot(ctx, "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, first)

	// with the reconstruction cached, a second call returns the identical
	// object; after InvalidateAll it must be rebuilt from disk
	second, err := store.ReconstructSnapshot(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Same(t, first, second)

	store.InvalidateAll()
	third, err := store.ReconstructSnapshot(ctx, "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.NotSame(t, first, third)
}
