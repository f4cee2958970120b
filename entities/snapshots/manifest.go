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
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Manifest is the derived per-snapshot index of entity write outcomes.
// It is regenerated from scratch on every write and never hand-edited;
// anything in it can be rebuilt by re-statting the snapshot directory.
type Manifest struct {
	SnapshotID         string          `json:"snapshotId"`
	GeneratedAt        time.Time       `json:"generatedAt"`
	TotalEntities      int             `json:"totalEntities"`
	SuccessfulEntities int             `json:"successfulEntities"`
	FailedEntities     int             `json:"failedEntities"`
	Entities           []ManifestEntry `json:"entities"`
	HasAggregate       bool            `json:"hasAggregate"`
	AggregateSizeBytes int64           `json:"aggregateSizeBytes,omitempty"`
}

// ManifestEntry records one entity's write outcome. For failed entities
// SizeBytes and ModifiedAt stay zero and Error carries the reason.
type ManifestEntry struct {
	EntityID   string       `json:"entityId"`
	File       string       `json:"file"`
	SizeBytes  int64        `json:"sizeBytes,omitempty"`
	ModifiedAt time.Time    `json:"modifiedAt,omitempty"`
	Status     RecordStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

func (m *Manifest) Validate() error {
	if m.SnapshotID == "" {
		return errors.New("manifest misses snapshotId")
	}
	if _, err := time.Parse(DateLayout, m.SnapshotID); err != nil {
		return errors.Wrapf(err, "manifest snapshotId %q is not a date", m.SnapshotID)
	}
	if m.TotalEntities != len(m.Entities) {
		return fmt.Errorf("manifest totalEntities=%d but %d entries present",
			m.TotalEntities, len(m.Entities))
	}
	if m.SuccessfulEntities+m.FailedEntities != m.TotalEntities {
		return fmt.Errorf("manifest counts do not add up: %d success + %d failed != %d total",
			m.SuccessfulEntities, m.FailedEntities, m.TotalEntities)
	}
	for i, e := range m.Entities {
		if e.EntityID == "" {
			return fmt.Errorf("manifest entry %d misses entityId", i)
		}
		if !e.Status.Valid() {
			return fmt.Errorf("manifest entry %q: invalid status %q", e.EntityID, e.Status)
		}
		if e.Status == RecordSuccess && e.File == "" {
			return fmt.Errorf("manifest entry %q: successful entry misses file name", e.EntityID)
		}
	}
	return nil
}

// Entry returns the manifest entry for an entity id, or nil.
func (m *Manifest) Entry(entityID string) *ManifestEntry {
	for i := range m.Entities {
		if m.Entities[i].EntityID == entityID {
			return &m.Entities[i]
		}
	}
	return nil
}

// SuccessfulIDs lists the entity ids whose files landed, in manifest order.
func (m *Manifest) SuccessfulIDs() []string {
	ids := make([]string, 0, m.SuccessfulEntities)
	for _, e := range m.Entities {
		if e.Status == RecordSuccess {
			ids = append(ids, e.EntityID)
		}
	}
	return ids
}
