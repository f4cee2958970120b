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

// Pointer is the content of latest-successful.json: a rebuildable index
// naming the most recent snapshot known to have succeeded. It is a cache,
// never the source of truth. Discovery verifies the referenced snapshot
// before trusting it and rebuilds the file from a full scan when it lies.
type Pointer struct {
	SnapshotID    string    `json:"snapshotId"`
	UpdatedAt     time.Time `json:"updatedAt"`
	SchemaVersion string    `json:"schemaVersion"`
}

// NewPointer returns a pointer referencing the given snapshot, stamped
// with the current pointer schema version.
func NewPointer(snapshotID string, now time.Time) *Pointer {
	return &Pointer{
		SnapshotID:    snapshotID,
		UpdatedAt:     now.UTC(),
		SchemaVersion: PointerSchemaVersion,
	}
}

func (p *Pointer) Validate() error {
	if p.SnapshotID == "" {
		return errors.New("pointer misses snapshotId")
	}
	if _, err := time.Parse(DateLayout, p.SnapshotID); err != nil {
		return errors.Wrapf(err, "pointer snapshotId %q is not a date", p.SnapshotID)
	}
	if p.UpdatedAt.IsZero() {
		return fmt.Errorf("pointer to %q misses updatedAt", p.SnapshotID)
	}
	if p.SchemaVersion == "" {
		return fmt.Errorf("pointer to %q misses schemaVersion", p.SnapshotID)
	}
	return nil
}
