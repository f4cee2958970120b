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

// Metadata is the audit record of one snapshot write. It is the last file
// written into a snapshot directory, so its presence with WriteComplete
// set is the evidence that the directory is not a torn intermediate state.
type Metadata struct {
	SnapshotID string    `json:"snapshotId"`
	CreatedAt  time.Time `json:"createdAt"`
	AsOfDate   string    `json:"asOfDate"`

	SchemaVersion      string `json:"schemaVersion"`
	CalculationVersion string `json:"calculationVersion,omitempty"`
	RankingVersion     string `json:"rankingVersion,omitempty"`

	Status Status `json:"status"`

	ConfiguredEntities []string `json:"configuredEntities"`
	SuccessfulEntities []string `json:"successfulEntities"`
	FailedEntities     []string `json:"failedEntities"`

	// Errors holds flat audit strings rendered from EntityErrors at write
	// time. EntityErrors is authoritative; the strings are never parsed.
	Errors       []string      `json:"errors"`
	EntityErrors []EntityError `json:"entityErrors,omitempty"`

	ProcessingDurationMs int64  `json:"processingDurationMs"`
	DataSource           string `json:"dataSource,omitempty"`

	WriteComplete bool `json:"writeComplete"`
}

func (m *Metadata) Validate() error {
	if m.SnapshotID == "" {
		return errors.New("metadata misses snapshotId")
	}
	if _, err := time.Parse(DateLayout, m.SnapshotID); err != nil {
		return errors.Wrapf(err, "metadata snapshotId %q is not a date", m.SnapshotID)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("metadata %q misses createdAt", m.SnapshotID)
	}
	if m.AsOfDate == "" {
		return fmt.Errorf("metadata %q misses asOfDate", m.SnapshotID)
	}
	if _, err := time.Parse(DateLayout, m.AsOfDate); err != nil {
		return errors.Wrapf(err, "metadata %q: invalid asOfDate", m.SnapshotID)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("metadata %q: invalid status %q", m.SnapshotID, m.Status)
	}
	return nil
}

// ErrorCount is what listings expose; structured records win over the
// derived strings if the two ever disagree.
func (m *Metadata) ErrorCount() int {
	if n := len(m.EntityErrors); n > 0 {
		return n
	}
	return len(m.Errors)
}
