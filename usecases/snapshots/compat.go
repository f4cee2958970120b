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

	"github.com/edstats/edstats/entities/snapshots"
	"github.com/edstats/edstats/usecases/config"

	"github.com/pkg/errors"
)

// VersionCompatibility reports how a stored snapshot's version triple
// relates to the versions this process runs. Only a schema mismatch makes
// a snapshot incompatible; calculation and ranking drift is survivable
// and surfaces as warnings.
type VersionCompatibility struct {
	SnapshotID string          `json:"snapshotId"`
	Compatible bool            `json:"compatible"`
	Stored     config.Versions `json:"stored"`
	Current    config.Versions `json:"current"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// CheckVersionCompatibility compares the snapshot's stored versions
// against the current running versions. A snapshot that does not exist is
// a not-found error here, unlike the plain read operations: callers of
// this check want an explicit verdict, not a silent nil.
func (r *Reader) CheckVersionCompatibility(ctx context.Context, snapshotID string) (*VersionCompatibility, error) {
	meta, err := r.ReadMetadata(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, snapshots.NewErrNotFound(errors.Errorf("snapshot %q not found", snapshotID))
	}

	report := &VersionCompatibility{
		SnapshotID: snapshotID,
		Stored: config.Versions{
			Schema:      meta.SchemaVersion,
			Calculation: meta.CalculationVersion,
			Ranking:     meta.RankingVersion,
		},
		Current: r.versions,
	}

	report.Compatible = report.Stored.Schema == report.Current.Schema
	if report.Stored.Calculation != report.Current.Calculation {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("calculation version drift: snapshot has %q, current is %q",
				report.Stored.Calculation, report.Current.Calculation))
	}
	if report.Stored.Ranking != report.Current.Ranking {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("ranking version drift: snapshot has %q, current is %q",
				report.Stored.Ranking, report.Current.Ranking))
	}
	return report, nil
}
