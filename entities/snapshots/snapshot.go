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

// Package snapshots holds the on-disk data model of the snapshot store:
// the logical Snapshot and its decomposed artifacts (per-entity files,
// manifest, metadata, aggregate artifact, latest-successful pointer),
// together with their schema validation and the store's error taxonomy.
package snapshots

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the layout of snapshot ids and as-of dates. Lexical order
// of ids equals chronological order, which the discovery scan relies on.
const DateLayout = "2006-01-02"

const (
	MetadataFile  = "metadata.json"
	ManifestFile  = "manifest.json"
	AggregateFile = "aggregate-artifact.json"
	PointerFile   = "latest-successful.json"

	entityFilePrefix = "entity_"
	entityFileSuffix = ".json"
)

// PointerSchemaVersion versions the pointer file format, which is owned by
// the store itself. Snapshot-level version tags are producer-owned and
// carried through unchanged.
const PointerSchemaVersion = "1.0"

// EntityFileName returns the file name an entity is stored under inside
// its snapshot directory.
func EntityFileName(entityID string) string {
	return entityFilePrefix + entityID + entityFileSuffix
}

// Snapshot is the immutable, date-keyed unit of truth for one day's data.
// Exactly one snapshot exists per as-of date; writing the same date again
// overwrites the previous directory wholesale.
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	// AsOfDate names the reporting date the data describes, which for
	// back-dated and closing-period writes differs from CreatedAt.
	AsOfDate string `json:"asOfDate"`

	SchemaVersion      string `json:"schemaVersion"`
	CalculationVersion string `json:"calculationVersion,omitempty"`
	RankingVersion     string `json:"rankingVersion,omitempty"`

	Status Status `json:"status"`

	// Errors is the ordered list of structured failure records collected
	// upstream plus any produced during the write itself.
	Errors []EntityError `json:"errors,omitempty"`

	Entities []EntityRecord `json:"entities"`

	DataSource string `json:"dataSource,omitempty"`

	// HasAggregate is derived on read from the manifest; it is ignored on
	// write, where the aggregate artifact travels as its own argument.
	HasAggregate bool `json:"hasAggregate,omitempty"`
}

// Validate checks the writer-facing structural shape. Per-entity problems
// are deliberately not checked here: the writer isolates those per record.
func (s *Snapshot) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("invalid snapshot status %q", s.Status)
	}
	if s.AsOfDate != "" {
		if _, err := time.Parse(DateLayout, s.AsOfDate); err != nil {
			return errors.Wrapf(err, "invalid as-of date %q", s.AsOfDate)
		}
	}
	return nil
}

// EntityIDs lists the ids of all records in payload order.
func (s *Snapshot) EntityIDs() []string {
	ids := make([]string, len(s.Entities))
	for i, rec := range s.Entities {
		ids[i] = rec.EntityID
	}
	return ids
}

// EntityRecord is one unit of payload (one district) exactly as stored in
// its entity_<id>.json file. Data is opaque to the store beyond being
// well-formed JSON.
type EntityRecord struct {
	EntityID string          `json:"entityId"`
	Status   RecordStatus    `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (r *EntityRecord) Validate() error {
	if r.EntityID == "" {
		return errors.New("entity record misses entityId")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("entity %q: invalid record status %q", r.EntityID, r.Status)
	}
	if r.Status == RecordSuccess && isEmptyJSON(r.Data) {
		return fmt.Errorf("entity %q: successful record carries no data", r.EntityID)
	}
	return nil
}

// AggregateArtifact is the store-level rankings document. It is not tied
// to any single entity and carries its own nested version metadata.
type AggregateArtifact struct {
	GeneratedAt    time.Time       `json:"generatedAt"`
	SchemaVersion  string          `json:"schemaVersion,omitempty"`
	RankingVersion string          `json:"rankingVersion,omitempty"`
	Data           json.RawMessage `json:"data"`
}

func (a *AggregateArtifact) Validate() error {
	if isEmptyJSON(a.Data) {
		return errors.New("aggregate artifact carries no data")
	}
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
