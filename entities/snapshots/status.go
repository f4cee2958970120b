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

// Status is the caller-declared outcome of a snapshot write. The store
// never decides business-level success itself; the one correction it makes
// is demoting a declared success to partial when records failed to persist.
type Status string

const (
	// StatusSuccess means every configured entity landed on disk.
	StatusSuccess Status = "success"
	// StatusPartial means some entities failed but the snapshot is readable.
	StatusPartial Status = "partial"
	// StatusFailed means the snapshot carries no usable data.
	StatusFailed Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// RecordStatus is the per-entity collection outcome stored inside an
// entity file and mirrored by the manifest entry for that entity.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

func (s RecordStatus) Valid() bool {
	return s == RecordSuccess || s == RecordFailed
}
