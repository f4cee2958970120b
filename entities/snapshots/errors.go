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

import "fmt"

// ErrNotFound marks a snapshot, entity, or store file that does not exist.
// Read paths usually translate it into a nil result rather than surfacing
// it to callers.
type ErrNotFound struct {
	err error
}

func (e ErrNotFound) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e ErrNotFound) Unwrap() error {
	return e.err
}

func NewErrNotFound(err error) ErrNotFound {
	return ErrNotFound{err}
}

// ErrCorrupt marks a file that exists but cannot be parsed or fails its
// schema validation. Downstream callers see the same "no usable data"
// surface as not-found; only logs tell the two apart.
type ErrCorrupt struct {
	err error
}

func (e ErrCorrupt) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e ErrCorrupt) Unwrap() error {
	return e.err
}

func NewErrCorrupt(err error) ErrCorrupt {
	return ErrCorrupt{err}
}

// ErrInternal marks an unexpected I/O failure distinct from both
// not-found and corruption.
type ErrInternal struct {
	err error
}

func (e ErrInternal) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e ErrInternal) Unwrap() error {
	return e.err
}

func NewErrInternal(err error) ErrInternal {
	return ErrInternal{err}
}

// EntityError is a structured failure record produced at the point of
// failure and carried through untouched. The string form exists only for
// the audit file and human logs; nothing ever parses it back.
type EntityError struct {
	EntityID  string `json:"entityId,omitempty"`
	Operation string `json:"operation,omitempty"`
	Message   string `json:"message"`
}

func (e EntityError) String() string {
	switch {
	case e.EntityID != "" && e.Operation != "":
		return fmt.Sprintf("%s: %s: %s", e.EntityID, e.Operation, e.Message)
	case e.EntityID != "":
		return fmt.Sprintf("%s: %s", e.EntityID, e.Message)
	case e.Operation != "":
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	default:
		return e.Message
	}
}

// RawErrors renders structured records into the flat audit strings stored
// in metadata.
func RawErrors(errs []EntityError) []string {
	if len(errs) == 0 {
		return []string{}
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.String()
	}
	return out
}
