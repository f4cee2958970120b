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

// Package pathguard validates caller-supplied identifiers and resolves
// them into paths guaranteed to stay inside the snapshots root. Every
// other store component goes through it before touching the filesystem;
// ids and path segments are assumed attacker controlled.
package pathguard

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// TraversalError marks a path that would resolve outside the snapshots
// root, either lexically or through a symlink. Callers must propagate it;
// swallowing this class of error disables the store's security boundary.
type TraversalError struct {
	Path string
}

func (e TraversalError) Error() string {
	return fmt.Sprintf("path %q escapes the snapshots root", e.Path)
}

// InvalidIDError marks an identifier that failed the character-class
// check before any path resolution was attempted.
type InvalidIDError struct {
	ID string
}

func (e InvalidIDError) Error() string {
	return fmt.Sprintf("invalid id %q: allowed characters are A-Z, a-z, 0-9, _, -", e.ID)
}

// ValidateID is the first line of defense: it accepts only the restricted
// character class and rejects everything else, independent of whatever
// path resolution happens afterwards.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return InvalidIDError{ID: id}
	}
	return nil
}

// ValidateSnapshotID additionally requires the strict YYYY-MM-DD shape
// snapshot ids are keyed by.
func ValidateSnapshotID(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if _, err := time.Parse("2006-01-02", id); err != nil {
		return InvalidIDError{ID: id}
	}
	return nil
}

// ResolveForWrite joins base and segments purely lexically and rejects
// the result if it escapes base. No filesystem access happens, so it is
// safe for targets that do not exist yet.
func ResolveForWrite(base string, segments ...string) (string, error) {
	if base == "" {
		return "", errors.New("empty base directory")
	}
	if len(segments) == 0 {
		return "", errors.New("no path segments given")
	}
	for _, seg := range segments {
		if seg == "" || filepath.IsAbs(seg) {
			return "", TraversalError{Path: seg}
		}
	}
	parts := append([]string{base}, segments...)
	candidate := filepath.Clean(filepath.Join(parts...))

	rel, err := filepath.Rel(base, candidate)
	if err != nil {
		return "", TraversalError{Path: candidate}
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", TraversalError{Path: candidate}
	}
	return candidate, nil
}

// ResolveForRead resolves the real path of both base and candidate,
// following symlinks, and rejects the candidate if its real location is
// outside the real base. This defeats symlink escapes that the lexical
// check cannot see; it requires the target to exist, so missing targets
// surface as the underlying not-exist error for callers to translate.
func ResolveForRead(base string, segments ...string) (string, error) {
	candidate, err := ResolveForWrite(base, segments...)
	if err != nil {
		return "", err
	}

	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", errors.Wrapf(err, "resolve real path of base %q", base)
	}
	realPath, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// not-exist passes through untouched so readers can map it to
		// their null result
		return "", err
	}

	rel, err := filepath.Rel(realBase, realPath)
	if err != nil {
		return "", TraversalError{Path: realPath}
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", TraversalError{Path: realPath}
	}
	return realPath, nil
}
