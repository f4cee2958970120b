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

// Package diskio provides the low-level file primitives the snapshot
// store is built on. It knows nothing about snapshots; it only promises
// that JSON files land atomically and are read back accountably.
package diskio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func FileExists(file string) (bool, error) {
	_, err := os.Stat(file)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func Fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// DecodeError marks a file whose bytes were read fine but do not parse as
// the expected JSON document. Callers use it to tell corruption apart from
// plain I/O failures.
type DecodeError struct {
	Path string
	Err  error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Path, e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// ReadJSON reads the file at path into out and reports the document size
// in bytes. A missing file surfaces as the underlying not-exist error;
// undecodable content surfaces as a DecodeError.
func ReadJSON(path string, out any) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return int64(len(data)), DecodeError{Path: path, Err: err}
	}
	return int64(len(data)), nil
}

// WriteJSONAtomic writes v as indented JSON to path with no observable
// intermediate state: the document goes to a uniquely named temp file in
// the same directory, is flushed and fsynced, then renamed over the
// target, and finally the directory is synced so the rename survives a
// crash. Readers either see the old file or the complete new one.
func WriteJSONAtomic(path string, v any) (int64, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return 0, errors.Wrapf(err, "marshal %q", path)
	}
	data = append(data, '\n')

	tmpPath := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "create temp file for %q", path)
	}

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "write temp file for %q", path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "flush temp file for %q", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "fsync temp file for %q", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "close temp file for %q", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, errors.Wrapf(err, "rename temp file onto %q", path)
	}
	if err := Fsync(filepath.Dir(path)); err != nil {
		return 0, errors.Wrapf(err, "fsync directory of %q", path)
	}
	return int64(len(data)), nil
}

// DirEntryInfos stats every regular file in dir in one pass. The snapshot
// writer uses it to stamp sizes and modification times into the manifest
// without a stat call per entity.
func DirEntryInfos(dir string) (map[string]os.FileInfo, error) {
	d, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	infos, err := d.Readdir(-1)
	if err != nil {
		return nil, err
	}

	files := make(map[string]os.FileInfo, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		files[info.Name()] = info
	}
	return files, nil
}
