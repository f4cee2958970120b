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

package diskio

import (
	"io"
	"time"
)

type MeteredReaderCallback func(read int64, nanoseconds int64)

// MeteredReader passes reads through to the underlying reader and reports
// byte counts and latency to the attached callback. The snapshot reader
// wraps entity and aggregate files with it to feed the bytes-read metric.
type MeteredReader struct {
	r  io.Reader
	cb MeteredReaderCallback
}

func NewMeteredReader(r io.Reader, cb MeteredReaderCallback) *MeteredReader {
	return &MeteredReader{r: r, cb: cb}
}

// Read reports any bytes transferred, including those of the final read
// that also returns io.EOF, so read-to-end callers account every byte.
func (m *MeteredReader) Read(p []byte) (n int, err error) {
	start := time.Now()
	n, err = m.r.Read(p)
	took := time.Since(start).Nanoseconds()

	if m.cb != nil && n > 0 {
		m.cb(int64(n), took)
	}
	return
}
