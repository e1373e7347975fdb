// Package iohelper reads HTTP bodies with size limits so a hostile target
// cannot exhaust memory during a crawl or probe.
package iohelper

import (
	"io"
)

// Body size limits.
const (
	// SmallMaxBodySize bounds API responses from the scan daemon (64KB).
	SmallMaxBodySize int64 = 64 * 1024

	// PageMaxBodySize bounds crawled pages and probe responses (2MB).
	PageMaxBodySize int64 = 2 * 1024 * 1024

	// drainLimit is the most we read from an unread body before closing.
	drainLimit int64 = 64 * 1024
)

// ReadBody reads at most maxSize bytes from r. A nil reader yields an empty
// slice.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadAndClose reads up to maxSize bytes from rc, then drains and closes it
// so the underlying connection returns to the pool.
func ReadAndClose(rc io.ReadCloser, maxSize int64) ([]byte, error) {
	if rc == nil {
		return []byte{}, nil
	}
	defer DrainAndClose(rc)
	return ReadBody(rc, maxSize)
}

// DrainAndClose discards what is left of rc (bounded) and closes it.
func DrainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, drainLimit))
	_ = rc.Close()
}
