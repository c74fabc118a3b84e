package wal

import (
	"fmt"
	"path/filepath"
)

// DefaultSegmentSize is the usual wal_segment_size of a source cluster.
// The actual value is read from the producer's context file at startup.
const DefaultSegmentSize = 16 * 1024 * 1024

// ValidSegmentSize reports whether sz is a power of two, the only segment
// sizes Postgres can be built with.
func ValidSegmentSize(sz uint64) bool {
	return sz > 0 && sz&(sz-1) == 0
}

// SegmentNumber returns the number of the segment containing lsn.
func SegmentNumber(lsn LSN, segSz uint64) uint64 {
	return uint64(lsn) / segSz
}

// SegmentName derives the 24-hex-digit segment name from the timeline, the
// segment number, and the segment size: 8 digits of timeline, then the
// segment number split at the 4 GiB xlogid boundary.
func SegmentName(timeline uint32, segno, segSz uint64) string {
	segsPerXLogID := uint64(0x100000000) / segSz
	return fmt.Sprintf("%08X%08X%08X",
		timeline,
		segno/segsPerXLogID,
		segno%segsPerXLogID)
}

// FileName returns the path of the SQL file hosting lsn, as named by the
// transform stage: <dir>/<segment name>.sql.
func FileName(dir string, timeline uint32, lsn LSN, segSz uint64) string {
	name := SegmentName(timeline, SegmentNumber(lsn, segSz), segSz)
	return filepath.Join(dir, name+".sql")
}
