package stream

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/saisei/internal/wal"
)

// ContextFileName is the file the producer writes next to the SQL files,
// describing the source cluster the stream was decoded from.
const ContextFileName = "context.json"

// SystemInfo identifies the source cluster and history branch.
type SystemInfo struct {
	Identifier string `json:"system_identifier"`
	Timeline   uint32 `json:"timeline"`
}

// Context is the producer's description of the stream: which cluster it
// comes from and how large its WAL segments are.
type Context struct {
	System         SystemInfo
	WalSegmentSize uint64
}

type contextFile struct {
	SystemIdentifier string `json:"system_identifier"`
	Timeline         uint32 `json:"timeline"`
	WalSegmentSize   uint64 `json:"wal_segment_size"`
}

// ReadContext loads the producer's context file from the SQL-file directory.
// The segment size must be a power of two.
func ReadContext(dir string) (Context, error) {
	path := filepath.Join(dir, ContextFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return Context{}, fmt.Errorf("stream: read context file %q: %w", path, err)
	}

	var cf contextFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return Context{}, fmt.Errorf("stream: parse context file %q: %w", path, err)
	}

	if cf.SystemIdentifier == "" {
		return Context{}, fmt.Errorf("stream: context file %q has no system_identifier", path)
	}
	if cf.Timeline == 0 {
		return Context{}, fmt.Errorf("stream: context file %q has no timeline", path)
	}
	if !wal.ValidSegmentSize(cf.WalSegmentSize) {
		return Context{}, fmt.Errorf("stream: context file %q: wal_segment_size %d is not a power of two",
			path, cf.WalSegmentSize)
	}

	return Context{
		System:         SystemInfo{Identifier: cf.SystemIdentifier, Timeline: cf.Timeline},
		WalSegmentSize: cf.WalSegmentSize,
	}, nil
}
