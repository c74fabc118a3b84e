// Package stream parses the SQL files prepared by the transform stage: one
// action per line, control lines prefixed by a fixed tag followed by a JSON
// metadata object, DML lines carrying executable SQL.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashita-ai/saisei/internal/wal"
)

// ActionKind classifies one line of a prepared SQL file.
type ActionKind string

const (
	ActionBegin     ActionKind = "begin"
	ActionCommit    ActionKind = "commit"
	ActionSwitch    ActionKind = "switchwal"
	ActionKeepalive ActionKind = "keepalive"
	ActionInsert    ActionKind = "insert"
	ActionUpdate    ActionKind = "update"
	ActionDelete    ActionKind = "delete"
	ActionTruncate  ActionKind = "truncate"
	ActionUnknown   ActionKind = "unknown"
)

// Control line tags. Exact strings are part of the contract with the
// producer: the transform stage emits these prefixes verbatim.
const (
	BeginTag     = "BEGIN "
	CommitTag    = "COMMIT "
	SwitchTag    = "SWITCHWAL "
	KeepaliveTag = "KEEPALIVE "
)

// Metadata carries the position information attached to control lines.
type Metadata struct {
	LSN       wal.LSN
	Xid       uint64
	Timestamp string
}

// Action is one classified line. SQL holds the raw statement text for the
// DML kinds and is empty for control lines.
type Action struct {
	Kind ActionKind
	Meta Metadata
	SQL  string
}

// payload is the JSON object following a control tag.
type payload struct {
	LSN       string `json:"lsn"`
	Xid       uint64 `json:"xid"`
	Timestamp string `json:"timestamp"`
}

// ParseAction classifies one line. Control tags are checked first, each
// advancing past its own tag to the JSON payload; DML detection by substring
// runs second. Anything else is ActionUnknown, which the caller treats as a
// protocol error.
//
// BEGIN and KEEPALIVE lines must carry a non-zero LSN and a non-empty
// timestamp; either missing is an error, fatal for the whole file.
func ParseAction(line string) (Action, error) {
	switch {
	case strings.HasPrefix(line, BeginTag):
		return parseControl(ActionBegin, strings.TrimPrefix(line, BeginTag), line)
	case strings.HasPrefix(line, CommitTag):
		return parseControl(ActionCommit, strings.TrimPrefix(line, CommitTag), line)
	case strings.HasPrefix(line, SwitchTag):
		return parseControl(ActionSwitch, strings.TrimPrefix(line, SwitchTag), line)
	case strings.HasPrefix(line, KeepaliveTag):
		return parseControl(ActionKeepalive, strings.TrimPrefix(line, KeepaliveTag), line)
	}

	// The producer emits exactly one action per line and control lines are
	// always tag-prefixed, so the substring search cannot be confused by
	// column data from a different action.
	switch {
	case strings.Contains(line, "INSERT INTO"):
		return Action{Kind: ActionInsert, SQL: line}, nil
	case strings.Contains(line, "UPDATE "):
		return Action{Kind: ActionUpdate, SQL: line}, nil
	case strings.Contains(line, "DELETE FROM "):
		return Action{Kind: ActionDelete, SQL: line}, nil
	case strings.Contains(line, "TRUNCATE "):
		return Action{Kind: ActionTruncate, SQL: line}, nil
	}

	return Action{Kind: ActionUnknown, SQL: line}, nil
}

func parseControl(kind ActionKind, message, line string) (Action, error) {
	var p payload
	if err := json.Unmarshal([]byte(message), &p); err != nil {
		return Action{}, fmt.Errorf("stream: parse %s message %q: %w", kind, line, err)
	}

	lsn, err := wal.ParseLSN(p.LSN)
	if err != nil {
		return Action{}, fmt.Errorf("stream: parse %s message %q: %w", kind, line, err)
	}

	if kind == ActionBegin || kind == ActionKeepalive {
		if !lsn.IsValid() {
			return Action{}, fmt.Errorf("stream: %s message %q has no LSN", kind, line)
		}
		if p.Timestamp == "" {
			return Action{}, fmt.Errorf("stream: %s message %q has no timestamp", kind, line)
		}
	}

	return Action{
		Kind: kind,
		Meta: Metadata{LSN: lsn, Xid: p.Xid, Timestamp: p.Timestamp},
	}, nil
}
