package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/saisei/internal/wal"
)

func TestParseAction_Begin(t *testing.T) {
	line := `BEGIN {"lsn":"0/A0000028","xid":42,"timestamp":"2024-01-15T10:30:00Z"}`

	action, err := ParseAction(line)
	require.NoError(t, err)

	assert.Equal(t, ActionBegin, action.Kind)
	assert.Equal(t, wal.LSN(0xA0000028), action.Meta.LSN)
	assert.Equal(t, uint64(42), action.Meta.Xid)
	assert.Equal(t, "2024-01-15T10:30:00Z", action.Meta.Timestamp)
	assert.Empty(t, action.SQL)
}

func TestParseAction_Commit(t *testing.T) {
	line := `COMMIT {"lsn":"0/A0000060","xid":42,"timestamp":"2024-01-15T10:30:01Z"}`

	action, err := ParseAction(line)
	require.NoError(t, err)

	assert.Equal(t, ActionCommit, action.Kind)
	assert.Equal(t, wal.LSN(0xA0000060), action.Meta.LSN)
}

func TestParseAction_Switch(t *testing.T) {
	line := `SWITCHWAL {"lsn":"0/A1000000","xid":0,"timestamp":""}`

	action, err := ParseAction(line)
	require.NoError(t, err)

	assert.Equal(t, ActionSwitch, action.Kind)
	assert.Equal(t, wal.LSN(0xA1000000), action.Meta.LSN)
}

func TestParseAction_Keepalive(t *testing.T) {
	line := `KEEPALIVE {"lsn":"0/B0000000","timestamp":"2024-01-15T10:31:00Z"}`

	action, err := ParseAction(line)
	require.NoError(t, err)

	assert.Equal(t, ActionKeepalive, action.Kind)
	assert.Equal(t, wal.LSN(0xB0000000), action.Meta.LSN)
	assert.Equal(t, "2024-01-15T10:31:00Z", action.Meta.Timestamp)
}

func TestParseAction_DML(t *testing.T) {
	tests := []struct {
		line string
		kind ActionKind
	}{
		{`INSERT INTO t (id) VALUES (1);`, ActionInsert},
		{`UPDATE t SET v = 2 WHERE id = 1;`, ActionUpdate},
		{`DELETE FROM t WHERE id = 1;`, ActionDelete},
		{`TRUNCATE ONLY public.t;`, ActionTruncate},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			action, err := ParseAction(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, action.Kind)
			assert.Equal(t, tt.line, action.SQL)
		})
	}
}

// An INSERT whose column data happens to contain "UPDATE " must classify as
// INSERT: detection order is part of the contract.
func TestParseAction_DMLOrder(t *testing.T) {
	line := `INSERT INTO t (note) VALUES ('UPDATE your settings');`

	action, err := ParseAction(line)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, action.Kind)
}

// Control tags win over DML substrings: a BEGIN line never classifies as
// DML no matter what its payload contains.
func TestParseAction_TagBeforeDML(t *testing.T) {
	line := `BEGIN {"lsn":"0/1","xid":7,"timestamp":"2024-01-15T10:30:00Z","origin":"INSERT INTO t"}`

	action, err := ParseAction(line)
	require.NoError(t, err)
	assert.Equal(t, ActionBegin, action.Kind)
}

func TestParseAction_Unknown(t *testing.T) {
	action, err := ParseAction(`SELECT 1;`)
	require.NoError(t, err)
	assert.Equal(t, ActionUnknown, action.Kind)
}

func TestParseAction_BeginMissingLSN(t *testing.T) {
	_, err := ParseAction(`BEGIN {"xid":42,"timestamp":"2024-01-15T10:30:00Z"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LSN")
}

func TestParseAction_BeginMissingTimestamp(t *testing.T) {
	_, err := ParseAction(`BEGIN {"lsn":"0/A0000028","xid":42}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no timestamp")
}

func TestParseAction_KeepaliveMissingLSN(t *testing.T) {
	_, err := ParseAction(`KEEPALIVE {"timestamp":"2024-01-15T10:31:00Z"}`)
	require.Error(t, err)
}

// COMMIT and SWITCH payloads are not required to carry a timestamp; the
// replay engine checks their LSNs where it needs them.
func TestParseAction_CommitWithoutTimestamp(t *testing.T) {
	action, err := ParseAction(`COMMIT {"lsn":"0/A0000060","xid":42}`)
	require.NoError(t, err)
	assert.Equal(t, ActionCommit, action.Kind)
}

func TestParseAction_MalformedJSON(t *testing.T) {
	_, err := ParseAction(`BEGIN {lsn:`)
	require.Error(t, err)
}

func TestParseAction_BadLSN(t *testing.T) {
	_, err := ParseAction(`COMMIT {"lsn":"nope","xid":1}`)
	require.Error(t, err)
}
