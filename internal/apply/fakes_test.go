package apply

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ashita-ai/saisei/internal/sentinel"
	"github.com/ashita-ai/saisei/internal/wal"
)

// fakeSession records every call the replay engine makes, in order, and can
// be told to fail a statement by substring.
type fakeSession struct {
	calls    []string
	oid      uint32
	progress wal.LSN
	failOn   string // substring of a statement to fail on
	closed   bool
}

func (f *fakeSession) Begin(ctx context.Context) error {
	f.calls = append(f.calls, "BEGIN")
	return nil
}

func (f *fakeSession) Commit(ctx context.Context) error {
	f.calls = append(f.calls, "COMMIT")
	return nil
}

func (f *fakeSession) Exec(ctx context.Context, sql string) error {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return fmt.Errorf("target: execute %q: boom", sql)
	}
	f.calls = append(f.calls, "EXEC "+sql)
	return nil
}

func (f *fakeSession) OriginOid(ctx context.Context, name string) (uint32, error) {
	return f.oid, nil
}

func (f *fakeSession) OriginProgress(ctx context.Context, name string, flush bool) (wal.LSN, error) {
	return f.progress, nil
}

func (f *fakeSession) OriginSessionSetup(ctx context.Context, name string) error {
	f.calls = append(f.calls, "SESSION_SETUP "+name)
	return nil
}

func (f *fakeSession) OriginXactSetup(ctx context.Context, lsn wal.LSN, ts string) error {
	f.calls = append(f.calls, "XACT_SETUP "+lsn.String())
	return nil
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

// committed returns how many transactions the session committed.
func (f *fakeSession) committed() int {
	n := 0
	for _, c := range f.calls {
		if c == "COMMIT" {
			n++
		}
	}
	return n
}

// fakeSentinel serves fixed values and records sync positions. onSync, when
// set, produces the values for each successive Sync call.
type fakeSentinel struct {
	values sentinel.Values
	getErr error
	gets   int
	syncs  []wal.LSN
	onGet  func(n int) (sentinel.Values, error)
	onSync func(n int, replay wal.LSN) sentinel.Values
}

func (f *fakeSentinel) Get(ctx context.Context) (sentinel.Values, error) {
	f.gets++
	if f.onGet != nil {
		return f.onGet(f.gets)
	}
	if f.getErr != nil {
		return sentinel.Values{}, f.getErr
	}
	return f.values, nil
}

func (f *fakeSentinel) Sync(ctx context.Context, replayLSN wal.LSN) (sentinel.Values, error) {
	f.syncs = append(f.syncs, replayLSN)
	if f.onSync != nil {
		return f.onSync(len(f.syncs), replayLSN), nil
	}
	v := f.values
	v.ReplayLSN = replayLSN
	return v, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestApplier wires an applier around fakes with the stream context
// already established, as bootstrap would leave it.
func newTestApplier(t *testing.T, session *fakeSession, sent *fakeSentinel, cfg Config) *Applier {
	t.Helper()
	if cfg.Origin == "" {
		cfg.Origin = "saisei"
	}
	a := New(cfg, session, sent, testLogger())
	a.system.Timeline = 1
	a.walSegSz = wal.DefaultSegmentSize
	return a
}
