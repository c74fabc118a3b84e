// Package apply replays prepared SQL files onto the target database while
// advancing a replication origin. The origin is the progress of record: it
// moves only at commit of the transaction carrying the data it attests to,
// so a crash between files or mid-file never records partial progress and
// restart is always safe.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/saisei/internal/sentinel"
	"github.com/ashita-ai/saisei/internal/stream"
	"github.com/ashita-ai/saisei/internal/wal"
)

// DefaultPollInterval is the single retry knob: it paces the apply-gate
// wait, the wait for a file to appear, and the tail-follow of a growing
// file.
const DefaultPollInterval = 10 * time.Second

// Session is the long-lived target connection the applier replays into.
// Implemented by target.Session.
type Session interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Exec(ctx context.Context, sql string) error
	OriginOid(ctx context.Context, name string) (uint32, error)
	OriginProgress(ctx context.Context, name string, flush bool) (wal.LSN, error)
	OriginSessionSetup(ctx context.Context, name string) error
	OriginXactSetup(ctx context.Context, lsn wal.LSN, ts string) error
	Close(ctx context.Context) error
}

// Sentinel is the shared control record on the source database.
// Implemented by sentinel.Client.
type Sentinel interface {
	Get(ctx context.Context) (sentinel.Values, error)
	Sync(ctx context.Context, replayLSN wal.LSN) (sentinel.Values, error)
}

// Config carries the immutable inputs of a catch-up run.
type Config struct {
	Dir    string // directory holding the prepared SQL files
	Origin string // replication origin name on the target

	// Endpos is the command-line override. It wins over the sentinel
	// endpos, with a warning, when both are set.
	Endpos wal.LSN

	// WaitForSentinel makes the run block until the sentinel apply gate
	// opens before touching any file (prefetch mode).
	WaitForSentinel bool

	PollInterval time.Duration
}

// Applier owns the catch-up state: the target session, the control bounds,
// and the last-applied position. It is a single logical thread of control;
// the only concurrent actors it observes are the producer (through the
// filesystem) and the sentinel writer (through the sentinel record).
type Applier struct {
	cfg     Config
	logger  *slog.Logger
	session Session
	sent    Sentinel

	system   stream.SystemInfo
	walSegSz uint64

	// previousLSN is read by the progress reporter goroutine; everything
	// else on the struct is touched only by Run.
	previousLSN atomic.Uint64

	startpos      wal.LSN
	endpos        wal.LSN
	apply         bool
	reachedEndPos bool
	currentFile   string
}

// New assembles an applier. The session must already be connected; the
// applier takes ownership and closes it when Run returns.
func New(cfg Config, session Session, sent Sentinel, logger *slog.Logger) *Applier {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	a := &Applier{
		cfg:     cfg,
		logger:  logger,
		session: session,
		sent:    sent,
	}
	a.registerMetrics()
	return a
}

// readStreamContext loads the producer's context file and records the
// source system and segment size for file-name arithmetic.
func (a *Applier) readStreamContext() (stream.Context, error) {
	streamCtx, err := stream.ReadContext(a.cfg.Dir)
	if err != nil {
		return stream.Context{}, err
	}
	a.system = streamCtx.System
	a.walSegSz = streamCtx.WalSegmentSize

	a.logger.Debug("apply: stream context",
		"system_identifier", streamCtx.System.Identifier,
		"timeline", streamCtx.System.Timeline,
		"wal_segment_size", streamCtx.WalSegmentSize)

	return streamCtx, nil
}

// ReplayLSN returns the replay position, for progress reporting: the LSN of
// the last applied commit or keepalive, or of the last SWITCH record passed.
// A SWITCH moves it without advancing the target origin. Safe to call from
// another goroutine.
func (a *Applier) ReplayLSN() wal.LSN {
	return wal.LSN(a.previousLSN.Load())
}

func (a *Applier) setPreviousLSN(lsn wal.LSN) {
	a.previousLSN.Store(uint64(lsn))
}

// bootstrapOrigin resolves the origin on the target, reads its progress as
// the resume position, computes the first file to replay, and attaches the
// session to the origin. An unregistered origin is a configuration error:
// the applier never creates origins, setup does.
func (a *Applier) bootstrapOrigin(ctx context.Context) error {
	if a.cfg.Endpos.IsValid() {
		if a.endpos.IsValid() {
			a.logger.Warn("apply: --endpos overrides the sentinel endpos",
				"endpos", a.cfg.Endpos,
				"sentinel_endpos", a.endpos)
		}
		a.endpos = a.cfg.Endpos
	}

	oid, err := a.session.OriginOid(ctx, a.cfg.Origin)
	if err != nil {
		return err
	}
	if oid == 0 {
		return fmt.Errorf("apply: replication origin %q not found on target database", a.cfg.Origin)
	}

	lsn, err := a.session.OriginProgress(ctx, a.cfg.Origin, true)
	if err != nil {
		return err
	}
	a.setPreviousLSN(lsn)
	a.currentFile = a.computeFileName()

	a.logger.Debug("apply: replication origin resolved",
		"origin", a.cfg.Origin,
		"oid", oid,
		"lsn", lsn,
		"file", a.currentFile)

	return a.session.OriginSessionSetup(ctx, a.cfg.Origin)
}

// computeFileName maps the last-applied LSN to the SQL file hosting it.
func (a *Applier) computeFileName() string {
	return wal.FileName(a.cfg.Dir, a.system.Timeline, a.ReplayLSN(), a.walSegSz)
}
