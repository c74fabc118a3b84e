package apply

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/saisei/internal/stream"
)

// applyFile replays one prepared SQL file end to end.
//
// A transaction is replayed only once the starting position has been
// passed: previousLSN < BEGIN lsn. Files are re-read when tail-following a
// growing file, so already-applied transactions are seen again and must be
// skipped; the origin progress makes that decision, not file offsets.
//
// The endpos comparisons differ on purpose. BEGIN and COMMIT stop when
// endpos <= lsn, so no transaction past endpos is ever applied. The
// KEEPALIVE pre-check is strict (endpos < lsn): a keepalive sitting exactly
// at endpos is still applied, which is how the origin is advanced to
// exactly endpos.
func (a *Applier) applyFile(ctx context.Context, path string) error {
	ctx, span := applyTracer.Start(ctx, "apply.file",
		trace.WithAttributes(attribute.String("file", path)))
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("apply: read %q: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")

	a.logger.Info("apply: replaying changes", "file", path)
	a.logger.Debug("apply: file read", "file", path, "lines", len(lines))

	reachedStart := false

	for i := 0; i < len(lines) && !a.reachedEndPos; i++ {
		line := lines[i]
		if line == "" {
			continue
		}

		action, err := stream.ParseAction(line)
		if err != nil {
			return fmt.Errorf("apply: %s line %d: %w", path, i+1, err)
		}

		switch action.Kind {
		case stream.ActionSwitch:
			// A SWITCH is written when the producer rolls to the next WAL
			// segment, so it can only be the last line of its file.
			if rest := nextNonEmpty(lines, i+1); rest != -1 {
				return fmt.Errorf("apply: %s line %d: SWITCH before last line (line %d follows)",
					path, i+1, rest+1)
			}
			if !action.Meta.LSN.IsValid() {
				return fmt.Errorf("apply: %s line %d: SWITCH message has no LSN", path, i+1)
			}
			a.logger.Debug("apply: switch",
				"from", a.ReplayLSN(),
				"to", action.Meta.LSN)
			a.setPreviousLSN(action.Meta.LSN)
			return nil

		case stream.ActionBegin:
			if !reachedStart {
				reachedStart = a.ReplayLSN() < action.Meta.LSN
			}
			a.logger.Debug("apply: begin",
				"xid", action.Meta.Xid,
				"lsn", action.Meta.LSN,
				"timestamp", action.Meta.Timestamp,
				"previous_lsn", a.ReplayLSN(),
				"skipping", !reachedStart)

			// Stop before a transaction that commits past endpos: the
			// whole transaction is beyond the bound.
			if a.endpos.IsValid() && a.endpos <= action.Meta.LSN {
				a.reachedEndPos = true
				a.logger.Info("apply: reached end position",
					"endpos", a.endpos,
					"lsn", action.Meta.LSN)
				continue
			}
			if !reachedStart {
				continue
			}

			if err := a.session.Begin(ctx); err != nil {
				return err
			}
			if err := a.session.OriginXactSetup(ctx, action.Meta.LSN, action.Meta.Timestamp); err != nil {
				return err
			}

		case stream.ActionCommit:
			if !reachedStart {
				continue
			}
			if !action.Meta.LSN.IsValid() {
				return fmt.Errorf("apply: %s line %d: COMMIT message has no LSN", path, i+1)
			}
			a.logger.Debug("apply: commit",
				"xid", action.Meta.Xid,
				"lsn", action.Meta.LSN)

			// A transaction committing at or past endpos is not applied.
			// The BEGIN check cannot catch one that straddles the bound,
			// so the commit record is checked before it is executed; the
			// open transaction aborts when the session closes, leaving
			// the origin untouched.
			if a.endpos.IsValid() && a.endpos <= action.Meta.LSN {
				a.reachedEndPos = true
				a.logger.Info("apply: reached end position, aborting transaction",
					"endpos", a.endpos,
					"lsn", action.Meta.LSN)
				continue
			}

			if err := a.session.Commit(ctx); err != nil {
				return err
			}
			a.setPreviousLSN(action.Meta.LSN)
			transactionsApplied.Add(ctx, 1)

		case stream.ActionKeepalive:
			if !reachedStart {
				reachedStart = a.ReplayLSN() < action.Meta.LSN
			}
			a.logger.Debug("apply: keepalive",
				"lsn", action.Meta.LSN,
				"timestamp", action.Meta.Timestamp,
				"previous_lsn", a.ReplayLSN(),
				"skipping", !reachedStart)

			// Strictly-greater only: a keepalive at exactly endpos is
			// still applied so the origin reaches endpos.
			if a.endpos.IsValid() && a.endpos < action.Meta.LSN {
				a.reachedEndPos = true
				a.logger.Info("apply: reached end position",
					"endpos", a.endpos,
					"lsn", action.Meta.LSN)
				continue
			}
			if !reachedStart {
				continue
			}

			// An origin-only transaction: no data, just the advance.
			if err := a.session.Begin(ctx); err != nil {
				return err
			}
			if err := a.session.OriginXactSetup(ctx, action.Meta.LSN, action.Meta.Timestamp); err != nil {
				return err
			}
			if err := a.session.Commit(ctx); err != nil {
				return err
			}
			a.setPreviousLSN(action.Meta.LSN)
			keepalivesApplied.Add(ctx, 1)

			if a.endpos.IsValid() && a.endpos <= a.ReplayLSN() {
				a.reachedEndPos = true
				a.logger.Info("apply: reached end position",
					"endpos", a.endpos,
					"lsn", a.ReplayLSN())
			}

		case stream.ActionInsert, stream.ActionUpdate, stream.ActionDelete, stream.ActionTruncate:
			if !reachedStart {
				continue
			}
			sql := strings.TrimSuffix(action.SQL, ";")
			if err := a.session.Exec(ctx, sql); err != nil {
				return err
			}
			statementsApplied.Add(ctx, 1)

		default:
			return fmt.Errorf("apply: %s line %d: failed to classify %q", path, i+1, line)
		}
	}

	return nil
}

// nextNonEmpty returns the index of the first non-empty line at or after
// start, or -1 when only blank lines remain.
func nextNonEmpty(lines []string, start int) int {
	for j := start; j < len(lines); j++ {
		if lines[j] != "" {
			return j
		}
	}
	return -1
}
