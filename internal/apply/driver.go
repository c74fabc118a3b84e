package apply

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// Run executes one catch-up: wait for the apply gate if asked, read the
// producer's context, bootstrap the origin, then replay files in WAL order
// until the end position is reached or the run is cancelled. Cancellation
// is honored at every poll boundary; it is never an error.
func (a *Applier) Run(ctx context.Context) error {
	defer func() { _ = a.session.Close(context.Background()) }()

	if a.cfg.WaitForSentinel {
		if err := a.waitForApply(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	streamCtx, err := a.readStreamContext()
	if err != nil {
		return err
	}

	if err := a.bootstrapOrigin(ctx); err != nil {
		return err
	}

	a.logger.Info("apply: catching up",
		"lsn", a.ReplayLSN(),
		"file", a.currentFile,
		"timeline", streamCtx.System.Timeline,
		"wal_segment_size", a.walSegSz)
	if a.endpos.IsValid() {
		a.logger.Info("apply: stopping at end position", "endpos", a.endpos)
	}

	for {
		currentFile := a.currentFile

		if ctx.Err() != nil {
			a.logger.Info("apply: shutdown requested, exiting")
			return nil
		}

		// The producer may not have created the expected file yet.
		if _, err := os.Stat(currentFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			a.logger.Debug("apply: file does not exist yet, retrying",
				"file", currentFile,
				"retry_in", a.cfg.PollInterval)
			if !a.sleep(ctx) {
				return nil
			}
			continue
		}

		// A started file is replayed to its end; a shutdown request is
		// honored at the next boundary, not inside the file.
		if err := a.applyFile(context.WithoutCancel(ctx), currentFile); err != nil {
			return err
		}
		filesReplayed.Add(ctx, 1)

		// Progress report and control refresh. Best effort: a failed sync
		// is retried implicitly on the next iteration.
		a.syncSentinel(ctx)

		if !a.reachedEndPos && a.endpos.IsValid() && a.endpos <= a.ReplayLSN() {
			a.reachedEndPos = true
			a.logger.Info("apply: reached end position",
				"endpos", a.endpos,
				"lsn", a.ReplayLSN())
		}
		if a.reachedEndPos {
			return nil
		}

		// The control plane can close the apply gate mid-run; pause until
		// it re-opens rather than treating the gate as one-shot.
		if a.cfg.WaitForSentinel && !a.apply {
			a.logger.Info("apply: sentinel apply disabled, pausing")
			if err := a.waitForApply(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}

		next := a.computeFileName()
		if next == currentFile {
			// Same file: the producer has not rolled the segment yet. New
			// lines may have been appended; re-read after a pause. The
			// origin progress keeps re-reads from double-applying.
			a.logger.Debug("apply: reached end of file",
				"file", currentFile,
				"lsn", a.ReplayLSN())
			if !a.sleep(ctx) {
				return nil
			}
		}
		a.currentFile = next
	}
}

// waitForApply polls the sentinel until the apply gate opens, adopting the
// control bounds when it does. Transient read failures warn and retry.
func (a *Applier) waitForApply(ctx context.Context) error {
	firstLoop := true

	for {
		if ctx.Err() != nil {
			a.logger.Info("apply: shutdown requested while waiting for apply mode")
			return context.Canceled
		}

		values, err := a.sent.Get(ctx)
		if err != nil {
			a.logger.Warn("apply: failed to fetch sentinel, retrying",
				"error", err,
				"retry_in", a.cfg.PollInterval)
			if !a.sleep(ctx) {
				return context.Canceled
			}
			continue
		}

		a.logger.Debug("apply: sentinel",
			"startpos", values.Startpos,
			"endpos", values.Endpos,
			"apply", values.Apply)

		if values.Apply {
			if values.Startpos.IsValid() {
				a.startpos = values.Startpos
			}
			if values.Endpos.IsValid() {
				a.endpos = values.Endpos
			}
			a.apply = true
			a.logger.Info("apply: sentinel has enabled applying changes")
			return nil
		}

		if firstLoop {
			firstLoop = false
			a.logger.Info("apply: waiting until the sentinel apply mode is enabled")
		}
		if !a.sleep(ctx) {
			return context.Canceled
		}
	}
}

// syncSentinel reports the replay position and adopts updated control
// fields. Failures only warn: the sentinel is advisory between files and
// the next iteration syncs again.
func (a *Applier) syncSentinel(ctx context.Context) {
	values, err := a.sent.Sync(ctx, a.ReplayLSN())
	if err != nil {
		a.logger.Warn("apply: failed to sync with the sentinel", "error", err)
		return
	}
	// Unset sentinel bounds leave the current ones alone, so a sentinel
	// that never carried an endpos cannot erase the command-line one.
	if values.Startpos.IsValid() {
		a.startpos = values.Startpos
	}
	if values.Endpos.IsValid() {
		a.endpos = values.Endpos
	}
	a.apply = values.Apply
}

// sleep pauses for one poll interval, returning false when the run was
// cancelled instead.
func (a *Applier) sleep(ctx context.Context) bool {
	timer := time.NewTimer(a.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
