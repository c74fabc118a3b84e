// Package saisei is the public API for embedding the catch-up applier.
//
// The applier replays SQL files prepared by an upstream logical-decoding
// transform onto a target Postgres, advancing a replication origin
// atomically with each transaction so the run can be killed and resumed at
// any point:
//
//	err := saisei.Run(ctx,
//	    saisei.WithVersion(version),
//	    saisei.WithDir("/var/lib/saisei/wal"),
//	    saisei.WithEndpos("0/A0000060"),
//	)
//
// The import graph enforces a strict no-cycle rule: saisei (root) imports
// internal/*, but internal/* never imports saisei (root).
package saisei

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/saisei/internal/apply"
	"github.com/ashita-ai/saisei/internal/config"
	"github.com/ashita-ai/saisei/internal/sentinel"
	"github.com/ashita-ai/saisei/internal/target"
	"github.com/ashita-ai/saisei/internal/telemetry"
	"github.com/ashita-ai/saisei/internal/wal"
)

// Run performs one catch-up: it loads configuration, connects the target
// session, and drives the applier until the end position is reached or ctx
// is cancelled. Cancellation is a clean exit, not an error.
func Run(ctx context.Context, opts ...Option) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var o resolvedOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.sourceURI != "" {
		cfg.SourceURI = o.sourceURI
	}
	if o.targetURI != "" {
		cfg.TargetURI = o.targetURI
	}
	if o.origin != "" {
		cfg.Origin = o.origin
	}
	if o.dir != "" {
		cfg.Dir = o.dir
	}
	if o.endpos != "" {
		lsn, err := wal.ParseLSN(o.endpos)
		if err != nil {
			return fmt.Errorf("saisei: endpos: %w", err)
		}
		cfg.Endpos = lsn
	}
	if o.prefetchSet {
		cfg.Prefetch = o.prefetch
	}
	if o.pollInterval > 0 {
		cfg.PollInterval = o.pollInterval
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: ParseLogLevel(cfg.LogLevel),
		}))
	}
	// One run identifier scopes every log line of this catch-up.
	logger = logger.With("run_id", uuid.New())

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return err
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	logger.Info("saisei starting",
		"version", version,
		"origin", cfg.Origin,
		"dir", cfg.Dir)

	session, err := target.Connect(ctx, cfg.TargetURI, logger)
	if err != nil {
		return err
	}

	applier := apply.New(apply.Config{
		Dir:             cfg.Dir,
		Origin:          cfg.Origin,
		Endpos:          cfg.Endpos,
		WaitForSentinel: cfg.Prefetch,
		PollInterval:    cfg.PollInterval,
	}, session, sentinel.NewClient(cfg.SourceURI, logger), logger)

	// The reporter lives exactly as long as the driver: its context is
	// cancelled when Run returns, successfully or not.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return applier.Run(gctx)
	})
	g.Go(func() error {
		reportProgress(gctx, applier, logger, cfg.PollInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("saisei stopped", "replay_lsn", applier.ReplayLSN())
	return nil
}

// reportProgress periodically logs the replay position so an operator can
// follow a long catch-up without debug logging.
func reportProgress(ctx context.Context, applier *apply.Applier, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lsn := applier.ReplayLSN(); lsn.IsValid() {
				logger.Info("saisei progress", "replay_lsn", lsn)
			}
		}
	}
}

// ParseLogLevel maps the SAISEI_LOG_LEVEL values onto slog levels,
// defaulting to info.
func ParseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
