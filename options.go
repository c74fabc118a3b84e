package saisei

import (
	"log/slog"
	"time"
)

// Option configures a catch-up run.
type Option func(*resolvedOptions)

// resolvedOptions holds the overrides collected from the options. Unexported —
// callers use the With* functions. Anything left unset falls back to the
// environment configuration.
type resolvedOptions struct {
	sourceURI    string
	targetURI    string
	origin       string
	dir          string
	endpos       string
	prefetch     bool
	prefetchSet  bool
	pollInterval time.Duration
	logger       *slog.Logger
	version      string
}

// WithSourceURI overrides the source connection string (SAISEI_SOURCE_PGURI).
func WithSourceURI(uri string) Option {
	return func(o *resolvedOptions) { o.sourceURI = uri }
}

// WithTargetURI overrides the target connection string (SAISEI_TARGET_PGURI).
func WithTargetURI(uri string) Option {
	return func(o *resolvedOptions) { o.targetURI = uri }
}

// WithOrigin overrides the replication origin name (SAISEI_ORIGIN).
func WithOrigin(name string) Option {
	return func(o *resolvedOptions) { o.origin = name }
}

// WithDir overrides the prepared SQL file directory (SAISEI_DIR).
func WithDir(dir string) Option {
	return func(o *resolvedOptions) { o.dir = dir }
}

// WithEndpos sets the end position in "HI/LO" form. It takes precedence
// over a sentinel endpos, with a warning, when both are set.
func WithEndpos(lsn string) Option {
	return func(o *resolvedOptions) { o.endpos = lsn }
}

// WithPrefetch makes the run wait for the sentinel apply gate before
// replaying anything (SAISEI_PREFETCH).
func WithPrefetch(enabled bool) Option {
	return func(o *resolvedOptions) { o.prefetch = enabled; o.prefetchSet = true }
}

// WithPollInterval overrides the poll interval used by every wait loop
// (SAISEI_POLL_INTERVAL).
func WithPollInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.pollInterval = d }
}

// WithLogger supplies the logger. Defaults to a JSON slog handler on
// stdout at the configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion stamps the build version on telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}
