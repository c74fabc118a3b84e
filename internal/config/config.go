// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/saisei/internal/wal"
)

// Config holds all application configuration.
type Config struct {
	// Connection strings.
	SourceURI string // Source database, holding the sentinel.
	TargetURI string // Target database, holding the replication origin.

	// Catch-up settings.
	Origin       string        // Replication origin name on the target.
	Dir          string        // Directory with the prepared SQL files.
	Endpos       wal.LSN       // Optional end position; zero means none.
	Prefetch     bool          // Wait for the sentinel apply gate before replaying.
	PollInterval time.Duration // The single retry knob for every wait loop.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool // Use HTTP instead of HTTPS for the OTEL exporters.
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Missing variables use defaults; only malformed values are
// rejected.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		SourceURI:    envStr("SAISEI_SOURCE_PGURI", ""),
		TargetURI:    envStr("SAISEI_TARGET_PGURI", ""),
		Origin:       envStr("SAISEI_ORIGIN", "saisei"),
		Dir:          envStr("SAISEI_DIR", ""),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "saisei"),
		LogLevel:     envStr("SAISEI_LOG_LEVEL", "info"),
	}

	cfg.Endpos, errs = collectLSN(errs, "SAISEI_ENDPOS")
	cfg.Prefetch, errs = collectBool(errs, "SAISEI_PREFETCH", false)
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.PollInterval, errs = collectDuration(errs, "SAISEI_POLL_INTERVAL", 10*time.Second)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	return cfg, nil
}

// Validate checks that required configuration is present and sane. Called
// after CLI flags have been merged in, since flags may supply what the
// environment did not.
func (c Config) Validate() error {
	var errs []error

	if c.SourceURI == "" {
		errs = append(errs, errors.New("config: SAISEI_SOURCE_PGURI is required"))
	}
	if c.TargetURI == "" {
		errs = append(errs, errors.New("config: SAISEI_TARGET_PGURI is required"))
	}
	if c.Origin == "" {
		errs = append(errs, errors.New("config: SAISEI_ORIGIN must not be empty"))
	}
	if c.Dir == "" {
		errs = append(errs, errors.New("config: SAISEI_DIR is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("config: SAISEI_POLL_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectLSN parses an LSN env var, appending any error to the accumulator.
// Unset parses to the invalid LSN, meaning "no bound".
func collectLSN(errs []error, key string) (wal.LSN, []error) {
	v := os.Getenv(key)
	lsn, err := wal.ParseLSN(v)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s=%q is not a valid LSN", key, v))
	}
	return lsn, errs
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
