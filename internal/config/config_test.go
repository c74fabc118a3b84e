package config

import (
	"strings"
	"testing"
	"time"
)

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationFallback(t *testing.T) {
	// TEST_DUR_MISSING is not set.
	v, err := envDuration("TEST_DUR_MISSING", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 10*time.Second {
		t.Fatalf("expected fallback 10s, got %s", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Origin != "saisei" {
		t.Fatalf("expected default origin saisei, got %q", cfg.Origin)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("expected default poll interval 10s, got %s", cfg.PollInterval)
	}
	if cfg.Endpos.IsValid() {
		t.Fatalf("expected no endpos by default, got %s", cfg.Endpos)
	}
}

func TestLoadEndpos(t *testing.T) {
	t.Setenv("SAISEI_ENDPOS", "0/A0000060")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Endpos.String(); got != "0/A0000060" {
		t.Fatalf("expected endpos 0/A0000060, got %s", got)
	}
}

func TestLoadFailsOnInvalidEndpos(t *testing.T) {
	t.Setenv("SAISEI_ENDPOS", "nope")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid SAISEI_ENDPOS")
	}
	if got := err.Error(); !strings.Contains(got, "SAISEI_ENDPOS") || !strings.Contains(got, "nope") {
		t.Fatalf("error should mention SAISEI_ENDPOS and value 'nope', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("SAISEI_ENDPOS", "nope")
	t.Setenv("SAISEI_POLL_INTERVAL", "fast")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "SAISEI_ENDPOS") {
		t.Fatalf("error should mention SAISEI_ENDPOS, got: %s", got)
	}
	if !strings.Contains(got, "SAISEI_POLL_INTERVAL") {
		t.Fatalf("error should mention SAISEI_POLL_INTERVAL, got: %s", got)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	var cfg Config
	cfg.PollInterval = 10 * time.Second
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected Validate() to fail with empty config")
	}
	for _, want := range []string{"SAISEI_SOURCE_PGURI", "SAISEI_TARGET_PGURI", "SAISEI_DIR"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error should mention %s, got: %s", want, err)
		}
	}
}

func TestValidateComplete(t *testing.T) {
	cfg := Config{
		SourceURI:    "postgres://src",
		TargetURI:    "postgres://dst",
		Origin:       "saisei",
		Dir:          "/var/lib/saisei",
		PollInterval: 10 * time.Second,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
