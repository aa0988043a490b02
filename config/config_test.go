// ABOUTME: Tests for YAML config loading, defaults, env overrides, and validation.
// ABOUTME: Uses t.Setenv for env isolation and t.TempDir for file fixtures.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PULSE_SERVER_URL", "PULSE_TOKEN", "PULSE_PROVIDER", "PULSE_MODEL",
		"PULSE_ORG_ID", "PULSE_DATA_DIR", "PULSE_RECONNECT_MAX_ATTEMPTS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestParseDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8788" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelayMS != 1000 || cfg.Reconnect.MaxDelayMS != 30000 {
		t.Errorf("reconnect delays = %d/%d", cfg.Reconnect.BaseDelayMS, cfg.Reconnect.MaxDelayMS)
	}
	if !strings.HasSuffix(cfg.DataDir, "pulse") {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
}

func TestParseYAML(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(`
server_url: https://pulse.example.com
token: secret
model: claude-opus-4
reconnect:
  base_delay_ms: 500
  max_delay_ms: 10000
  max_attempts: 3
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ServerURL != "https://pulse.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %q", cfg.Token)
	}
	if cfg.Model != "claude-opus-4" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Reconnect.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PULSE_SERVER_URL", "http://from-env:9999")
	t.Setenv("PULSE_RECONNECT_MAX_ATTEMPTS", "8")
	cfg, err := Parse([]byte("server_url: http://from-file:1111\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ServerURL != "http://from-env:9999" {
		t.Errorf("ServerURL = %q, want env value", cfg.ServerURL)
	}
	if cfg.Reconnect.MaxAttempts != 8 {
		t.Errorf("MaxAttempts = %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8788" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("org_id: org-42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OrgID != "org-42" {
		t.Errorf("OrgID = %q", cfg.OrgID)
	}
}

func TestValidationRejectsBadURL(t *testing.T) {
	clearEnv(t)
	if _, err := Parse([]byte("server_url: ftp://nope\n")); err == nil {
		t.Error("expected validation error for non-http scheme")
	}
}

func TestValidationRejectsInvertedDelays(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("reconnect:\n  base_delay_ms: 5000\n  max_delay_ms: 100\n"))
	if err == nil {
		t.Error("expected validation error when max < base")
	}
}

func TestParseMalformedYAML(t *testing.T) {
	clearEnv(t)
	if _, err := Parse([]byte(":\n  - not: [valid")); err == nil {
		t.Error("expected parse error")
	}
}

func TestDefaultPathHonorsXDG(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath: %v", err)
	}
	if path != filepath.Join(dir, "pulse", "config.yaml") {
		t.Errorf("path = %q", path)
	}
}
