package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults covers a missing config file.
func TestLoadDefaults(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "")
	t.Setenv("ADMIN_TOKEN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WatchInterval() != 30*time.Second || cfg.Watcher.MaxAttempts != 20 {
		t.Fatalf("watcher = %v x %d", cfg.WatchInterval(), cfg.Watcher.MaxAttempts)
	}
	if cfg.SweepInterval() != 15*time.Minute || cfg.StaleAfter() != 2*time.Hour {
		t.Fatalf("sweep = %v, stale = %v", cfg.SweepInterval(), cfg.StaleAfter())
	}
	if cfg.ProviderTimeout() != 30*time.Second || cfg.Provider.MaxAttempts != 3 || cfg.ProviderRetryDelay() != 5*time.Second {
		t.Fatalf("provider = %+v", cfg.Provider)
	}
	if cfg.StateMaxAge() != 5*time.Minute {
		t.Fatalf("state max age = %v", cfg.StateMaxAge())
	}
}

// TestLoadFileAndEnv checks YAML values and environment overrides.
func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := `
server:
  port: 9000
provider:
  api_key: from-file
  language: de
sweep:
  stale_after_minutes: 30
`
	if err := os.WriteFile(path, []byte(yamlText), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("ASSEMBLYAI_API_KEY", "from-env")
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Provider.Language != "de" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Provider.APIKey != "from-env" || cfg.Admin.Token != "secret" {
		t.Fatalf("env overrides not applied: key=%q token=%q", cfg.Provider.APIKey, cfg.Admin.Token)
	}
	if cfg.StaleAfter() != 30*time.Minute {
		t.Fatalf("stale = %v", cfg.StaleAfter())
	}
}

// TestLoadInvalidYAML reports parse errors.
func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}
