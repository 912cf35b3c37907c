package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "racecal.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CalendarURL != DefaultCalendarURL {
		t.Errorf("calendar_url = %q", cfg.CalendarURL)
	}
	if cfg.FetchTimeoutSec != 90 {
		t.Errorf("fetch_timeout_sec = %d, want 90", cfg.FetchTimeoutSec)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 0600", perm)
	}
}

func TestLoadPartialConfigNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racecal.yaml")
	partial := []byte("seasons: [\"2025\", \"2026\"]\nlisten: \"0.0.0.0:9000\"\n")
	if err := os.WriteFile(path, partial, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Seasons) != 2 {
		t.Errorf("seasons = %v", cfg.Seasons)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	// Unspecified fields take defaults.
	if cfg.DataDir != "./data" || cfg.RefreshCron == "" || cfg.SeasonDelaySec != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "racecal.yaml")
	cfg := DefaultConfig()
	cfg.Seasons = []string{"2027"}
	cfg.Headful = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Seasons) != 1 || loaded.Seasons[0] != "2027" {
		t.Errorf("seasons = %v", loaded.Seasons)
	}
	if !loaded.Headful {
		t.Error("headful flag lost in round trip")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
}
