//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("remote:\n  base_url: http://localhost:9000\n"), false)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Store.Backend != "file" || cfg.Store.Path != "jobsync-state.json" {
		t.Errorf("unexpected store defaults: %+v", cfg.Store)
	}
	if cfg.Poller.Chat.BaseDelay != 800*time.Millisecond {
		t.Errorf("chat base delay: got %s", cfg.Poller.Chat.BaseDelay)
	}
	if cfg.Poller.Upload.BaseDelay != 4*time.Second {
		t.Errorf("upload base delay: got %s", cfg.Poller.Upload.BaseDelay)
	}
	if cfg.Poller.Upload.MaxDelay != 30*time.Second || cfg.Poller.Upload.Multiplier != 1.5 {
		t.Errorf("unexpected upload profile: %+v", cfg.Poller.Upload)
	}
	if cfg.Poller.Jitter != 0.2 || cfg.Poller.HiddenMinDelay != 10*time.Second {
		t.Errorf("unexpected poller defaults: %+v", cfg.Poller)
	}
	if cfg.ViewState.Debounce != 250*time.Millisecond {
		t.Errorf("debounce: got %s", cfg.ViewState.Debounce)
	}
	if cfg.Remote.MaxRetries != 3 || cfg.Remote.Timeout != 15*time.Second {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" || cfg.Locale != "en" {
		t.Errorf("unexpected log/locale defaults: %+v %s", cfg.Log, cfg.Locale)
	}
}

func TestParseValidation(t *testing.T) {
	t.Run("base url is required", func(t *testing.T) {
		_, err := Parse([]byte("store:\n  backend: file\n"), false)
		if err == nil || !strings.Contains(err.Error(), "remote.base_url") {
			t.Fatalf("expected base_url error, got %v", err)
		}
	})

	t.Run("redis backend needs a url", func(t *testing.T) {
		_, err := Parse([]byte("remote:\n  base_url: http://x\nstore:\n  backend: redis\n"), false)
		if err == nil || !strings.Contains(err.Error(), "store.redis.url") {
			t.Fatalf("expected redis url error, got %v", err)
		}
	})

	t.Run("unknown backend is rejected", func(t *testing.T) {
		_, err := Parse([]byte("remote:\n  base_url: http://x\nstore:\n  backend: indexeddb\n"), false)
		if err == nil {
			t.Fatal("expected an error for unknown backend")
		}
	})

	t.Run("max delay is never below base delay", func(t *testing.T) {
		cfg, err := Parse([]byte("remote:\n  base_url: http://x\npoller:\n  upload:\n    base_delay: 40s\n    max_delay: 10s\n"), false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Poller.Upload.MaxDelay != 40*time.Second {
			t.Fatalf("expected max delay raised to 40s, got %s", cfg.Poller.Upload.MaxDelay)
		}
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
remote:
  base_url: https://study.example.com
  token: abc
store:
  backend: sqlite
log:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be carried")
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "jobsync.db" {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}
