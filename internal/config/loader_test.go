package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":9090\"\nfeed_driver: nats\nreconnect_delay: 2s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("WIRECHAT_ADDR", ":7070")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":7070" {
		t.Fatalf("env should override file, got addr %q", cfg.Addr)
	}
	if cfg.FeedDriver != FeedDriverNATS {
		t.Fatalf("file should override defaults, got feed driver %q", cfg.FeedDriver)
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Fatalf("expected reconnect delay 2s, got %v", cfg.ReconnectDelay)
	}
	if cfg.WatchBuffer != Default().WatchBuffer {
		t.Fatalf("unset keys should keep defaults, got watch buffer %d", cfg.WatchBuffer)
	}
}

func TestUpdateFromKeepsZeroValues(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1234", WatchBuffer: 8})

	if cfg.Addr != ":1234" || cfg.WatchBuffer != 8 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.JWTIssuer != Default().JWTIssuer {
		t.Fatalf("zero fields must not overwrite: %+v", cfg)
	}
}
