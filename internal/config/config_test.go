package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PALIMPSEST_CONFIG", "")
	t.Setenv("PALIMPSEST_DATA_DIR", "")
	t.Setenv("PALIMPSEST_MIRROR_DIR", "")
	t.Setenv("PALIMPSEST_OP_TIMEOUT_SECONDS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "./data" || cfg.MirrorDir != "./data/contextStore" {
		t.Fatalf("Load() dirs = %q %q", cfg.DataDir, cfg.MirrorDir)
	}
	if cfg.OpTimeout != 30*time.Second {
		t.Fatalf("Load() OpTimeout = %v, want 30s", cfg.OpTimeout)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palimpsest.yaml")
	body := "API_ADDR: \":9000\"\nPALIMPSEST_BLOB_BACKEND: Badger\nPALIMPSEST_OP_TIMEOUT_SECONDS: \"5\"\nMINIO_USE_SSL: \"true\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("PALIMPSEST_CONFIG", path)
	t.Setenv("API_ADDR", ":7000")
	t.Setenv("PALIMPSEST_BLOB_BACKEND", "")
	t.Setenv("PALIMPSEST_OP_TIMEOUT_SECONDS", "")
	t.Setenv("MINIO_USE_SSL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("Addr = %q, environment should win", cfg.Addr)
	}
	if cfg.BlobBackend != "badger" || cfg.OpTimeout != 5*time.Second || !cfg.MinIOUseSSL {
		t.Fatalf("Load() = %+v", cfg)
	}
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a map\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("PALIMPSEST_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}

	t.Setenv("PALIMPSEST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want read error")
	}
}

func TestLogger(t *testing.T) {
	logger := Config{LogLevel: "warn", LogFormat: "json"}.Logger(os.Stderr)
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("Logger(warn) enables info")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("Logger(warn) disables warn")
	}
}
