package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rmbtd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfigFileFillsUnsetFields(t *testing.T) {
	path := writeConfigFile(t, `
rmbtd:
  listen: ["127.0.0.1:5005"]
  listen_tls: ["127.0.0.1:8080"]
  workers: 64
  user: rmbt
`)

	cfg := DefaultConfig()
	cfg.ListenAddrs = nil // simulate no -l passed
	if err := LoadConfigFile(path, cfg); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if len(cfg.ListenAddrs) != 1 || cfg.ListenAddrs[0] != "127.0.0.1:5005" {
		t.Fatalf("expected listen address from file, got %v", cfg.ListenAddrs)
	}
	if len(cfg.TLSListenAddrs) != 1 || cfg.TLSListenAddrs[0] != "127.0.0.1:8080" {
		t.Fatalf("expected TLS listen address from file, got %v", cfg.TLSListenAddrs)
	}
	if cfg.Workers != 64 {
		t.Fatalf("expected workers overridden from file, got %d", cfg.Workers)
	}
	if cfg.User != "rmbt" {
		t.Fatalf("expected user from file, got %q", cfg.User)
	}
}

func TestLoadConfigFileDoesNotOverrideExplicitFlags(t *testing.T) {
	path := writeConfigFile(t, `
rmbtd:
  workers: 64
  user: fromfile
`)

	cfg := DefaultConfig()
	cfg.Workers = 12 // simulates an explicit -t 12
	cfg.User = "fromflag"

	if err := LoadConfigFile(path, cfg); err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.Workers != 12 {
		t.Fatalf("explicit flag value must win, got workers=%d", cfg.Workers)
	}
	if cfg.User != "fromflag" {
		t.Fatalf("explicit flag value must win, got user=%q", cfg.User)
	}
}

func TestLoadConfigFileMissingPath(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
