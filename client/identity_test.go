package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreateClientUUIDCreatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nettest.conf")

	id, err := LoadOrCreateClientUUID(path)
	if err != nil {
		t.Fatalf("LoadOrCreateClientUUID: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty uuid")
	}

	again, err := LoadOrCreateClientUUID(path)
	if err != nil {
		t.Fatalf("second LoadOrCreateClientUUID: %v", err)
	}
	if again != id {
		t.Fatalf("uuid not stable across calls: %q != %q", again, id)
	}
}

func TestLoadOrCreateClientUUIDPreservesOtherLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nettest.conf")
	if err := os.WriteFile(path, []byte("unrelated_key=\"value\"\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	id, err := LoadOrCreateClientUUID(path)
	if err != nil {
		t.Fatalf("LoadOrCreateClientUUID: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(contents), "unrelated_key=\"value\"") {
		t.Fatalf("unrelated line was dropped: %q", contents)
	}
	if !strings.Contains(string(contents), id) {
		t.Fatalf("new uuid not written: %q", contents)
	}
}
