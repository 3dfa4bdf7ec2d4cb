package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mindspace/internal/infra/security"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestKeygen_PrintsUsableKey(t *testing.T) {
	out, err := run(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	key := strings.TrimSpace(out)
	if !strings.HasPrefix(key, "base64:") {
		t.Fatalf("key = %q", key)
	}
	if _, err := security.ParseKey(key); err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	again, _ := run(t, "keygen")
	if strings.TrimSpace(again) == key {
		t.Fatal("two keygen runs returned the same key")
	}
}

func TestSweep_RefusesMemoryBackend(t *testing.T) {
	cfg := `
storage:
  backend: memory
security:
  keys:
    1: "0123456789abcdef0123456789abcdef"
  jwt_secret: "x"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "sweep"); err == nil {
		t.Fatal("expected sweep to refuse the memory backend")
	}
}

func TestMissingConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := run(t, "--config", path, "migrate", "status"); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
