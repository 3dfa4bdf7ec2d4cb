package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "files")
	if err != nil {
		t.Fatalf("read embedded files: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for k := range ups {
		if !downs[k] {
			t.Errorf("%s has no down migration", k)
		}
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if v < 1 {
		t.Fatalf("latest = %d", v)
	}
}

func TestSchemaCascadesMessages(t *testing.T) {
	b, err := fs.ReadFile(migrationFiles, "files/000001_init.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "ON DELETE CASCADE") {
		t.Fatal("session messages must be removed with their session")
	}
}
