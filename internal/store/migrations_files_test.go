package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(""), ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestContextsMigrationKeysByUserAndFile(t *testing.T) {
	data, err := fs.ReadFile(Migrations(""), "0001_contexts.up.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(data), "PRIMARY KEY (user_id, file_id)") {
		t.Fatalf("expected contexts to be keyed by (user_id, file_id)")
	}
}

func TestMigrationsDirOverride(t *testing.T) {
	dir := t.TempDir()
	files, err := migrationFiles(Migrations(dir), ".up.sql")
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("migrationFiles() = %v, want none", files)
	}
}
