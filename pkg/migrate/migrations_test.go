package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateFS(Embedded(), embeddedDir); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("on-disk migrations invalid: %v", err)
	}
}

func TestAnalysisSnapshotsMigrationContainsSchema(t *testing.T) {
	matches, err := fs.Glob(Embedded(), "migrations/*_create_analysis_snapshots.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no analysis snapshot migration found")
	}
	data, err := fs.ReadFile(Embedded(), matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	content := string(data)
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS analysis_snapshots",
		"payload jsonb NOT NULL",
		"idx_analysis_snapshots_kind_subject_created",
		"DROP TABLE IF EXISTS analysis_snapshots",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"m/create_things.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"m/20250101000000_create_things.sql": {Data: []byte("-- +goose Up\n")},
		},
		"down before up": {
			"m/20250101000000_create_things.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"unbalanced statements": {
			"m/20250101000000_create_things.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		},
		"duplicate version": {
			"m/20250101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20250101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		if err := ValidateFS(fsys, "m"); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Funnel Tags!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(filepath.Base(path), "_add_funnel_tags.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected migration on disk: %v", err)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "!!!"); err == nil {
		t.Fatal("expected error for a name that sanitizes to empty")
	}
}
