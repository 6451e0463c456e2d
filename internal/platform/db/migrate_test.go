package db

import (
	"testing"
	"testing/fstest"
)

func TestLoad_SortsByVersion(t *testing.T) {
	files := fstest.MapFS{
		"010_payments.sql":  {Data: []byte("SELECT 10;")},
		"002_clinician.sql": {Data: []byte("SELECT 2;")},
		"001_triage.sql":    {Data: []byte("CREATE TABLE patient (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, files, "").Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL != "CREATE TABLE patient (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoad_SkipsNonMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_triage.sql": {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("docs")},
		"notes.sql":      {Data: []byte("SELECT 0;")},
		"abc_bad.sql":    {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigrator(nil, files, "").Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
	if migrations[0].Name != "001_triage.sql" {
		t.Errorf("expected 001_triage.sql, got %s", migrations[0].Name)
	}
}

func TestLoad_RejectsDuplicateVersions(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, files, "").Load(); err == nil {
		t.Error("expected error for duplicate versions")
	}
}

func TestNewMigrator_DefaultSchema(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{}, "")
	if m.schema != "public" {
		t.Errorf("expected public schema, got %s", m.schema)
	}
	migrations, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error on empty fs: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
