package storage

import (
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "valid path",
			path:    dbPath,
			wantErr: false,
		},
		{
			name:    "invalid path",
			path:    "/invalid/path/to/db.db",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.path)

			if tt.wantErr {
				if err == nil {
					t.Errorf("New() expected error, got nil")
				}
				if db != nil {
					_ = db.Close()
				}
				return
			}

			if err != nil {
				t.Errorf("New() unexpected error: %v", err)
				return
			}

			if db == nil {
				t.Fatal("New() returned nil database")
			}

			// Verify connection pool settings
			if db.Stats().MaxOpenConnections != 25 {
				t.Errorf("New() MaxOpenConnections = %v, want 25", db.Stats().MaxOpenConnections)
			}

			_ = db.Close()
		})
	}
}

func TestNew_EnablesForeignKeys(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Check that foreign keys are enabled
	var fkEnabled int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	if err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}

	if fkEnabled != 1 {
		t.Error("New() should enable foreign keys")
	}
}

func TestMigrate(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Run migrations
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Verify tables exist
	tables := []string{"corpora", "documents", "generations", "nodes", "fact_values", "chunks"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Migrate() table %s not created", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	// Run migrations twice
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() first run error = %v", err)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() second run error = %v", err)
	}

	// Verify tables still exist
	tables := []string{"corpora", "documents", "generations", "nodes", "fact_values", "chunks"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Migrate() table %s not found after second run", table)
		}
	}
}

func TestMigrate_GenerationRowsCascade(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Seed one generation with a node, a value and a chunk
	if _, err := db.Exec("INSERT INTO corpora (name, kind, root_path) VALUES ('fin', 'financial', '/data')"); err != nil {
		t.Fatalf("insert corpus: %v", err)
	}
	if _, err := db.Exec("INSERT INTO documents (id, corpus_id, rel_path, doc_type, hash) VALUES ('doc1', 1, 'a.json', 'financial_statement', 'h1')"); err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if _, err := db.Exec("INSERT INTO generations (status) VALUES ('ready')"); err != nil {
		t.Fatalf("insert generation: %v", err)
	}
	if _, err := db.Exec("INSERT INTO nodes (generation, id, document_id, display_name, level) VALUES (1, 'n1', 'doc1', '자산', 1)"); err != nil {
		t.Fatalf("insert node: %v", err)
	}
	if _, err := db.Exec("INSERT INTO fact_values (generation, node_id, fiscal_year, period_type) VALUES (1, 'n1', 2024, 'current')"); err != nil {
		t.Fatalf("insert value: %v", err)
	}
	if _, err := db.Exec("INSERT INTO chunks (generation, id, document_id, section_id, kind, digest, text) VALUES (1, 'c1', 'doc1', 'doc1', 'fact', 'd1', 't')"); err != nil {
		t.Fatalf("insert chunk: %v", err)
	}

	// Deleting the generation must cascade to its rows
	if _, err := db.Exec("DELETE FROM generations WHERE id = 1"); err != nil {
		t.Fatalf("delete generation: %v", err)
	}

	for _, table := range []string{"nodes", "fact_values", "chunks"} {
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("%s rows should cascade on generation delete, got %d", table, count)
		}
	}

	// Documents are not generation-scoped and must survive
	var docs int
	if err := db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&docs); err != nil {
		t.Fatalf("count documents: %v", err)
	}
	if docs != 1 {
		t.Errorf("documents should survive generation delete, got %d", docs)
	}
}
