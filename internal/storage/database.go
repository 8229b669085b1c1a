package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*sql.DB, error) {
	// Foreign keys are per-connection in SQLite, so they have to be set in
	// the DSN rather than with a one-off PRAGMA on a pooled connection.
	// Generation pruning relies on ON DELETE CASCADE.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS corpora (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			root_path TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			corpus_id INTEGER NOT NULL,
			rel_path TEXT NOT NULL,
			doc_type TEXT NOT NULL,
			company TEXT NOT NULL DEFAULT '',
			statement_type TEXT NOT NULL DEFAULT '',
			fiscal_year INTEGER NOT NULL DEFAULT 0,
			title TEXT NOT NULL DEFAULT '',
			hash TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (corpus_id) REFERENCES corpora(id)
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			status TEXT NOT NULL DEFAULT 'building',
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME,
			documents INTEGER NOT NULL DEFAULT 0,
			nodes INTEGER NOT NULL DEFAULT 0,
			chunks INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS nodes (
			generation INTEGER NOT NULL,
			id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL,
			is_total INTEGER NOT NULL DEFAULT 0,
			is_subtotal INTEGER NOT NULL DEFAULT 0,
			aliases TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (generation, id),
			FOREIGN KEY (generation) REFERENCES generations(id) ON DELETE CASCADE,
			FOREIGN KEY (document_id) REFERENCES documents(id)
		);`,
		`CREATE TABLE IF NOT EXISTS fact_values (
			generation INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			fiscal_year INTEGER NOT NULL,
			period_type TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			text TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			derived INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (generation, node_id, fiscal_year, period_type),
			FOREIGN KEY (generation) REFERENCES generations(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			generation INTEGER NOT NULL,
			id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			section_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			digest TEXT NOT NULL,
			text TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (generation, id),
			FOREIGN KEY (generation) REFERENCES generations(id) ON DELETE CASCADE,
			FOREIGN KEY (document_id) REFERENCES documents(id)
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// parseTimestamp parses a SQLite DATETIME column, which may come back in
// either the default format or RFC3339 depending on how it was written.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
