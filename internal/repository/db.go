package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/aipe-tech/dataextract/internal/common"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS companies (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	page_count  INTEGER NOT NULL,
	size_bytes  INTEGER NOT NULL,
	uploaded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	company_id   TEXT PRIMARY KEY REFERENCES companies(id) ON DELETE CASCADE,
	company_name TEXT NOT NULL DEFAULT '',
	currency     TEXT NOT NULL DEFAULT '',
	sections     TEXT NOT NULL,
	financials   TEXT NOT NULL,
	warnings     TEXT NOT NULL DEFAULT '[]',
	document_id  TEXT NOT NULL,
	extracted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	company_id  TEXT NOT NULL,
	document_id TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_company ON documents(company_id);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_id);
`

// Open opens the sqlite database, applies pragmas and the schema, and returns
// the handle. The handle is the process-wide storage lifecycle: opened at
// start, closed at shutdown.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	logger.Info("opening database", "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %v: %w", err, common.ErrStorageFault)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma %q: %v: %w", pragma, err, common.ErrStorageFault)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %v: %w", err, common.ErrStorageFault)
	}

	logger.Info("database ready")
	return db, nil
}

// Close closes the database handle gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return
	}
	logger.Info("database closed")
}
