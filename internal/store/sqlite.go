package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (creating if necessary) a pure-Go, CGO-free SQLite
// database at dsn and applies the shared schema. dsn is passed straight to
// modernc.org/sqlite, e.g. "file:ironclaw.db?_pragma=busy_timeout(5000)" or
// ":memory:" for ephemeral/test use.
func NewSQLite(dsn string) (*sqlStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, NewError(ErrConnection, "open sqlite database", err)
	}
	// SQLite serializes writers internally; a single connection avoids
	// "database is locked" errors under concurrent access from the
	// orchestrator's per-conversation goroutines.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, NewError(ErrConnection, "ping sqlite database", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, NewError(ErrQuery, "apply sqlite schema", err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, NewError(ErrConnection, "enable foreign keys", err)
	}

	return &sqlStore{db: db, placeholder: qMarks}, nil
}
