package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection to the totemic SQLite database.
type DB struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns the default database path: ~/.totemic/totemic.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".totemic", "totemic.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every connection to :memory: is its own database.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, ":memory:")
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Get implements Store.
func (db *DB) Get(ctx context.Context, id string) (*Document, error) {
	doc, _, err := db.load(ctx, id)
	return doc, err
}

// RunTransaction implements Store.
func (db *DB) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, db, fn)
}

func (db *DB) load(ctx context.Context, id string) (*Document, int64, error) {
	var body string
	var version int64
	err := db.QueryRowContext(ctx,
		"SELECT body, version FROM documents WHERE id = ?", id,
	).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document: %w", err)
	}

	doc, err := decode(id, []byte(body), version)
	if err != nil {
		return nil, 0, err
	}
	return doc, version, nil
}

// commit applies every write as a compare-and-swap on the version column
// and records each transition in engagement_log, all in one SQL transaction.
func (db *DB) commit(ctx context.Context, writes []pendingWrite, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteErr("begin commit", err)
	}

	for _, w := range writes {
		doc, body, err := encode(w, now)
		if err != nil {
			tx.Rollback()
			return err
		}

		var res sql.Result
		if w.version == 0 {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO documents (id, body, version, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`, doc.ID, string(body), doc.Version, now.UnixMilli(), now.UnixMilli())
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE documents SET body = ?, version = ?, updated_at = ?
				WHERE id = ? AND version = ?
			`, string(body), doc.Version, now.UnixMilli(), doc.ID, w.version)
		}
		if err != nil {
			tx.Rollback()
			return sqliteErr("write document", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.Rollback()
			return fmt.Errorf("%w: %s moved past version %d", ErrConflict, doc.ID, w.version)
		}

		if err := db.appendLog(ctx, tx, doc.ID, w.version, doc.Version, now); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return sqliteErr("commit", err)
	}
	return nil
}

// sqliteErr maps lock contention to ErrConflict; anything else is an
// infrastructure failure.
func sqliteErr(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s: %v", ErrConflict, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
