package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogEntry is one committed write of a document.
type LogEntry struct {
	ID          int64
	DocumentID  string
	FromVersion int64
	ToVersion   int64
	CreatedAt   int64
}

func (db *DB) appendLog(ctx context.Context, tx *sql.Tx, documentID string, from, to int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO engagement_log (document_id, from_version, to_version, created_at)
		VALUES (?, ?, ?, ?)
	`, documentID, from, to, at.UnixMilli())
	if err != nil {
		return sqliteErr("append engagement log", err)
	}
	return nil
}

// GetLog returns the write history of a document, oldest first.
func (db *DB) GetLog(ctx context.Context, documentID string) ([]LogEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, document_id, from_version, to_version, created_at
		FROM engagement_log WHERE document_id = ? ORDER BY to_version
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("get engagement log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.FromVersion, &e.ToVersion, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan engagement log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
