package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/favisync/internal/dbopen"
	"github.com/hazyhaar/favisync/snapshot"
)

// Schema of the favicon history table.
const Schema = `
CREATE TABLE IF NOT EXISTS favicons (
	id          TEXT PRIMARY KEY,
	resource    TEXT NOT NULL,
	markup_hash TEXT NOT NULL,
	width       INTEGER NOT NULL,
	height      INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_favicons_created ON favicons(created_at);
`

// History records every published snapshot in SQLite.
type History struct {
	db    *sql.DB
	owned bool
}

// OpenHistory opens the database at path, creating it and its parent
// directory if needed. Close closes the database.
func OpenHistory(path string) (*History, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &History{db: db, owned: true}, nil
}

// NewHistory creates the favicons table if needed. The caller owns db.
func NewHistory(db *sql.DB) (*History, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &History{db: db}, nil
}

func (h *History) Publish(ctx context.Context, snap snapshot.Snapshot) error {
	_, err := dbopen.Exec(ctx, h.db,
		`INSERT INTO favicons (id, resource, markup_hash, width, height, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Resource, snap.MarkupHash,
		snap.Dimensions.Width, snap.Dimensions.Height, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", snap.ID, err)
	}
	return nil
}

// Recent returns up to n snapshots, newest first. Markup is not stored and
// comes back empty.
func (h *History) Recent(ctx context.Context, n int) ([]snapshot.Snapshot, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, resource, markup_hash, width, height, created_at
		 FROM favicons ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []snapshot.Snapshot
	for rows.Next() {
		var s snapshot.Snapshot
		if err := rows.Scan(&s.ID, &s.Resource, &s.MarkupHash,
			&s.Dimensions.Width, &s.Dimensions.Height, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Count returns the number of recorded snapshots.
func (h *History) Count(ctx context.Context) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM favicons`).Scan(&n)
	return n, err
}

// DB returns the underlying database.
func (h *History) DB() *sql.DB { return h.db }

func (h *History) Close() error {
	if h.owned {
		return h.db.Close()
	}
	return nil
}
