// Package history keeps the append-only record of completed generations
// that backs the gallery view.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samber/do"
)

// Record is one completed generation. Immutable once written; the only
// mutations are single-record removal and full clear.
type Record struct {
	ID           string    `json:"id"`
	OriginalURL  string    `json:"originalUrl"`
	GeneratedURL string    `json:"generatedUrl"`
	Timestamp    time.Time `json:"timestamp"`
	Background   string    `json:"background,omitempty"`
}

type Log struct {
	db *sql.DB
}

func New(db *sql.DB) (*Log, error) {
	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func NewLog(i *do.Injector) (*Log, error) {
	return New(do.MustInvoke[*sql.DB](i))
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS history (
			id            TEXT PRIMARY KEY,
			visitor       TEXT NOT NULL,
			original_url  TEXT NOT NULL DEFAULT '',
			generated_url TEXT NOT NULL,
			background    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS history_visitor ON history (visitor, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrating history table: %w", err)
	}
	return nil
}

func (l *Log) Append(ctx context.Context, visitor string, r Record) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO history (id, visitor, original_url, generated_url, background, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, visitor, r.OriginalURL, r.GeneratedURL, r.Background, r.Timestamp.UTC())
	return err
}

// List returns the visitor's records newest first.
func (l *Log) List(ctx context.Context, visitor string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, original_url, generated_url, background, created_at
		FROM history WHERE visitor = ? ORDER BY created_at DESC, id DESC`, visitor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Get returns one of the visitor's records by id.
func (l *Log) Get(ctx context.Context, visitor, id string) (Record, bool, error) {
	var r Record
	err := l.db.QueryRowContext(ctx, `
		SELECT id, original_url, generated_url, background, created_at
		FROM history WHERE visitor = ? AND id = ?`, visitor, id).
		Scan(&r.ID, &r.OriginalURL, &r.GeneratedURL, &r.Background, &r.Timestamp)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Remove deletes one record and returns it so the caller can clean up the
// stored artifact. ok is false when the record does not belong to the
// visitor or does not exist.
func (l *Log) Remove(ctx context.Context, visitor, id string) (Record, bool, error) {
	var r Record
	err := l.db.QueryRowContext(ctx, `
		DELETE FROM history WHERE visitor = ? AND id = ?
		RETURNING id, original_url, generated_url, background, created_at`,
		visitor, id).
		Scan(&r.ID, &r.OriginalURL, &r.GeneratedURL, &r.Background, &r.Timestamp)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

// Clear removes all of the visitor's records, returning them for artifact
// cleanup.
func (l *Log) Clear(ctx context.Context, visitor string) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		DELETE FROM history WHERE visitor = ?
		RETURNING id, original_url, generated_url, background, created_at`, visitor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Recent returns the newest records across all visitors, for the public
// gallery feed.
func (l *Log) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, original_url, generated_url, background, created_at
		FROM history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.OriginalURL, &r.GeneratedURL, &r.Background, &r.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
