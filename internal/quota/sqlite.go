package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/samber/do"
)

// SQLiteStore persists quota state, address counters and credit grants in
// the service database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(i *do.Injector) (Store, error) {
	s := &SQLiteStore{db: do.MustInvoke[*sql.DB](i)}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quota_state (
			visitor   TEXT PRIMARY KEY,
			free_used INTEGER NOT NULL DEFAULT 0,
			credits   INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS address_usage (
			hash  TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS credit_grants (
			session_id TEXT PRIMARY KEY,
			visitor    TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("migrating quota tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) State(ctx context.Context, key string) (State, error) {
	var st State
	err := s.db.QueryRowContext(ctx,
		`SELECT free_used, credits FROM quota_state WHERE visitor = ?`, key).
		Scan(&st.FreeUsed, &st.Credits)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	return st, err
}

// Debit runs as a single upsert; the CASE arms see the pre-update row, so
// exactly one of free_used and credits moves, and a drained row stays put.
func (s *SQLiteStore) Debit(ctx context.Context, key string) (State, error) {
	var st State
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO quota_state (visitor, free_used, credits) VALUES (?, 1, 0)
		ON CONFLICT(visitor) DO UPDATE SET
			free_used = CASE WHEN free_used < ? THEN free_used + 1 ELSE free_used END,
			credits   = CASE WHEN free_used < ? OR credits = 0 THEN credits ELSE credits - 1 END
		RETURNING free_used, credits`,
		key, FreeQuota, FreeQuota).Scan(&st.FreeUsed, &st.Credits)
	return st, err
}

func (s *SQLiteStore) AddressCount(ctx context.Context, hash string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM address_usage WHERE hash = ?`, hash).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (s *SQLiteStore) IncrementAddress(ctx context.Context, hash string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO address_usage (hash, count) VALUES (?, 1)
		ON CONFLICT(hash) DO UPDATE SET count = count + 1
		RETURNING count`, hash).Scan(&count)
	return count, err
}

func (s *SQLiteStore) GrantCredits(ctx context.Context, key, sessionID string, amount int) (int, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO credit_grants (session_id, visitor, amount) VALUES (?, ?, ?)`,
		sessionID, key, amount)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			// Replayed confirmation; report the standing balance.
			st, err := s.State(ctx, key)
			if err != nil {
				return 0, false, err
			}
			return st.Credits, true, nil
		}
		return 0, false, err
	}

	var credits int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO quota_state (visitor, free_used, credits) VALUES (?, 0, ?)
		ON CONFLICT(visitor) DO UPDATE SET credits = credits + ?
		RETURNING credits`, key, amount, amount).Scan(&credits)
	if err != nil {
		return 0, false, err
	}
	return credits, false, tx.Commit()
}
