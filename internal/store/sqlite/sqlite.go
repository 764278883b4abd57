package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"govstats/internal/model"
	"govstats/internal/store"
)

const defaultKeep = 10

// Fixed-width so that built_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db   *sql.DB
	keep int
}

// New opens (or creates) the archive at path. keep bounds how many snapshots are
// retained; keep <= 0 uses the default of 10.
func New(path string, keep int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if keep <= 0 {
		keep = defaultKeep
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, keep: keep}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot stores snap and drops everything older than the newest keep snapshots.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.Snapshot) (err error) {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("sqlite: snapshot id is required")
	}
	payload, err := json.Marshal(snap.Countries)
	if err != nil {
		return fmt.Errorf("sqlite: encode snapshot %s: %w", snap.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, built_at, expires_at, degraded, countries, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			built_at = excluded.built_at,
			expires_at = excluded.expires_at,
			degraded = excluded.degraded,
			countries = excluded.countries,
			payload = excluded.payload
	`,
		snap.ID,
		formatTime(snap.BuiltAt),
		formatTime(snap.ExpiresAt),
		snap.Degraded,
		len(snap.Countries),
		string(payload),
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY built_at DESC LIMIT ?
		)
	`, s.keep)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LoadLatest returns the most recently built snapshot, or store.ErrNoSnapshot.
func (s *Store) LoadLatest(ctx context.Context) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, built_at, expires_at, degraded, payload
		FROM snapshots
		ORDER BY built_at DESC
		LIMIT 1
	`)

	var (
		snap               model.Snapshot
		builtAt, expiresAt string
		payload            string
	)
	if err := row.Scan(&snap.ID, &builtAt, &expiresAt, &snap.Degraded, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoSnapshot
		}
		return nil, err
	}

	var err error
	if snap.BuiltAt, err = time.Parse(timeLayout, builtAt); err != nil {
		return nil, fmt.Errorf("sqlite: snapshot %s built_at: %w", snap.ID, err)
	}
	if snap.ExpiresAt, err = time.Parse(timeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("sqlite: snapshot %s expires_at: %w", snap.ID, err)
	}
	if err := json.Unmarshal([]byte(payload), &snap.Countries); err != nil {
		return nil, fmt.Errorf("sqlite: decode snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}

// Count returns the number of archived snapshots.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			built_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			degraded INTEGER NOT NULL DEFAULT 0,
			countries INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS snapshots_built_at ON snapshots (built_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
