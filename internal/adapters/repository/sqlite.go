package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/okian/capwatch/internal/domain/model"
	"github.com/okian/capwatch/pkg/logger"
)

const createCapEventsTable = `
	CREATE TABLE IF NOT EXISTS cap_events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rsn TEXT NOT NULL,
		cap_timestamp INTEGER NOT NULL,
		source TEXT,
		manual_user TEXT,

		UNIQUE(rsn, cap_timestamp)
	)
`

// SQLiteStore implements Store on a local SQLite database. Writes are
// batched per run in a single transaction; the concurrent query path only
// ever observes a run's results as a whole.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// StoreOption applies a configuration option to the SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithStoreLogger sets a custom logger for the store.
func WithStoreLogger(l logger.Logger) StoreOption {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, opts ...StoreOption) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.Get().Named("store"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Init creates the cap_events table if it does not exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createCapEventsTable); err != nil {
		return fmt.Errorf("create cap_events table: %w", err)
	}
	return nil
}

// InsertBatch commits events atomically, ignoring already-seen
// (rsn, cap_timestamp) pairs. Idempotent re-ingestion is expected and safe.
func (s *SQLiteStore) InsertBatch(ctx context.Context, events []model.CapEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO cap_events(rsn, cap_timestamp, source, manual_user)
		VALUES(?, ?, ?, NULLIF(?, ''))
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, e := range events {
		res, err := stmt.ExecContext(ctx, e.RSN, e.Timestamp.Unix(), string(e.Source), e.ManualUser)
		if err != nil {
			return 0, fmt.Errorf("insert cap event for %s: %w", e.RSN, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	s.logger.Debug(ctx, "cap event batch committed",
		logger.Int("batch_size", len(events)),
		logger.Int64("inserted", inserted),
	)
	return inserted, nil
}

// RecentSince returns all cap events at or after since.
func (s *SQLiteStore) RecentSince(ctx context.Context, since time.Time) ([]model.CapEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rsn, cap_timestamp, source, manual_user
		FROM cap_events
		WHERE cap_timestamp >= ?
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("query recent cap events: %w", err)
	}
	defer rows.Close()

	var events []model.CapEvent
	for rows.Next() {
		var (
			rsn        string
			ts         int64
			source     sql.NullString
			manualUser sql.NullString
		)
		if err := rows.Scan(&rsn, &ts, &source, &manualUser); err != nil {
			return nil, fmt.Errorf("scan cap event: %w", err)
		}
		events = append(events, model.CapEvent{
			RSN:        rsn,
			Timestamp:  time.Unix(ts, 0).UTC(),
			Source:     model.Source(source.String),
			ManualUser: manualUser.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cap events: %w", err)
	}
	return events, nil
}

// RecordManualCap records a single admin-sourced cap event.
func (s *SQLiteStore) RecordManualCap(ctx context.Context, rsn string, ts time.Time, adminUser string) (bool, error) {
	if strings.TrimSpace(rsn) == "" {
		return false, ErrEmptyRSN
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cap_events(rsn, cap_timestamp, source, manual_user)
		VALUES(?, ?, ?, NULLIF(?, ''))
	`, rsn, ts.Unix(), string(model.SourceManual), adminUser)
	if err != nil {
		return false, fmt.Errorf("insert manual cap for %s: %w", rsn, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
