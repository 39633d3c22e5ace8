package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS exposure_history (
		user_id    TEXT NOT NULL,
		day        TEXT NOT NULL,
		score      REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, day)
	)
`

const sqliteDayLayout = "2006-01-02"

// SQLiteRepository is a single-file SQLite implementation of Repository for
// local runs.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. SQLite allows one
// writer, so the pool holds a single connection.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Migrate creates the exposure_history table.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create exposure_history: %w", err)
	}
	return nil
}

// AddExposure atomically adds score to the user's total for day.
func (r *SQLiteRepository) AddExposure(ctx context.Context, userID string, day time.Time, score float64) error {
	query := `
		INSERT INTO exposure_history (user_id, day, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET
			score = score + excluded.score,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		userID, DayOf(day).Format(sqliteDayLayout), score, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SumExposure totals the user's exposure since the given day.
func (r *SQLiteRepository) SumExposure(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(score), 0)
		FROM exposure_history
		WHERE user_id = ? AND day >= ?
	`
	var total float64
	if err := r.db.QueryRowContext(ctx, query, userID, DayOf(since).Format(sqliteDayLayout)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// History returns the user's entries since the given day, oldest first.
func (r *SQLiteRepository) History(ctx context.Context, userID string, since time.Time) ([]ExposureEntry, error) {
	query := `
		SELECT user_id, day, score
		FROM exposure_history
		WHERE user_id = ? AND day >= ?
		ORDER BY day
	`
	rows, err := r.db.QueryContext(ctx, query, userID, DayOf(since).Format(sqliteDayLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ExposureEntry{}
	for rows.Next() {
		var (
			e   ExposureEntry
			day string
		)
		if err := rows.Scan(&e.UserID, &day, &e.Score); err != nil {
			return nil, err
		}
		if e.Day, err = time.Parse(sqliteDayLayout, day); err != nil {
			return nil, fmt.Errorf("parse day %q: %w", day, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
