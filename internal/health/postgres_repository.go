package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS exposure_history (
		user_id    TEXT             NOT NULL,
		day        DATE             NOT NULL,
		score      DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, day)
	)
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL exposure repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the exposure_history table.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create exposure_history: %w", err)
	}
	return nil
}

// AddExposure atomically adds score to the user's total for day.
func (r *PostgresRepository) AddExposure(ctx context.Context, userID string, day time.Time, score float64) error {
	query := `
		INSERT INTO exposure_history (user_id, day, score, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, day) DO UPDATE SET
			score = exposure_history.score + EXCLUDED.score,
			updated_at = now()
	`
	_, err := r.pool.Exec(ctx, query, userID, DayOf(day), score)
	return err
}

// SumExposure totals the user's exposure since the given day.
func (r *PostgresRepository) SumExposure(ctx context.Context, userID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(score), 0)
		FROM exposure_history
		WHERE user_id = $1 AND day >= $2
	`
	var total float64
	if err := r.pool.QueryRow(ctx, query, userID, DayOf(since)).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// History returns the user's entries since the given day, oldest first.
func (r *PostgresRepository) History(ctx context.Context, userID string, since time.Time) ([]ExposureEntry, error) {
	query := `
		SELECT user_id, day, score
		FROM exposure_history
		WHERE user_id = $1 AND day >= $2
		ORDER BY day
	`
	rows, err := r.pool.Query(ctx, query, userID, DayOf(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []ExposureEntry{}
	for rows.Next() {
		var e ExposureEntry
		if err := rows.Scan(&e.UserID, &e.Day, &e.Score); err != nil {
			return nil, err
		}
		e.Day = DayOf(e.Day)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
