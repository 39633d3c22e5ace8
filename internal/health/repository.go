package health

import (
	"context"
	"time"
)

// Repository persists per-user, per-day exposure totals. Days are midnight
// UTC values as returned by DayOf.
type Repository interface {
	// AddExposure adds score to the user's total for day. Concurrent adds
	// for the same user and day must all be kept.
	AddExposure(ctx context.Context, userID string, day time.Time, score float64) error

	// SumExposure totals the user's exposure on days at or after since.
	SumExposure(ctx context.Context, userID string, since time.Time) (float64, error)

	// History returns the user's entries at or after since, oldest first.
	History(ctx context.Context, userID string, since time.Time) ([]ExposureEntry, error)
}

// Migrator is implemented by repositories that own a schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}
