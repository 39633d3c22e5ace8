package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps exposure history for the lifetime of the process.
type InMemoryRepository struct {
	mu      sync.RWMutex
	history map[string]map[time.Time]float64
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{history: make(map[string]map[time.Time]float64)}
}

// AddExposure adds score to the user's total for day.
func (r *InMemoryRepository) AddExposure(_ context.Context, userID string, day time.Time, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	days, ok := r.history[userID]
	if !ok {
		days = make(map[time.Time]float64)
		r.history[userID] = days
	}
	days[DayOf(day)] += score
	return nil
}

// SumExposure totals the user's exposure since the given day.
func (r *InMemoryRepository) SumExposure(_ context.Context, userID string, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0.0
	for day, score := range r.history[userID] {
		if !day.Before(since) {
			total += score
		}
	}
	return total, nil
}

// History returns the user's entries since the given day, oldest first.
func (r *InMemoryRepository) History(_ context.Context, userID string, since time.Time) ([]ExposureEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := []ExposureEntry{}
	for day, score := range r.history[userID] {
		if !day.Before(since) {
			entries = append(entries, ExposureEntry{UserID: userID, Day: day, Score: score})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Day.Before(entries[j].Day) })
	return entries, nil
}
