package airquality

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MultiProvider fans a fetch out to several providers and merges their
// readings. It fails only when every provider fails.
type MultiProvider struct {
	providers []Provider
	logger    zerolog.Logger
}

var _ Provider = (*MultiProvider)(nil)

// NewMultiProvider combines providers. Nil entries are skipped.
func NewMultiProvider(logger zerolog.Logger, providers ...Provider) *MultiProvider {
	kept := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return &MultiProvider{providers: kept, logger: logger}
}

// Name joins the names of the combined providers.
func (m *MultiProvider) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// Len returns the number of combined providers.
func (m *MultiProvider) Len() int {
	return len(m.providers)
}

// FetchReadings queries every provider concurrently. Readings keep provider
// order so the merged batch is deterministic.
func (m *MultiProvider) FetchReadings(ctx context.Context, region Region) ([]Reading, error) {
	if len(m.providers) == 0 {
		return nil, ErrProviderUnavailable
	}

	batches := make([][]Reading, len(m.providers))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range m.providers {
		g.Go(func() error {
			readings, err := p.FetchReadings(gctx, region)
			if err != nil {
				m.logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider fetch failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				mu.Unlock()
				return nil
			}
			batches[i] = readings
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) == len(m.providers) {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, errors.Join(errs...))
	}

	var merged []Reading
	for _, b := range batches {
		merged = append(merged, b...)
	}
	return merged, nil
}
