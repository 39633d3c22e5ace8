// Package worker keeps the pollution fields fresh in the background.
package worker

import (
	"time"
)

// RefreshConfig holds configuration for the field refresh job.
type RefreshConfig struct {
	// Regions limits the job to these tracked regions.
	// If empty, every region registered with the field service is refreshed.
	Regions []string

	// Concurrency is the number of regions refreshed at once.
	// Default: 3
	Concurrency int

	// Timeout bounds the refresh of a single region.
	// Default: 30 seconds
	Timeout time.Duration

	// WarmWeather also fetches the weather forecast at each region's center
	// so timing requests hit a warm cache.
	WarmWeather bool
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
		WarmWeather: true,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
