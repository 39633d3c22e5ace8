package airquality_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/pkg/geo"
)

type staticProvider struct {
	name     string
	readings []airquality.Reading
	err      error
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) FetchReadings(context.Context, airquality.Region) ([]airquality.Reading, error) {
	return p.readings, p.err
}

func TestMultiProvider_MergesInOrder(t *testing.T) {
	a := staticProvider{name: "a", readings: []airquality.Reading{{Location: geo.Point{Lat: 1, Lon: 1}, AQI: 10}}}
	b := staticProvider{name: "b", readings: []airquality.Reading{{Location: geo.Point{Lat: 2, Lon: 2}, AQI: 20}}}

	m := airquality.NewMultiProvider(zerolog.Nop(), a, nil, b)
	assert.Equal(t, "a+b", m.Name())
	assert.Equal(t, 2, m.Len())

	readings, err := m.FetchReadings(context.Background(), airquality.Region{})
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 10.0, readings[0].AQI)
	assert.Equal(t, 20.0, readings[1].AQI)
}

func TestMultiProvider_PartialFailure(t *testing.T) {
	ok := staticProvider{name: "ok", readings: []airquality.Reading{{AQI: 10}}}
	bad := staticProvider{name: "bad", err: errors.New("boom")}

	readings, err := airquality.NewMultiProvider(zerolog.Nop(), bad, ok).FetchReadings(context.Background(), airquality.Region{})
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestMultiProvider_AllFail(t *testing.T) {
	bad := staticProvider{name: "bad", err: errors.New("boom")}

	_, err := airquality.NewMultiProvider(zerolog.Nop(), bad).FetchReadings(context.Background(), airquality.Region{})
	assert.ErrorIs(t, err, airquality.ErrProviderUnavailable)

	_, err = airquality.NewMultiProvider(zerolog.Nop()).FetchReadings(context.Background(), airquality.Region{})
	assert.ErrorIs(t, err, airquality.ErrProviderUnavailable)
}
