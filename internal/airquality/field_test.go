package airquality_test

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/airquality"
	"github.com/breatheroute/runcoach/pkg/geo"
)

const (
	lat0 = 52.37
	lon0 = 4.89
)

func reading(lat, lon, aqi float64) airquality.Reading {
	return airquality.Reading{
		Location:   geo.Point{Lat: lat, Lon: lon},
		Timestamp:  time.Now(),
		AQI:        aqi,
		PM25:       aqi / 4,
		PM10:       aqi / 2,
		O3:         30,
		NO2:        20,
		Source:     "test",
		Confidence: 1.0,
	}
}

func triangleReadings() []airquality.Reading {
	return []airquality.Reading{
		reading(lat0, lon0, 20),
		reading(lat0+0.01, lon0, 100),
		reading(lat0, lon0+0.01, 60),
	}
}

func newField(resolution float64) *airquality.Field {
	cfg := airquality.DefaultFieldConfig()
	cfg.ResolutionMeters = resolution
	return airquality.NewField(cfg)
}

func TestField_ExactAtSensorLocation(t *testing.T) {
	for _, resolution := range []float64{2000, 250, 50} {
		field := newField(resolution)
		require.NoError(t, field.Update(context.Background(), triangleReadings(), nil))

		got := field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0, Lon: lon0})
		assert.InDelta(t, 20.0, got, 1e-6, "resolution %.0f", resolution)
	}
}

func TestField_LinearInsideHull(t *testing.T) {
	plane := func(p geo.Point) float64 {
		return 10 + 100*(p.Lat-lat0)/0.01 + 50*(p.Lon-lon0)/0.01
	}
	corners := []geo.Point{
		{Lat: lat0, Lon: lon0},
		{Lat: lat0 + 0.01, Lon: lon0},
		{Lat: lat0, Lon: lon0 + 0.01},
		{Lat: lat0 + 0.01, Lon: lon0 + 0.01},
	}
	var readings []airquality.Reading
	for _, c := range corners {
		readings = append(readings, reading(c.Lat, c.Lon, plane(c)))
	}
	bounds := airquality.Region{MinLat: lat0, MaxLat: lat0 + 0.01, MinLon: lon0, MaxLon: lon0 + 0.01}

	field := newField(100)
	require.NoError(t, field.Update(context.Background(), readings, &bounds))

	for _, q := range []geo.Point{
		{Lat: lat0 + 0.005, Lon: lon0 + 0.005},
		{Lat: lat0 + 0.002, Lon: lon0 + 0.007},
		{Lat: lat0 + 0.008, Lon: lon0 + 0.001},
	} {
		sample, ok := field.Snapshot().Lookup(airquality.PollutantAQI, q)
		require.True(t, ok)
		assert.InDelta(t, plane(sample.GridPoint), sample.Value, 1e-6)
	}
}

func TestField_OutsideHullFallsBackToMean(t *testing.T) {
	bounds := airquality.Region{MinLat: lat0 - 0.01, MaxLat: lat0 + 0.02, MinLon: lon0 - 0.01, MaxLon: lon0 + 0.02}

	field := newField(200)
	require.NoError(t, field.Update(context.Background(), triangleReadings(), &bounds))

	got := field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.02, Lon: lon0 + 0.02})
	assert.InDelta(t, 60.0, got, 1e-9)
}

func TestField_ConfidenceWeightsMean(t *testing.T) {
	readings := triangleReadings()
	readings[1].Confidence = 0.5

	bounds := airquality.Region{MinLat: lat0 - 0.01, MaxLat: lat0 + 0.02, MinLon: lon0 - 0.01, MaxLon: lon0 + 0.02}
	field := newField(200)
	require.NoError(t, field.Update(context.Background(), readings, &bounds))

	want := (20*1.0 + 100*0.5 + 60*1.0) / 2.5
	got := field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.02, Lon: lon0 + 0.02})
	assert.InDelta(t, want, got, 1e-9)
}

func TestField_UncertaintyIsChannelStdDev(t *testing.T) {
	field := newField(500)
	require.NoError(t, field.Update(context.Background(), triangleReadings(), nil))

	want := math.Sqrt((40*40 + 40*40 + 0) / 3.0)
	for _, q := range []geo.Point{{Lat: lat0, Lon: lon0}, {Lat: lat0 + 0.005, Lon: lon0 + 0.002}} {
		assert.InDelta(t, want, field.QueryUncertainty(airquality.PollutantAQI, q), 1e-9)
	}

	// O3 is identical everywhere.
	assert.Equal(t, 0.0, field.QueryUncertainty(airquality.PollutantO3, geo.Point{Lat: lat0, Lon: lon0}))
}

func TestField_InvalidValuesDroppedPerChannel(t *testing.T) {
	readings := triangleReadings()
	readings[0].PM25 = math.NaN()
	readings[1].PM25 = -3
	readings[2].PM25 = 12
	for i := range readings {
		readings[i].NO2 = math.NaN()
	}

	field := newField(500)
	require.NoError(t, field.Update(context.Background(), readings, nil))
	snap := field.Snapshot()

	assert.True(t, snap.Has(airquality.PollutantAQI))
	assert.True(t, snap.Has(airquality.PollutantPM25))
	assert.False(t, snap.Has(airquality.PollutantNO2))

	// A single valid PM2.5 value makes the channel constant.
	assert.InDelta(t, 12.0, field.Query(airquality.PollutantPM25, geo.Point{Lat: lat0 + 0.01, Lon: lon0}), 1e-9)

	_, err := snap.Heatmap(airquality.PollutantNO2)
	assert.ErrorIs(t, err, airquality.ErrNoData)
	assert.Equal(t, 0.0, snap.Query(airquality.PollutantNO2, geo.Point{Lat: lat0, Lon: lon0}))
}

func TestField_EmptyUpdateKeepsPreviousState(t *testing.T) {
	field := newField(500)

	err := field.Update(context.Background(), nil, nil)
	assert.ErrorIs(t, err, airquality.ErrNoReadings)
	assert.Nil(t, field.Snapshot())
	assert.Equal(t, 0.0, field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0, Lon: lon0}))

	require.NoError(t, field.Update(context.Background(), triangleReadings(), nil))
	before := field.Snapshot()

	err = field.Update(context.Background(), []airquality.Reading{}, nil)
	assert.ErrorIs(t, err, airquality.ErrNoReadings)
	assert.Same(t, before, field.Snapshot())
}

func TestField_DegenerateReadings(t *testing.T) {
	t.Run("single reading", func(t *testing.T) {
		field := newField(500)
		require.NoError(t, field.Update(context.Background(), []airquality.Reading{reading(lat0, lon0, 42)}, nil))

		hm, err := field.Heatmap(airquality.PollutantAQI)
		require.NoError(t, err)
		for _, row := range hm.Values {
			for _, v := range row {
				assert.Equal(t, 42.0, v)
			}
		}
		assert.GreaterOrEqual(t, len(hm.Lats), 2)
		assert.GreaterOrEqual(t, len(hm.Lons), 2)
	})

	t.Run("two readings use nearest", func(t *testing.T) {
		field := newField(100)
		readings := []airquality.Reading{reading(lat0, lon0, 10), reading(lat0+0.01, lon0+0.01, 90)}
		require.NoError(t, field.Update(context.Background(), readings, nil))

		assert.InDelta(t, 10.0, field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.001, Lon: lon0}), 1e-9)
		assert.InDelta(t, 90.0, field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.009, Lon: lon0 + 0.01}), 1e-9)
	})

	t.Run("collinear readings", func(t *testing.T) {
		field := newField(100)
		readings := []airquality.Reading{
			reading(lat0, lon0, 10),
			reading(lat0+0.005, lon0, 50),
			reading(lat0+0.01, lon0, 90),
		}
		require.NoError(t, field.Update(context.Background(), readings, nil))

		v := field.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.0049, Lon: lon0})
		assert.InDelta(t, 50.0, v, 1e-9)
		assert.False(t, math.IsNaN(v))
	})
}

func TestField_GridShape(t *testing.T) {
	field := newField(100)
	require.NoError(t, field.Update(context.Background(), triangleReadings(), nil))

	status := field.Snapshot().Status()
	hm, err := field.Heatmap(airquality.PollutantAQI)
	require.NoError(t, err)

	assert.Equal(t, len(hm.Lats)*len(hm.Lons), status.GridPoints)
	require.Len(t, hm.Values, len(hm.Lats))
	require.Len(t, hm.Uncertainty, len(hm.Lats))
	for i := range hm.Values {
		assert.Len(t, hm.Values[i], len(hm.Lons))
		assert.Len(t, hm.Uncertainty[i], len(hm.Lons))
	}
	assert.True(t, sort.Float64sAreSorted(hm.Lats))
	assert.True(t, sort.Float64sAreSorted(hm.Lons))

	// 10% padding on each side of the reading extent.
	assert.InDelta(t, lat0-0.001, status.Region.MinLat, 1e-9)
	assert.InDelta(t, lat0+0.011, status.Region.MaxLat, 1e-9)
	assert.ElementsMatch(t, airquality.FieldPollutants, status.Pollutants)
}

func TestField_GridCappedAtMaxPoints(t *testing.T) {
	cfg := airquality.DefaultFieldConfig()
	cfg.ResolutionMeters = 10
	cfg.MaxGridPoints = 1000
	field := airquality.NewField(cfg)

	bounds := airquality.Region{MinLat: lat0, MaxLat: lat0 + 0.1, MinLon: lon0, MaxLon: lon0 + 0.1}
	require.NoError(t, field.Update(context.Background(), triangleReadings(), &bounds))

	assert.LessOrEqual(t, field.Snapshot().Status().GridPoints, 1000)
	assert.GreaterOrEqual(t, field.Snapshot().Status().GridPoints, 4)
}

func TestField_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	constant := func(aqi float64) []airquality.Reading {
		return []airquality.Reading{
			reading(lat0, lon0, aqi),
			reading(lat0+0.01, lon0, aqi),
			reading(lat0, lon0+0.01, aqi),
			reading(lat0+0.01, lon0+0.01, aqi),
		}
	}
	bounds := airquality.Region{MinLat: lat0, MaxLat: lat0 + 0.01, MinLon: lon0, MaxLon: lon0 + 0.01}

	field := newField(200)
	require.NoError(t, field.Update(context.Background(), constant(10), &bounds))

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ctx.Err() == nil; i++ {
			aqi := 10.0
			if i%2 == 0 {
				aqi = 90
			}
			_ = field.Update(context.Background(), constant(aqi), &bounds)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				snap := field.Snapshot()
				a := snap.Query(airquality.PollutantAQI, geo.Point{Lat: lat0, Lon: lon0})
				b := snap.Query(airquality.PollutantAQI, geo.Point{Lat: lat0 + 0.01, Lon: lon0 + 0.01})
				if a != b || (a != 10 && a != 90) {
					t.Errorf("inconsistent snapshot: %f vs %f", a, b)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestField_FindCleanZones(t *testing.T) {
	// West edge clean, east edge polluted: AQI grows linearly with longitude.
	readings := []airquality.Reading{
		reading(lat0, lon0, 10),
		reading(lat0+0.02, lon0, 10),
		reading(lat0, lon0+0.04, 200),
		reading(lat0+0.02, lon0+0.04, 200),
	}
	bounds := airquality.Region{MinLat: lat0, MaxLat: lat0 + 0.02, MinLon: lon0, MaxLon: lon0 + 0.04}

	field := newField(250)
	require.NoError(t, field.Update(context.Background(), readings, &bounds))

	zones := field.FindCleanZones(50, 0)
	require.Len(t, zones, 1)

	zone := zones[0]
	assert.Less(t, zone.AvgAQI, 50.0)
	assert.Less(t, zone.MaxAQI, 50.0)
	assert.LessOrEqual(t, zone.AvgAQI, zone.MaxAQI)
	assert.Equal(t, float64(zone.Points)*250*250, zone.AreaM2)
	assert.Less(t, zone.Center.Lon, lon0+0.02)
	assert.NotEmpty(t, zone.Boundary)

	assert.Empty(t, field.FindCleanZones(50, 1e12))
	assert.Empty(t, field.FindCleanZones(5, 0))
}

func TestField_CleanZonesSortedByAverage(t *testing.T) {
	// Two clean pockets at the west and east edges separated by a polluted ridge.
	readings := []airquality.Reading{
		reading(lat0, lon0, 5),
		reading(lat0+0.02, lon0, 5),
		reading(lat0, lon0+0.02, 300),
		reading(lat0+0.02, lon0+0.02, 300),
		reading(lat0, lon0+0.04, 30),
		reading(lat0+0.02, lon0+0.04, 30),
	}
	bounds := airquality.Region{MinLat: lat0, MaxLat: lat0 + 0.02, MinLon: lon0, MaxLon: lon0 + 0.04}

	field := newField(250)
	require.NoError(t, field.Update(context.Background(), readings, &bounds))

	zones := field.FindCleanZones(60, 0)
	require.Len(t, zones, 2)
	assert.Less(t, zones[0].AvgAQI, zones[1].AvgAQI)
	assert.Less(t, zones[0].Center.Lon, zones[1].Center.Lon)
}
