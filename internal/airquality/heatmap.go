package airquality

import (
	"time"
)

// Heatmap is a 2D view of one channel for visualization. Rows follow
// ascending latitude, columns ascending longitude.
type Heatmap struct {
	Pollutant        Pollutant   `json:"pollutant"`
	Bounds           Region      `json:"bounds"`
	ResolutionMeters float64     `json:"resolution_m"`
	Lats             []float64   `json:"lats"`
	Lons             []float64   `json:"lons"`
	Values           [][]float64 `json:"values"`
	Uncertainty      [][]float64 `json:"uncertainty"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// Heatmap returns the grid of p, or ErrNoData if the channel was never fitted.
func (s *Snapshot) Heatmap(p Pollutant) (*Heatmap, error) {
	if s == nil {
		return nil, ErrNoData
	}
	ch, ok := s.channels[p]
	if !ok {
		return nil, ErrNoData
	}

	g := s.grid
	hm := &Heatmap{
		Pollutant:        p,
		Bounds:           g.region,
		ResolutionMeters: g.resolution,
		Lats:             append([]float64(nil), g.lats...),
		Lons:             append([]float64(nil), g.lons...),
		Values:           make([][]float64, len(g.lats)),
		Uncertainty:      make([][]float64, len(g.lats)),
		UpdatedAt:        s.updatedAt,
	}
	for i := range g.lats {
		row := make([]float64, len(g.lons))
		unc := make([]float64, len(g.lons))
		for j := range g.lons {
			row[j] = ch.values[g.index(i, j)]
			unc[j] = ch.uncertainty
		}
		hm.Values[i] = row
		hm.Uncertainty[i] = unc
	}
	return hm, nil
}

// Heatmap returns the current heatmap of p.
func (f *Field) Heatmap(p Pollutant) (*Heatmap, error) {
	return f.Snapshot().Heatmap(p)
}
