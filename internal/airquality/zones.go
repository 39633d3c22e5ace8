package airquality

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/breatheroute/runcoach/pkg/geo"
)

// CleanZone is a connected area of the AQI surface below a threshold.
type CleanZone struct {
	Center   geo.Point   `json:"center"`
	AreaM2   float64     `json:"area_m2"`
	Points   int         `json:"points"`
	AvgAQI   float64     `json:"avg_aqi"`
	MaxAQI   float64     `json:"max_aqi"`
	Boundary []geo.Point `json:"boundary"`
}

// FindCleanZones labels 4-connected components of grid points whose AQI is
// below threshold and keeps those covering at least minAreaM2. Zones are
// sorted by ascending average AQI.
func (s *Snapshot) FindCleanZones(threshold, minAreaM2 float64) []CleanZone {
	if s == nil {
		return nil
	}
	ch, ok := s.channels[PollutantAQI]
	if !ok {
		return nil
	}

	g := s.grid
	rows, cols := len(g.lats), len(g.lons)
	minPoints := max(int(math.Ceil(minAreaM2/g.cellAreaM2())), 1)

	labels := make([]int, g.size())
	var zones []CleanZone
	next := 0

	for start := range labels {
		if labels[start] != 0 || !(ch.values[start] < threshold) {
			continue
		}
		next++

		component := []int{start}
		labels[start] = next
		for q := 0; q < len(component); q++ {
			k := component[q]
			i, j := k/cols, k%cols
			for _, n := range neighbours(i, j, rows, cols) {
				if labels[n] == 0 && ch.values[n] < threshold {
					labels[n] = next
					component = append(component, n)
				}
			}
		}

		if len(component) < minPoints {
			continue
		}
		zones = append(zones, s.zoneOf(component, labels, next, ch.values))
	}

	sort.SliceStable(zones, func(a, b int) bool {
		return zones[a].AvgAQI < zones[b].AvgAQI
	})
	return zones
}

// FindCleanZones runs FindCleanZones on the current snapshot.
func (f *Field) FindCleanZones(threshold, minAreaM2 float64) []CleanZone {
	return f.Snapshot().FindCleanZones(threshold, minAreaM2)
}

func (s *Snapshot) zoneOf(component, labels []int, label int, values []float64) CleanZone {
	g := s.grid
	rows, cols := len(g.lats), len(g.lons)

	aqi := make([]float64, len(component))
	var lat, lon float64
	var boundary []geo.Point

	for n, k := range component {
		aqi[n] = values[k]
		p := g.point(k)
		lat += p.Lat
		lon += p.Lon

		i, j := k/cols, k%cols
		nb := neighbours(i, j, rows, cols)
		edge := len(nb) < 4
		for _, m := range nb {
			if labels[m] != label {
				edge = true
				break
			}
		}
		if edge {
			boundary = append(boundary, p)
		}
	}

	count := float64(len(component))
	return CleanZone{
		Center:   geo.Point{Lat: lat / count, Lon: lon / count},
		AreaM2:   count * g.cellAreaM2(),
		Points:   len(component),
		AvgAQI:   floats.Sum(aqi) / count,
		MaxAQI:   floats.Max(aqi),
		Boundary: boundary,
	}
}

func neighbours(i, j, rows, cols int) []int {
	out := make([]int, 0, 4)
	if i > 0 {
		out = append(out, (i-1)*cols+j)
	}
	if i < rows-1 {
		out = append(out, (i+1)*cols+j)
	}
	if j > 0 {
		out = append(out, i*cols+j-1)
	}
	if j < cols-1 {
		out = append(out, i*cols+j+1)
	}
	return out
}
