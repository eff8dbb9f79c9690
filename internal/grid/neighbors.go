// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package grid

import (
	"fmt"
	"math"
	"sort"
)

// Neighbor describes one cell within a requested ring of a source cell.
// Distance and direction are computed from great-circle geometry between cell
// centers and are for client display only.
type Neighbor struct {
	Cell       CellID  `json:"cell_id"`
	DistanceKm float64 `json:"distance_km"`
	Direction  string  `json:"direction"`
}

// compassPoints are the 8-way direction labels, clockwise from north.
var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Neighbors returns every cell within rings grid steps of id, excluding id
// itself, sorted by distance (ties broken by cell id for determinism).
//
// Interior cells have 6 ring-1 neighbors. Cells adjacent to a pole or the
// antimeridian edge of the projection have fewer; that truncation is a grid
// singularity, not an error.
func Neighbors(id CellID, rings int) ([]Neighbor, error) {
	c, err := decode(id)
	if err != nil {
		return nil, err
	}
	if rings < 1 {
		return nil, fmt.Errorf("%w: ring count %d", ErrInvalidResolution, rings)
	}

	srcX, srcY := centerOf(c)
	k := int64(rings)

	var out []Neighbor
	for dq := -k; dq <= k; dq++ {
		lo := max64(-k, -dq-k)
		hi := min64(k, -dq+k)
		for dr := lo; dr <= hi; dr++ {
			if dq == 0 && dr == 0 {
				continue
			}
			n := cell{res: c.res, q: c.q + dq, r: c.r + dr}
			nx, ny := centerOf(n)
			if !inDomain(nx, ny) {
				continue
			}
			out = append(out, Neighbor{
				Cell:       encode(n),
				DistanceKm: haversineKm(srcY, srcX, ny, nx),
				Direction:  compass(srcY, srcX, ny, nx),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Cell < out[j].Cell
	})
	return out, nil
}

// IsNeighbor reports whether candidate lies within rings steps of id.
func IsNeighbor(id, candidate CellID, rings int) (bool, error) {
	neighbors, err := Neighbors(id, rings)
	if err != nil {
		return false, err
	}
	for _, n := range neighbors {
		if n.Cell == candidate {
			return true, nil
		}
	}
	return false, nil
}

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const deg = math.Pi / 180
	dLat := (lat2 - lat1) * deg
	dLng := (lng2 - lng1) * deg

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg)*math.Cos(lat2*deg)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// compass returns the 8-way compass direction of the initial great-circle
// bearing from the first point to the second.
func compass(lat1, lng1, lat2, lng2 float64) string {
	const deg = math.Pi / 180
	dLng := (lng2 - lng1) * deg

	y := math.Sin(dLng) * math.Cos(lat2*deg)
	x := math.Cos(lat1*deg)*math.Sin(lat2*deg) -
		math.Sin(lat1*deg)*math.Cos(lat2*deg)*math.Cos(dLng)

	bearing := math.Atan2(y, x) / deg // -180..180, 0 = north
	if bearing < 0 {
		bearing += 360
	}
	idx := int(math.Round(bearing/45)) % 8
	return compassPoints[idx]
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
