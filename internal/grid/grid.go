// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

// Package grid implements the hexagonal discrete global grid that spatial
// rooms are keyed by.
//
// The globe is tiled with pointy-top hexagons in axial (q, r) coordinates over
// an equirectangular projection. Sixteen resolutions are supported: resolution
// 0 cells span roughly a city, resolution 15 roughly a building. Cell ids are
// opaque 16-character lowercase-hex strings encoding the resolution and axial
// coordinates in 64 bits; the same (lat, lng, resolution) input always yields
// the same id.
//
// Everything in this package is purely computational: no state, no I/O, safe
// for concurrent use without synchronization.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// MinResolution is the coarsest supported resolution (city scale).
	MinResolution = 0
	// MaxResolution is the finest supported resolution (building scale).
	MaxResolution = 15

	// baseCellSize is the hexagon circumradius in degrees at resolution 0.
	// Each finer resolution halves it, giving ~13m cells at resolution 15.
	baseCellSize = 4.0

	// idVersion occupies the top nibble of every encoded cell id so that a
	// future re-tiling can be detected rather than silently misdecoded.
	idVersion = 0x1

	// earthRadiusKm is the mean Earth radius used for great-circle math.
	earthRadiusKm = 6371.0
)

var (
	// ErrInvalidCell reports a malformed or unparseable cell id.
	ErrInvalidCell = errors.New("grid: invalid cell id")

	// ErrInvalidResolution reports a resolution outside [MinResolution, MaxResolution].
	ErrInvalidResolution = errors.New("grid: resolution out of range")

	// ErrResolutionOrder reports a hierarchy lookup whose target resolution is
	// on the wrong side of the cell's own resolution.
	ErrResolutionOrder = errors.New("grid: target resolution on wrong side of cell resolution")

	// ErrInvalidCoordinate reports latitude or longitude outside the valid domain.
	ErrInvalidCoordinate = errors.New("grid: coordinate out of range")
)

// CellID is an opaque, fixed-width identifier for one hexagonal cell.
type CellID string

// cell is the decoded form of a CellID.
type cell struct {
	res int
	q   int64
	r   int64
}

// cellSize returns the hexagon circumradius in degrees at the given resolution.
func cellSize(res int) float64 {
	return baseCellSize / float64(uint64(1)<<uint(res))
}

// ValidResolution reports whether res is within the supported range.
func ValidResolution(res int) bool {
	return res >= MinResolution && res <= MaxResolution
}

// CellAt maps a coordinate to the cell containing it at the given resolution.
// The result is deterministic: identical inputs always produce identical ids.
func CellAt(lat, lng float64, res int) (CellID, error) {
	if !ValidResolution(res) {
		return "", fmt.Errorf("%w: %d", ErrInvalidResolution, res)
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "", fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinate, lat, lng)
	}
	lng = normalizeLng(lng)

	q, r := axialAt(lng, lat, res)
	return encode(cell{res: res, q: q, r: r}), nil
}

// Resolution returns the resolution encoded in the id.
func Resolution(id CellID) (int, error) {
	c, err := decode(id)
	if err != nil {
		return 0, err
	}
	return c.res, nil
}

// Center returns the latitude and longitude of the cell's center point.
func Center(id CellID) (lat, lng float64, err error) {
	c, err := decode(id)
	if err != nil {
		return 0, 0, err
	}
	x, y := centerOf(c)
	return y, x, nil
}

// Boundary returns the six corner coordinates of the cell as [lat, lng] pairs
// in counter-clockwise order. Used purely for client display.
func Boundary(id CellID) ([][2]float64, error) {
	c, err := decode(id)
	if err != nil {
		return nil, err
	}
	cx, cy := centerOf(c)
	s := cellSize(c.res)

	corners := make([][2]float64, 0, 6)
	for k := 0; k < 6; k++ {
		// Pointy-top corners sit at 30 + 60k degrees from the center.
		theta := (60.0*float64(k) + 30.0) * math.Pi / 180.0
		corners = append(corners, [2]float64{cy + s*math.Sin(theta), cx + s*math.Cos(theta)})
	}
	return corners, nil
}

// DisplayName returns the resolution-tiered human name for a cell, used as
// the default spatial room title when no locality metadata is available.
func DisplayName(id CellID) string {
	res, err := Resolution(id)
	if err != nil {
		return "Area Chat"
	}
	switch {
	case res <= 7:
		return "District Chat"
	case res == 8:
		return "Neighborhood Chat"
	default:
		return "Local Chat"
	}
}

// inDomain reports whether a planar cell center falls inside the projected
// coordinate domain. Cells whose center would sit beyond a pole or past the
// antimeridian edge are grid singularities and are excluded from neighbor
// enumeration rather than wrapped.
func inDomain(x, y float64) bool {
	return y >= -90 && y <= 90 && x >= -180 && x <= 180
}

// axialAt converts planar coordinates (x=lng, y=lat) to the axial hex cell
// containing them at the given resolution.
func axialAt(x, y float64, res int) (int64, int64) {
	s := cellSize(res)
	qf := (math.Sqrt(3)/3*x - y/3) / s
	rf := (2.0 / 3.0 * y) / s
	return roundAxial(qf, rf)
}

// centerOf converts axial coordinates back to the planar center (x=lng, y=lat).
func centerOf(c cell) (x, y float64) {
	s := cellSize(c.res)
	x = s * (math.Sqrt(3)*float64(c.q) + math.Sqrt(3)/2*float64(c.r))
	y = s * 1.5 * float64(c.r)
	return x, y
}

// roundAxial rounds fractional axial coordinates to the nearest hex using
// cube-coordinate rounding, which is exact on hexagon boundaries.
func roundAxial(qf, rf float64) (int64, int64) {
	sf := -qf - rf

	q := math.Round(qf)
	r := math.Round(rf)
	s := math.Round(sf)

	dq := math.Abs(q - qf)
	dr := math.Abs(r - rf)
	ds := math.Abs(s - sf)

	switch {
	case dq > dr && dq > ds:
		q = -r - s
	case dr > ds:
		r = -q - s
	}
	return int64(q), int64(r)
}

func normalizeLng(lng float64) float64 {
	if lng == 180 {
		return -180
	}
	return lng
}

// encode packs a cell into its 16-character lowercase-hex id:
// 4 bits version, 4 bits resolution, 28 bits zigzag(q), 28 bits zigzag(r).
func encode(c cell) CellID {
	v := uint64(idVersion)<<60 |
		uint64(c.res)<<56 |
		(zigzag(c.q)&0xFFFFFFF)<<28 |
		zigzag(c.r)&0xFFFFFFF
	return CellID(fmt.Sprintf("%016x", v))
}

func decode(id CellID) (cell, error) {
	if len(id) != 16 {
		return cell{}, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	v, err := strconv.ParseUint(string(id), 16, 64)
	if err != nil {
		return cell{}, fmt.Errorf("%w: %q", ErrInvalidCell, id)
	}
	if v>>60 != idVersion {
		return cell{}, fmt.Errorf("%w: unknown version in %q", ErrInvalidCell, id)
	}
	res := int(v >> 56 & 0xF)
	return cell{
		res: res,
		q:   unzigzag(v >> 28 & 0xFFFFFFF),
		r:   unzigzag(v & 0xFFFFFFF),
	}, nil
}

func zigzag(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
