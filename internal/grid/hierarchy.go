// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package grid

import (
	"fmt"
	"sort"
)

// Parent returns the cell at the coarser targetRes whose area contains this
// cell's center. The mapping is deterministic, so every cell has exactly one
// parent at each coarser resolution.
func Parent(id CellID, targetRes int) (CellID, error) {
	c, err := decode(id)
	if err != nil {
		return "", err
	}
	if !ValidResolution(targetRes) {
		return "", fmt.Errorf("%w: %d", ErrInvalidResolution, targetRes)
	}
	if targetRes >= c.res {
		return "", fmt.Errorf("%w: parent resolution %d not coarser than %d", ErrResolutionOrder, targetRes, c.res)
	}

	x, y := centerOf(c)
	q, r := axialAt(x, y, targetRes)
	return encode(cell{res: targetRes, q: q, r: r}), nil
}

// maxChildSpan bounds how many resolution levels Children will descend in
// one call. The candidate scan grows four-fold per level; callers needing a
// deeper expansion recurse through intermediate resolutions.
const maxChildSpan = 5

// Children returns every cell at the finer targetRes whose parent chain leads
// back to this cell, sorted by id. The inverse of Parent: a finer cell is a
// child exactly when its center rounds into this cell at this resolution.
// targetRes may be at most maxChildSpan levels finer.
func Children(id CellID, targetRes int) ([]CellID, error) {
	c, err := decode(id)
	if err != nil {
		return nil, err
	}
	if !ValidResolution(targetRes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, targetRes)
	}
	if targetRes <= c.res {
		return nil, fmt.Errorf("%w: child resolution %d not finer than %d", ErrResolutionOrder, targetRes, c.res)
	}
	if targetRes-c.res > maxChildSpan {
		return nil, fmt.Errorf("%w: child resolution %d more than %d levels finer than %d", ErrInvalidResolution, targetRes, maxChildSpan, c.res)
	}

	cx, cy := centerOf(c)
	span := 1.5 * cellSize(c.res) // covers the parent hex plus boundary slack

	// Candidate axial range at the child resolution, derived from the parent's
	// planar bounding box with a 2-cell margin.
	qlo, qhi, rlo, rhi := axialRange(cx-span, cx+span, cy-span, cy+span, targetRes)

	var out []CellID
	for q := qlo; q <= qhi; q++ {
		for r := rlo; r <= rhi; r++ {
			child := cell{res: targetRes, q: q, r: r}
			x, y := centerOf(child)
			pq, pr := axialAt(x, y, c.res)
			if pq == c.q && pr == c.r {
				out = append(out, encode(child))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// axialRange returns inclusive q and r bounds covering the planar box
// [xlo,xhi]x[ylo,yhi] at the given resolution, with margin for rounding.
func axialRange(xlo, xhi, ylo, yhi float64, res int) (qlo, qhi, rlo, rhi int64) {
	first := true
	for _, x := range []float64{xlo, xhi} {
		for _, y := range []float64{ylo, yhi} {
			q, r := axialAt(x, y, res)
			if first {
				qlo, qhi, rlo, rhi = q, q, r, r
				first = false
				continue
			}
			qlo, qhi = min64(qlo, q), max64(qhi, q)
			rlo, rhi = min64(rlo, r), max64(rhi, r)
		}
	}
	return qlo - 2, qhi + 2, rlo - 2, rhi + 2
}
