// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoProjection is returned when brushes are used on a dataset without
// "x" and "y" columns.
var ErrNoProjection = errors.New("dataset has no x/y projection")

// Brush is a rectangle drawn on the 2D projection.
type Brush struct {
	XExtent [2]float64 `json:"x_extent"`
	YExtent [2]float64 `json:"y_extent"`
}

// Contains reports whether (x, y) lies strictly inside the brush.
func (b Brush) Contains(x, y float64) bool {
	return b.XExtent[0] < x && x < b.XExtent[1] &&
		b.YExtent[0] < y && y < b.YExtent[1]
}

// MasksFromBrushes converts brushes to selection masks over ds's points,
// one mask per brush, in order.
func MasksFromBrushes(ds *Dataset, brushes []Brush) ([][]bool, error) {
	if !ds.HasProjection() {
		return nil, fmt.Errorf("%w: %q", ErrNoProjection, ds.Name)
	}
	masks := make([][]bool, len(brushes))
	for t, b := range brushes {
		mask := make([]bool, len(ds.X))
		for i := range mask {
			mask[i] = b.Contains(ds.X[i], ds.Y[i])
		}
		masks[t] = mask
	}
	return masks, nil
}

// SubsampleIndices picks limit evenly spaced indices out of n, always
// keeping the last one. A non-positive limit or one of at least n keeps
// everything. A limit of 1 keeps only the last index, 2 keeps the first and
// the last.
//
//	SubsampleIndices(50, 10) // [0 5 11 16 22 27 33 38 44 49]
func SubsampleIndices(n, limit int) []int {
	if limit <= 0 || n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	switch limit {
	case 1:
		return []int{n - 1}
	case 2:
		return []int{0, n - 1}
	}
	idx := make([]int, limit)
	for i := range idx {
		idx[i] = int(math.Floor(float64(i)/float64(limit-1)*float64(n-1) + 0.5))
	}
	return idx
}

// Subsample keeps the masks at SubsampleIndices(len(masks), limit).
func Subsample(masks [][]bool, limit int) [][]bool {
	idx := SubsampleIndices(len(masks), limit)
	if len(idx) == len(masks) {
		return masks
	}
	out := make([][]bool, len(idx))
	for i, j := range idx {
		out[i] = masks[j]
	}
	return out
}
