// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate_engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Clause constrains one attribute to a closed interval in original units.
type Clause struct {
	Dim       int        `json:"dim"`
	Attribute string     `json:"attribute"`
	Interval  [2]float64 `json:"interval"`
}

// Predicate is a conjunction of clauses explaining one brush.
type Predicate []Clause

// extent holds per-column minima and maxima of the raw points.
type extent struct {
	min []float64
	max []float64
}

// columnExtent returns the global extent of every column of x0.
func columnExtent(x0 mat.Matrix) extent {
	_, cols := x0.Dims()
	e := extent{min: make([]float64, cols), max: make([]float64, cols)}
	for k := 0; k < cols; k++ {
		col := mat.Col(nil, k, x0)
		e.min[k] = floats.Min(col)
		e.max[k] = floats.Max(col)
	}
	return e
}

// selectedExtent returns the extent of the rows of x0 picked by mask.
func selectedExtent(x0 mat.Matrix, mask []bool) extent {
	_, cols := x0.Dims()
	e := extent{min: make([]float64, cols), max: make([]float64, cols)}
	for k := 0; k < cols; k++ {
		e.min[k] = math.Inf(1)
		e.max[k] = math.Inf(-1)
	}
	for i, m := range mask {
		if !m {
			continue
		}
		for k := 0; k < cols; k++ {
			v := x0.At(i, k)
			e.min[k] = math.Min(e.min[k], v)
			e.max[k] = math.Max(e.max[k], v)
		}
	}
	return e
}

// extractPredicate turns a frozen box into clauses in original units.
//
// Per attribute the box's 0.5 level set [mu - 1/|a|, mu + 1/|a|] is
// denormalized and clipped to the global extent. Attributes whose interval
// still spans the whole global extent carry no information and are left out.
// Kept intervals are tightened to the extent of the selected points. When
// the selected points share a single value on the axis the globally clipped
// interval is kept instead, provided it contains that value. A box that
// misses the selected points on an axis is an error.
func extractPredicate(box BoxModel, norm *Normalizer, global, selected extent, names []string, brush int) (Predicate, error) {
	predicate := Predicate{}
	for k := range box.A {
		r := norm.Width(k, 1/math.Abs(box.A[k]))
		mu := norm.Center(k, box.Mu[k])
		lo, hi := mu-r, mu+r
		if !(lo < hi) {
			return nil, fmt.Errorf("%w: brush %d attribute %q has interval [%g, %g]",
				ErrDegenerateInterval, brush, names[k], lo, hi)
		}

		lo = math.Max(lo, global.min[k])
		hi = math.Min(hi, global.max[k])
		if lo <= global.min[k] && hi >= global.max[k] {
			continue
		}

		if !(lo < hi) {
			return nil, fmt.Errorf("%w: brush %d attribute %q box [%g, %g] lies outside the data extent [%g, %g]",
				ErrDegenerateInterval, brush, names[k], mu-r, mu+r, global.min[k], global.max[k])
		}

		tlo := math.Max(lo, selected.min[k])
		thi := math.Min(hi, selected.max[k])
		switch {
		case tlo < thi:
			lo, hi = tlo, thi
		case selected.min[k] == selected.max[k] && lo <= selected.min[k] && selected.max[k] <= hi:
			// Selected points share one value inside the box.
		default:
			return nil, fmt.Errorf("%w: brush %d attribute %q box [%g, %g] misses the selected points [%g, %g]",
				ErrDegenerateInterval, brush, names[k], lo, hi, selected.min[k], selected.max[k])
		}
		predicate = append(predicate, Clause{
			Dim:       k,
			Attribute: names[k],
			Interval:  [2]float64{lo, hi},
		})
	}
	return predicate, nil
}
