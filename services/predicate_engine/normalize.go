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
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Normalizer z-scores the columns of a points matrix and inverts the
// transform for extracted intervals.
//
// Scale is the sample standard deviation plus epsilon, so zero-variance
// columns map to zero instead of dividing by zero.
type Normalizer struct {
	Mean  []float64
	Scale []float64
}

// NewNormalizer computes per-column mean and scale of x0.
func NewNormalizer(x0 mat.Matrix, eps float64) *Normalizer {
	_, cols := x0.Dims()
	n := &Normalizer{
		Mean:  make([]float64, cols),
		Scale: make([]float64, cols),
	}
	for k := 0; k < cols; k++ {
		col := mat.Col(nil, k, x0)
		mean, std := meanStd(col)
		n.Mean[k] = mean
		n.Scale[k] = std + eps
	}
	return n
}

// Transform returns (x0 - mean) / scale as a new matrix.
func (n *Normalizer) Transform(x0 mat.Matrix) *mat.Dense {
	rows, cols := x0.Dims()
	x := mat.NewDense(rows, cols, nil)
	x.Apply(func(_, k int, v float64) float64 {
		return (v - n.Mean[k]) / n.Scale[k]
	}, x0)
	return x
}

// Center maps a normalized coordinate on axis k back to original units.
func (n *Normalizer) Center(k int, v float64) float64 {
	return v*n.Scale[k] + n.Mean[k]
}

// Width maps a normalized length on axis k back to original units.
func (n *Normalizer) Width(k int, w float64) float64 {
	return w * n.Scale[k]
}

// meanStd returns the mean and the unbiased standard deviation of v. The
// deviation of fewer than two values is reported as 0.
func meanStd(v []float64) (float64, float64) {
	if len(v) < 2 {
		if len(v) == 0 {
			return 0, 0
		}
		return v[0], 0
	}
	mean, std := stat.MeanStdDev(v, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}
