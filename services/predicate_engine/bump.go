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

import "math"

// Score evaluates the bump membership function of a box at point x:
//
//	score(x) = 1 / (1 + sum_i (|a_i| * |x_i - mu_i|)^b)
//
// The score is 1 at the center and decays monotonically along every axis.
// The 0.5 level set along axis i sits at |x_i - mu_i| = 1/|a_i|. Larger b
// gives a flatter top and a sharper, more box-like edge.
func Score(x []float64, box BoxModel, b int) float64 {
	var sum float64
	for i, xi := range x {
		sum += powInt(math.Abs(box.A[i])*math.Abs(xi-box.Mu[i]), b)
	}
	return 1 / (1 + sum)
}

// scoreGrad evaluates the score at x and adds coef * dscore/da and
// coef * dscore/dmu into gA and gMu.
//
// With u_i = |a_i| * |d_i|, d_i = x_i - mu_i and s the score:
//
//	dscore/da_i  = -s^2 * b * u_i^(b-1) * |d_i|  * sign(a_i)
//	dscore/dmu_i =  s^2 * b * u_i^(b-1) * |a_i| * sign(d_i)
//
// sign(0) is 0, which picks the zero subgradient at both kinks.
func scoreGrad(x []float64, box BoxModel, b int, coef float64, gA, gMu []float64) float64 {
	var sum float64
	for i, xi := range x {
		sum += powInt(math.Abs(box.A[i])*math.Abs(xi-box.Mu[i]), b)
	}
	s := 1 / (1 + sum)
	if coef == 0 {
		return s
	}
	c := coef * s * s * float64(b)
	for i, xi := range x {
		d := xi - box.Mu[i]
		absA, absD := math.Abs(box.A[i]), math.Abs(d)
		u := powInt(absA*absD, b-1)
		gA[i] -= c * u * absD * sign(box.A[i])
		gMu[i] += c * u * absA * sign(d)
	}
	return s
}

// powInt returns v^n for a small non-negative integer n.
func powInt(v float64, n int) float64 {
	switch n {
	case 0:
		return 1
	case 1:
		return v
	case 2:
		return v * v
	case 3:
		return v * v * v
	case 4:
		v2 := v * v
		return v2 * v2
	}
	r := 1.0
	for n > 0 {
		if n&1 == 1 {
			r *= v
		}
		v *= v
		n >>= 1
	}
	return r
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
