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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	box := BoxModel{A: []float64{2, 0.5}, Mu: []float64{1, -1}}

	t.Run("is one at the center", func(t *testing.T) {
		assert.Equal(t, 1.0, Score([]float64{1, -1}, box, 4))
	})

	t.Run("is one half on the level set", func(t *testing.T) {
		assert.InDelta(t, 0.5, Score([]float64{1.5, -1}, box, 4), 1e-12)
		assert.InDelta(t, 0.5, Score([]float64{1, 1}, box, 4), 1e-12)
		assert.InDelta(t, 0.5, Score([]float64{1, -3}, box, 4), 1e-12)
	})

	t.Run("ignores the sign of a", func(t *testing.T) {
		flipped := BoxModel{A: []float64{-2, -0.5}, Mu: box.Mu}
		x := []float64{0.3, 0.7}
		assert.Equal(t, Score(x, box, 4), Score(x, flipped, 4))
	})

	t.Run("decays monotonically", func(t *testing.T) {
		prev := 1.0
		for d := 0.1; d < 3; d += 0.1 {
			s := Score([]float64{1 + d, -1}, box, 4)
			assert.Less(t, s, prev)
			prev = s
		}
	})
}

func TestScoreGrad_MatchesFiniteDifferences(t *testing.T) {
	x := []float64{0.4, -1.3, 2.2}
	box := BoxModel{A: []float64{1.7, -0.8, 0.6}, Mu: []float64{0.1, -0.2, 1.5}}
	const h = 1e-6

	for _, b := range []int{2, 3, 4, 6} {
		gA := make([]float64, 3)
		gMu := make([]float64, 3)
		s := scoreGrad(x, box, b, 1, gA, gMu)
		assert.InDelta(t, Score(x, box, b), s, 1e-15)

		for i := range x {
			plus, minus := box.clone(), box.clone()
			plus.A[i] += h
			minus.A[i] -= h
			numeric := (Score(x, plus, b) - Score(x, minus, b)) / (2 * h)
			assert.InDelta(t, numeric, gA[i], 1e-6, "b=%d dscore/da[%d]", b, i)

			plus, minus = box.clone(), box.clone()
			plus.Mu[i] += h
			minus.Mu[i] -= h
			numeric = (Score(x, plus, b) - Score(x, minus, b)) / (2 * h)
			assert.InDelta(t, numeric, gMu[i], 1e-6, "b=%d dscore/dmu[%d]", b, i)
		}
	}
}

func TestScoreGrad_AccumulatesWithCoefficient(t *testing.T) {
	x := []float64{0.5}
	box := BoxModel{A: []float64{1}, Mu: []float64{0}}
	gA := []float64{10}
	gMu := []float64{-10}
	scoreGrad(x, box, 4, 0, gA, gMu)
	assert.Equal(t, []float64{10}, gA, "zero coefficient leaves gradients untouched")

	ref := []float64{0}
	refMu := []float64{0}
	scoreGrad(x, box, 4, 1, ref, refMu)
	scoreGrad(x, box, 4, 3, gA, gMu)
	assert.InDelta(t, 10+3*ref[0], gA[0], 1e-12)
	assert.InDelta(t, -10+3*refMu[0], gMu[0], 1e-12)
}

func TestPowInt(t *testing.T) {
	for n := 0; n <= 9; n++ {
		assert.InDelta(t, math.Pow(1.3, float64(n)), powInt(1.3, n), 1e-12, "n=%d", n)
	}
	require.Equal(t, 0.0, powInt(0, 3))
}
