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
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// gridCluster appends a 5x5 grid of points centered at (cx, cy) with the
// given spacing.
func gridCluster(data []float64, cx, cy, step float64) []float64 {
	for i := -2; i <= 2; i++ {
		for j := -2; j <= 2; j++ {
			data = append(data, cx+float64(i)*step, cy+float64(j)*step)
		}
	}
	return data
}

// rangeMask selects rows [from, to) out of n.
func rangeMask(n, from, to int) []bool {
	mask := make([]bool, n)
	for i := from; i < to; i++ {
		mask[i] = true
	}
	return mask
}

func twoClusters() *mat.Dense {
	var data []float64
	data = gridCluster(data, 0, 0, 0.3)
	data = gridCluster(data, 5, 5, 0.3)
	return mat.NewDense(50, 2, data)
}

func threeClusters() *mat.Dense {
	var data []float64
	data = gridCluster(data, 0, 0, 0.1)
	data = gridCluster(data, 4, 0, 0.25)
	data = gridCluster(data, 8, 0, 0.5)
	return mat.NewDense(75, 2, data)
}

func threeClusterMasks() [][]bool {
	return [][]bool{rangeMask(75, 0, 25), rangeMask(75, 25, 50), rangeMask(75, 50, 75)}
}

// gaussianClusters draws n points per center from N(center, 1), rejecting
// draws more than 3 standard deviations out.
func gaussianClusters(seed int64, n int, centers ...[2]float64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	draw := func() float64 {
		for {
			if z := rng.NormFloat64(); math.Abs(z) < 3 {
				return z
			}
		}
	}
	data := make([]float64, 0, 2*n*len(centers))
	for _, c := range centers {
		for i := 0; i < n; i++ {
			data = append(data, c[0]+draw(), c[1]+draw())
		}
	}
	return mat.NewDense(n*len(centers), 2, data)
}

func singleOutlier() (*mat.Dense, [][]bool) {
	var data []float64
	data = gridCluster(data, 0, 0, 0.5)
	data = append(data, 9, 9)
	return mat.NewDense(26, 2, data), [][]bool{rangeMask(26, 25, 26)}
}

var xy = []string{"x1", "x2"}

// assertPredicateProperties checks every clause and quality record of res
// against the data it was induced from.
func assertPredicateProperties(t *testing.T, points *mat.Dense, masks [][]bool, res *Result) {
	t.Helper()
	global := columnExtent(points)
	norm := NewNormalizer(points, DefaultEpsilon)
	require.Len(t, res.Predicates, len(masks))
	require.Len(t, res.Qualities, len(masks))
	require.Len(t, res.Boxes, len(masks))

	for b, mask := range masks {
		selected := selectedExtent(points, mask)
		clauses := make(map[int]Clause)
		for _, c := range res.Predicates[b] {
			clauses[c.Dim] = c
			lo, hi := c.Interval[0], c.Interval[1]

			// Containment.
			assert.LessOrEqual(t, global.min[c.Dim], lo, "brush %d dim %d", b, c.Dim)
			assert.Less(t, lo, hi, "brush %d dim %d", b, c.Dim)
			assert.LessOrEqual(t, hi, global.max[c.Dim], "brush %d dim %d", b, c.Dim)

			// Tightness.
			if selected.min[c.Dim] < selected.max[c.Dim] {
				assert.GreaterOrEqual(t, lo, selected.min[c.Dim], "brush %d dim %d", b, c.Dim)
				assert.LessOrEqual(t, hi, selected.max[c.Dim], "brush %d dim %d", b, c.Dim)
			} else {
				assert.LessOrEqual(t, lo, selected.min[c.Dim], "brush %d dim %d", b, c.Dim)
				assert.GreaterOrEqual(t, hi, selected.max[c.Dim], "brush %d dim %d", b, c.Dim)
			}
		}

		// A feature is left out exactly when its unclipped box covers the
		// global extent.
		box := res.Boxes[b]
		for k := range box.A {
			r := norm.Width(k, 1/math.Abs(box.A[k]))
			mu := norm.Center(k, box.Mu[k])
			covers := mu-r <= global.min[k] && mu+r >= global.max[k]
			_, kept := clauses[k]
			assert.Equal(t, !covers, kept, "brush %d dim %d", b, k)
		}

		q := res.Qualities[b]
		assert.Equal(t, b, q.Brush)
		for _, v := range []float64{q.Accuracy, q.Precision, q.Recall, q.F1} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		if q.Precision == 0 || q.Recall == 0 {
			assert.Zero(t, q.F1)
		}
	}
}

func TestInduce_GaussianClusters(t *testing.T) {
	points := gaussianClusters(42, 50, [2]float64{0, 0}, [2]float64{10, 10})
	masks := [][]bool{rangeMask(100, 0, 50)}
	res, err := Induce(context.Background(), points, masks, xy, Config{})
	require.NoError(t, err)
	assertPredicateProperties(t, points, masks, res)

	q := res.Qualities[0]
	assert.Greater(t, q.Accuracy, 0.9)
	assert.Greater(t, q.F1, 0.9)

	// Either axis separates the clusters, so weight decay may drop one.
	p := res.Predicates[0]
	require.NotEmpty(t, p)
	assert.LessOrEqual(t, len(p), 2)
	for _, clause := range p {
		assert.GreaterOrEqual(t, clause.Interval[0], -3.0)
		assert.LessOrEqual(t, clause.Interval[1], 3.0)
	}
}

func TestInduce_PredicateProperties(t *testing.T) {
	outlierPoints, outlierMasks := singleOutlier()
	tests := []struct {
		name   string
		points *mat.Dense
		masks  [][]bool
	}{
		{"three clusters", threeClusters(), threeClusterMasks()},
		{"single outlier", outlierPoints, outlierMasks},
		{"two clusters", twoClusters(), [][]bool{rangeMask(50, 0, 25)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Induce(context.Background(), tt.points, tt.masks, xy, Config{})
			require.NoError(t, err)
			assertPredicateProperties(t, tt.points, tt.masks, res)
		})
	}
}

func TestInduce_TwoClusters(t *testing.T) {
	points := twoClusters()
	res, err := Induce(context.Background(), points, [][]bool{rangeMask(50, 0, 25)}, xy, Config{})
	require.NoError(t, err)

	require.Len(t, res.Predicates, 1)
	require.Len(t, res.Qualities, 1)
	require.Len(t, res.Boxes, 1)
	assert.Equal(t, DefaultIterations, res.Iterations)
	assert.True(t, isFinite(res.FinalLoss))

	q := res.Qualities[0]
	assert.Greater(t, q.Accuracy, 0.9)
	assert.Greater(t, q.F1, 0.9)

	p := res.Predicates[0]
	require.Len(t, p, 2)
	for k, clause := range p {
		assert.Equal(t, k, clause.Dim)
		assert.Equal(t, xy[k], clause.Attribute)
		assert.Less(t, clause.Interval[0], clause.Interval[1])
		assert.GreaterOrEqual(t, clause.Interval[0], -0.6)
		assert.LessOrEqual(t, clause.Interval[1], 0.6)
	}
}

func TestInduce_SingleOutlier(t *testing.T) {
	points, masks := singleOutlier()
	res, err := Induce(context.Background(), points, masks, xy, Config{})
	require.NoError(t, err)
	for _, clause := range res.Predicates[0] {
		assert.Less(t, clause.Interval[0], clause.Interval[1])
		assert.GreaterOrEqual(t, clause.Interval[0], -1.0)
		assert.LessOrEqual(t, clause.Interval[1], 9.0)
	}
	for _, a := range res.Boxes[0].A {
		assert.True(t, isFinite(a))
	}
}

func TestInduce_InvalidSelections(t *testing.T) {
	points := twoClusters()
	tests := []struct {
		name  string
		masks [][]bool
	}{
		{"all selected", [][]bool{rangeMask(50, 0, 50)}},
		{"none selected", [][]bool{make([]bool, 50)}},
		{"second brush empty", [][]bool{rangeMask(50, 0, 25), make([]bool, 50)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Induce(context.Background(), points, tt.masks, xy, Config{Iterations: 5})
			assert.ErrorIs(t, err, ErrInvalidSelection)
		})
	}
}

func TestInduce_ShapeMismatch(t *testing.T) {
	points := twoClusters()
	tests := []struct {
		name  string
		masks [][]bool
		names []string
	}{
		{"no brushes", nil, xy},
		{"short mask", [][]bool{rangeMask(49, 0, 10)}, xy},
		{"missing attribute name", [][]bool{rangeMask(50, 0, 10)}, []string{"x1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Induce(context.Background(), points, tt.masks, tt.names, Config{Iterations: 5})
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestInduce_RejectsNonFiniteInput(t *testing.T) {
	points := twoClusters()
	points.Set(3, 1, math.NaN())
	_, err := Induce(context.Background(), points, [][]bool{rangeMask(50, 0, 25)}, xy, Config{Iterations: 5})
	assert.ErrorIs(t, err, ErrNumericalInstability)
}

func TestInduce_RejectsInvalidConfig(t *testing.T) {
	_, err := Induce(context.Background(), twoClusters(), [][]bool{rangeMask(50, 0, 25)}, xy, Config{Epsilon: 1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInduce_SmoothnessTiesSequentialBrushes(t *testing.T) {
	points := threeClusters()
	masks := threeClusterMasks()

	joint, err := Induce(context.Background(), points, masks, xy, Config{})
	require.NoError(t, err)
	independent, err := Induce(context.Background(), points, masks, xy, Config{SmoothnessCoeff: -1})
	require.NoError(t, err)

	roughness := func(boxes []BoxModel) float64 {
		var sum float64
		for t := 0; t+1 < len(boxes); t++ {
			for k := range boxes[t].A {
				d := math.Abs(boxes[t+1].A[k]) - math.Abs(boxes[t].A[k])
				sum += d * d
			}
		}
		return sum
	}
	assert.Less(t, roughness(joint.Boxes), roughness(independent.Boxes))
	assert.Len(t, joint.Predicates, 3)
}

func TestInduce_Deterministic(t *testing.T) {
	points := threeClusters()
	masks := threeClusterMasks()

	first, err := Induce(context.Background(), points, masks, xy, Config{Iterations: 200})
	require.NoError(t, err)
	second, err := Induce(context.Background(), points, masks, xy, Config{Iterations: 200})
	require.NoError(t, err)
	parallel, err := Induce(context.Background(), points, masks, xy, Config{Iterations: 200, Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, parallel)
}

func TestInduce_Progress(t *testing.T) {
	var events []ProgressEvent
	cfg := Config{
		Iterations:    100,
		ProgressEvery: 10,
		Progress:      func(e ProgressEvent) { events = append(events, e) },
	}
	_, err := Induce(context.Background(), twoClusters(), [][]bool{rangeMask(50, 0, 25)}, xy, cfg)
	require.NoError(t, err)

	require.Len(t, events, 11)
	assert.Equal(t, 0, events[0].Iteration)
	assert.Equal(t, 99, events[10].Iteration)
	for _, e := range events {
		assert.Equal(t, 100, e.Iterations)
		assert.True(t, isFinite(e.Loss))
	}
}

func TestInduce_Cancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Induce(ctx, twoClusters(), [][]bool{rangeMask(50, 0, 25)}, xy, Config{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("cancelled mid run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var last int
		cfg := Config{
			ProgressEvery: 1,
			Progress: func(e ProgressEvent) {
				last = e.Iteration
				if e.Iteration == 20 {
					cancel()
				}
			},
		}
		_, err := Induce(ctx, twoClusters(), [][]bool{rangeMask(50, 0, 25)}, xy, cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 20, last)
	})
}

func TestExtentPredicates(t *testing.T) {
	points := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 2,
		2, 1,
		1.5, 10,
		9, 9,
	})
	res, err := ExtentPredicates(context.Background(), points, [][]bool{{true, true, true, false, false}}, xy)
	require.NoError(t, err)
	require.Len(t, res.Predicates, 1)
	assert.Nil(t, res.Boxes)

	p := res.Predicates[0]
	require.Len(t, p, 2)
	assert.Equal(t, [2]float64{0, 2}, p[0].Interval)
	assert.Equal(t, [2]float64{0, 2}, p[1].Interval)

	q := res.Qualities[0]
	assert.Equal(t, 1.0, q.Recall)
	assert.Equal(t, 1.0, q.Precision)
	assert.Equal(t, 1.0, q.Accuracy)

	_, err = ExtentPredicates(context.Background(), points, [][]bool{{true, true, true, true, true}}, xy)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}
