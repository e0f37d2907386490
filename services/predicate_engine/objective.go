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
)

const (
	// logFloor mirrors the clamp torch applies to log terms in BCELoss.
	logFloor = -100
	// gradFloor bounds p*(1-p) away from zero in the BCE gradient.
	gradFloor = 1e-12
)

// brushObjective is the class-balanced binary cross-entropy of one brush.
//
// Selected points weigh n/n_selected and unselected points weigh
// k*n/n_unselected, so a small selection is not drowned out by the rest of
// the dataset. The loss is averaged over all n points.
type brushObjective struct {
	mask    []bool
	weights []float64
}

// newBrushObjective builds the per-point weights of a brush. The mask must
// have been validated to contain both classes.
func newBrushObjective(mask []bool, negativeWeight float64) brushObjective {
	n := float64(len(mask))
	var nSelected float64
	for _, m := range mask {
		if m {
			nSelected++
		}
	}
	wPos := n / nSelected
	wNeg := negativeWeight * n / (n - nSelected)
	weights := make([]float64, len(mask))
	for i, m := range mask {
		if m {
			weights[i] = wPos
		} else {
			weights[i] = wNeg
		}
	}
	return brushObjective{mask: mask, weights: weights}
}

// lossAndGrad returns the weighted BCE of the box over x and adds its
// gradient into gA and gMu.
func (o brushObjective) lossAndGrad(x *mat.Dense, box BoxModel, b int, gA, gMu []float64) float64 {
	rows, _ := x.Dims()
	n := float64(rows)
	var loss float64
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		p := Score(row, box, b)
		w := o.weights[i]
		var y float64
		if o.mask[i] {
			y = 1
			loss -= w * math.Max(math.Log(p), logFloor)
		} else {
			loss -= w * math.Max(math.Log(1-p), logFloor)
		}
		dp := w * (p - y) / math.Max(p*(1-p), gradFloor) / n
		scoreGrad(row, box, b, dp, gA, gMu)
	}
	return loss / n
}

// smoothnessLoss penalizes differences between adjacent brushes:
//
//	cA * mean((a[t+1]-a[t])^2) + cMu * mean((mu[t+1]-mu[t])^2)
//
// where the means run over all adjacent pairs and features. Gradients are
// added into gA and gMu, indexed by brush.
func smoothnessLoss(boxes []BoxModel, cA, cMu float64, gA, gMu [][]float64) float64 {
	if len(boxes) < 2 {
		return 0
	}
	cols := len(boxes[0].A)
	count := float64((len(boxes) - 1) * cols)
	var loss float64
	for t := 0; t+1 < len(boxes); t++ {
		for k := 0; k < cols; k++ {
			if cA != 0 {
				d := boxes[t+1].A[k] - boxes[t].A[k]
				loss += cA * d * d / count
				g := 2 * cA * d / count
				gA[t+1][k] += g
				gA[t][k] -= g
			}
			if cMu != 0 {
				d := boxes[t+1].Mu[k] - boxes[t].Mu[k]
				loss += cMu * d * d / count
				g := 2 * cMu * d / count
				gMu[t+1][k] += g
				gMu[t][k] -= g
			}
		}
	}
	return loss
}
