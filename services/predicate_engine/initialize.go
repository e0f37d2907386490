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
	"gonum.org/v1/gonum/mat"
)

// BoxModel holds the trainable parameters of one brush in normalized space.
//
// Mu is the box center. A is the inverse half-width: the 0.5 level set of the
// bump function lies at distance 1/|A[k]| from Mu[k] along axis k.
type BoxModel struct {
	A  []float64 `json:"a"`
	Mu []float64 `json:"mu"`
}

// clone returns a deep copy, used to freeze parameters after training.
func (b BoxModel) clone() BoxModel {
	return BoxModel{
		A:  append([]float64(nil), b.A...),
		Mu: append([]float64(nil), b.Mu...),
	}
}

// initialBoxes centers each brush's box on the centroid of its selected
// points and sets the steepness from their spread: tight selections start
// with a narrow box, loose ones with a wide box.
func initialBoxes(x *mat.Dense, selections [][]bool, eps float64) []BoxModel {
	rows, cols := x.Dims()
	boxes := make([]BoxModel, len(selections))
	values := make([]float64, 0, rows)
	for t, mask := range selections {
		box := BoxModel{
			A:  make([]float64, cols),
			Mu: make([]float64, cols),
		}
		for k := 0; k < cols; k++ {
			values = values[:0]
			for i := 0; i < rows; i++ {
				if mask[i] {
					values = append(values, x.At(i, k))
				}
			}
			mean, std := meanStd(values)
			box.Mu[k] = mean
			box.A[k] = 1 / (std + eps)
		}
		boxes[t] = box
	}
	return boxes
}
