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

import "gonum.org/v1/gonum/mat"

// QualityRecord reports how well a fitted predicate reproduces its brush.
type QualityRecord struct {
	Brush     int     `json:"brush"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// evaluateBox thresholds the bump score at 0.5 and scores the resulting
// prediction against the brush mask.
func evaluateBox(x *mat.Dense, box BoxModel, b int, mask []bool, brush int) QualityRecord {
	rows, _ := x.Dims()
	predicted := make([]bool, rows)
	for i := range predicted {
		predicted[i] = Score(x.RawRowView(i), box, b) > 0.5
	}
	return evaluatePrediction(predicted, mask, brush)
}

// evaluatePrediction computes accuracy, precision, recall and F1. Precision
// and recall are 0 when their denominator is 0; F1 is 0 unless both are
// positive.
func evaluatePrediction(predicted, mask []bool, brush int) QualityRecord {
	var tp, fp, fn, correct float64
	for i, p := range predicted {
		switch {
		case p && mask[i]:
			tp++
			correct++
		case p && !mask[i]:
			fp++
		case !p && mask[i]:
			fn++
		default:
			correct++
		}
	}
	q := QualityRecord{Brush: brush}
	if len(predicted) > 0 {
		q.Accuracy = correct / float64(len(predicted))
	}
	if tp+fp > 0 {
		q.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		q.Recall = tp / (tp + fn)
	}
	if q.Precision > 0 && q.Recall > 0 {
		q.F1 = 2 / (1/q.Precision + 1/q.Recall)
	}
	return q
}
