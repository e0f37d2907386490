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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

// ExtentPredicates explains each brush by the bounding box of its selected
// points, without any fitting.
//
// # Description
//
// Every attribute yields one clause whose interval is [min, max] of the
// selected points on that axis. Quality is measured with inclusive box
// membership, so recall is always 1. This is the fast baseline the UI shows
// before, or instead of, a fitted predicate.
//
// # Inputs
//
//   - ctx: Context for tracing.
//   - points: n_points x n_features matrix in original units.
//   - selections: one mask of length n_points per brush.
//   - attributeNames: one name per feature.
//
// # Outputs
//
//   - *Result: Predicates and Qualities, one per brush. Boxes is nil.
//   - error: ErrShapeMismatch, ErrInvalidSelection or ErrNumericalInstability.
func ExtentPredicates(ctx context.Context, points mat.Matrix, selections [][]bool, attributeNames []string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "predicate_engine.ExtentPredicates",
		trace.WithAttributes(attribute.Int("brushes", len(selections))))
	defer span.End()
	start := time.Now()

	if err := validateInputs(points, selections, attributeNames); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordRun(ctx, ModeExtent, start, 0, err)
		return nil, err
	}

	rows, cols := points.Dims()
	result := &Result{
		Predicates: make([]Predicate, len(selections)),
		Qualities:  make([]QualityRecord, len(selections)),
	}
	for t, mask := range selections {
		sel := selectedExtent(points, mask)
		predicate := make(Predicate, cols)
		for k := 0; k < cols; k++ {
			predicate[k] = Clause{
				Dim:       k,
				Attribute: attributeNames[k],
				Interval:  [2]float64{sel.min[k], sel.max[k]},
			}
		}
		predicted := make([]bool, rows)
		for i := range predicted {
			inside := true
			for k := 0; k < cols && inside; k++ {
				v := points.At(i, k)
				inside = v >= sel.min[k] && v <= sel.max[k]
			}
			predicted[i] = inside
		}
		result.Predicates[t] = predicate
		result.Qualities[t] = evaluatePrediction(predicted, mask, t)
	}
	recordRun(ctx, ModeExtent, start, 0, nil)
	return result, nil
}
