// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predicate_engine induces interval predicates that explain why a
// brushed subset of a multidimensional dataset differs from the rest.
//
// # Description
//
// For every brush the engine fits an axis-aligned soft hyper-box: a bump
// function centered at Mu with per-axis inverse half-width A. All brushes are
// trained jointly with a class-balanced cross-entropy objective and, when
// brushes form a sequence, a smoothness penalty that keeps adjacent boxes
// similar in shape. The fitted boxes are denormalized, clipped to the data
// and reported as per-attribute intervals plus quality metrics.
//
// Pipeline:
//
//	Normalizer -> Initializer -> (Score, Objective, Optimizer) x Iterations
//	                                   │
//	                                   ├─► Quality Evaluator
//	                                   └─► Predicate Extractor
//
// # Thread Safety
//
// The engine holds no shared mutable state. Concurrent calls to Induce are
// independent. A single call is synchronous and blocks for the whole
// iteration budget unless its context is cancelled.
//
// # Usage
//
//	res, err := predicate_engine.Induce(ctx, points, masks, columns, predicate_engine.Config{})
//	if errors.Is(err, predicate_engine.ErrInvalidSelection) {
//	    // reject the request
//	}
//	for t, p := range res.Predicates {
//	    fmt.Println(t, p, res.Qualities[t].F1)
//	}
package predicate_engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Mode names the strategy used to derive predicates.
type Mode string

const (
	// ModeRegression fits soft boxes by gradient descent.
	ModeRegression Mode = "regression"
	// ModeExtent reports the bounding box of the selected points.
	ModeExtent Mode = "extent"
)

// Result is the output of one induction run. Predicates, Qualities and Boxes
// are indexed by brush, in the order of the input selections.
type Result struct {
	Predicates []Predicate     `json:"predicates"`
	Qualities  []QualityRecord `json:"qualities"`
	Boxes      []BoxModel      `json:"boxes,omitempty"`
	FinalLoss  float64         `json:"final_loss"`
	Iterations int             `json:"iterations"`
}

// Induce fits one predicate per brush.
//
// # Description
//
// Normalizes the points, initializes each box from its selection's centroid
// and spread, runs cfg.Iterations steps of Nesterov SGD on the summed
// objective, then evaluates and extracts every brush from the frozen
// parameters.
//
// # Inputs
//
//   - ctx: Checked between iterations. Cancellation aborts the run.
//   - points: n_points x n_features matrix in original units. Not modified.
//   - selections: one mask of length n_points per brush, in sequence order.
//     Every mask needs at least one selected and one unselected point.
//   - attributeNames: one name per feature.
//   - cfg: Hyperparameters. Zero values take the canonical defaults.
//
// # Outputs
//
//   - *Result: Predicates, qualities and frozen boxes.
//   - error: ErrInvalidConfig, ErrShapeMismatch, ErrInvalidSelection,
//     ErrNumericalInstability, ErrDegenerateInterval or the context error.
//
// # Limitations
//
//   - Local optimization from a fixed initialization; the box is not
//     guaranteed to be globally optimal.
func Induce(ctx context.Context, points mat.Matrix, selections [][]bool, attributeNames []string, cfg Config) (*Result, error) {
	cfg = applyConfigDefaults(cfg)
	ctx, span := tracer.Start(ctx, "predicate_engine.Induce",
		trace.WithAttributes(
			attribute.Int("brushes", len(selections)),
			attribute.Int("iterations", cfg.Iterations),
		))
	defer span.End()
	start := time.Now()

	res, err := induce(ctx, points, selections, attributeNames, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordRun(ctx, ModeRegression, start, 0, err)
		return nil, err
	}
	span.SetAttributes(attribute.Float64("final_loss", res.FinalLoss))
	recordRun(ctx, ModeRegression, start, res.Iterations, nil)
	return res, nil
}

func induce(ctx context.Context, points mat.Matrix, selections [][]bool, attributeNames []string, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateInputs(points, selections, attributeNames); err != nil {
		return nil, err
	}

	norm := NewNormalizer(points, cfg.Epsilon)
	x := norm.Transform(points)
	tr := newTrainer(x, initialBoxes(x, selections, cfg.Epsilon), selections, cfg)
	loss, err := tr.run(ctx)
	if err != nil {
		return nil, err
	}

	global := columnExtent(points)
	result := &Result{
		Predicates: make([]Predicate, len(selections)),
		Qualities:  make([]QualityRecord, len(selections)),
		Boxes:      make([]BoxModel, len(selections)),
		FinalLoss:  loss,
		Iterations: cfg.Iterations,
	}
	for t, mask := range selections {
		box := tr.boxes[t].clone()
		result.Boxes[t] = box
		result.Qualities[t] = evaluateBox(x, box, cfg.ExponentB, mask, t)
		predicate, err := extractPredicate(box, norm, global, selectedExtent(points, mask), attributeNames, t)
		if err != nil {
			return nil, err
		}
		result.Predicates[t] = predicate
		cfg.Logger.Debug("brush fitted",
			"brush", t,
			"clauses", len(predicate),
			"accuracy", result.Qualities[t].Accuracy,
			"f1", result.Qualities[t].F1,
		)
	}
	return result, nil
}

// validateInputs checks shapes, finiteness and that every brush has both a
// selected and an unselected point.
func validateInputs(points mat.Matrix, selections [][]bool, attributeNames []string) error {
	rows, cols := points.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("%w: points matrix is empty", ErrShapeMismatch)
	}
	if len(attributeNames) != cols {
		return fmt.Errorf("%w: %d attribute names for %d features", ErrShapeMismatch, len(attributeNames), cols)
	}
	if len(selections) == 0 {
		return fmt.Errorf("%w: no brushes", ErrShapeMismatch)
	}
	for t, mask := range selections {
		if len(mask) != rows {
			return fmt.Errorf("%w: brush %d has %d entries for %d points", ErrShapeMismatch, t, len(mask), rows)
		}
		var n int
		for _, m := range mask {
			if m {
				n++
			}
		}
		if n == 0 {
			return fmt.Errorf("%w: brush %d selects no points", ErrInvalidSelection, t)
		}
		if n == rows {
			return fmt.Errorf("%w: brush %d selects all %d points", ErrInvalidSelection, t, rows)
		}
	}
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			if v := points.At(i, k); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value at row %d, column %q", ErrNumericalInstability, i, attributeNames[k])
			}
		}
	}
	return nil
}

// =============================================================================
// Training Loop
// =============================================================================

// trainer owns the mutable state of one optimization run.
type trainer struct {
	x          *mat.Dense
	boxes      []BoxModel
	objectives []brushObjective
	cfg        Config
	opt        *nesterovSGD

	gA, gMu [][]float64
	grads   [][]float64
	losses  []float64
}

func newTrainer(x *mat.Dense, boxes []BoxModel, selections [][]bool, cfg Config) *trainer {
	tr := &trainer{
		x:          x,
		boxes:      boxes,
		objectives: make([]brushObjective, len(boxes)),
		cfg:        cfg,
		opt:        newNesterovSGD(cfg.LearningRate, cfg.Momentum),
		gA:         make([][]float64, len(boxes)),
		gMu:        make([][]float64, len(boxes)),
		losses:     make([]float64, len(boxes)),
	}
	for t := range boxes {
		tr.objectives[t] = newBrushObjective(selections[t], cfg.NegativeWeight)
		tr.gA[t] = make([]float64, len(boxes[t].A))
		tr.gMu[t] = make([]float64, len(boxes[t].Mu))
		// Steepness decays toward wider boxes; centers are never decayed.
		tr.opt.addGroup(boxes[t].A, cfg.WeightDecayA)
		tr.opt.addGroup(boxes[t].Mu, 0)
		tr.grads = append(tr.grads, tr.gA[t], tr.gMu[t])
	}
	return tr
}

// run executes the full iteration budget and returns the last loss.
func (tr *trainer) run(ctx context.Context) (float64, error) {
	var loss float64
	for e := 0; e < tr.cfg.Iterations; e++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("induction cancelled at iteration %d: %w", e, err)
		}
		var err error
		loss, err = tr.lossAndGrad(ctx)
		if err != nil {
			return 0, err
		}
		if err := tr.checkFinite(e, loss); err != nil {
			return 0, err
		}
		tr.opt.step(tr.grads)
		if err := tr.checkParams(e); err != nil {
			return 0, err
		}
		if e%tr.cfg.ProgressEvery == 0 || e == tr.cfg.Iterations-1 {
			tr.cfg.Logger.Debug("induction progress", "iteration", e, "loss", loss)
			if tr.cfg.Progress != nil {
				tr.cfg.Progress(ProgressEvent{Iteration: e, Iterations: tr.cfg.Iterations, Loss: loss})
			}
		}
	}
	return loss, nil
}

// lossAndGrad zeroes the gradients and evaluates the total objective.
// Each brush is handled by exactly one goroutine and the per-brush losses
// are summed in brush order, so the result does not depend on Workers.
func (tr *trainer) lossAndGrad(ctx context.Context) (float64, error) {
	for t := range tr.boxes {
		clear(tr.gA[t])
		clear(tr.gMu[t])
	}
	b := tr.cfg.ExponentB
	if tr.cfg.Workers > 1 && len(tr.boxes) > 1 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(tr.cfg.Workers)
		for t := range tr.boxes {
			g.Go(func() error {
				tr.losses[t] = tr.objectives[t].lossAndGrad(tr.x, tr.boxes[t], b, tr.gA[t], tr.gMu[t])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	} else {
		for t := range tr.boxes {
			tr.losses[t] = tr.objectives[t].lossAndGrad(tr.x, tr.boxes[t], b, tr.gA[t], tr.gMu[t])
		}
	}
	var total float64
	for _, l := range tr.losses {
		total += l
	}
	total += smoothnessLoss(tr.boxes, tr.cfg.smoothness(len(tr.boxes)), tr.cfg.MuSmoothnessCoeff, tr.gA, tr.gMu)
	return total, nil
}

func (tr *trainer) checkFinite(iteration int, loss float64) error {
	if !isFinite(loss) {
		return fmt.Errorf("%w: loss is %g at iteration %d", ErrNumericalInstability, loss, iteration)
	}
	for t := range tr.boxes {
		if !allFinite(tr.gA[t]) || !allFinite(tr.gMu[t]) {
			return fmt.Errorf("%w: non-finite gradient for brush %d at iteration %d", ErrNumericalInstability, t, iteration)
		}
	}
	return nil
}

func (tr *trainer) checkParams(iteration int) error {
	for t, box := range tr.boxes {
		if !allFinite(box.A) || !allFinite(box.Mu) {
			return fmt.Errorf("%w: non-finite parameters for brush %d after iteration %d", ErrNumericalInstability, t, iteration)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}
