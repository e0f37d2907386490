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
	"log/slog"
)

// =============================================================================
// Configuration
// =============================================================================

// Canonical hyperparameters of the induction routine.
const (
	DefaultIterations     = 1000
	DefaultLearningRate   = 1e-2
	DefaultMomentum       = 0.8
	DefaultWeightDecayA   = 0.25
	DefaultExponentB      = 4
	DefaultEpsilon        = 1e-6
	DefaultNegativeWeight = 2.0

	// smoothnessPair applies to exactly two brushes, smoothnessSequence to more.
	smoothnessPair     = 5.0
	smoothnessSequence = 50.0

	minEpsilon = 1e-6
	maxEpsilon = 0.1
)

// ProgressEvent reports the training loss at a given iteration.
type ProgressEvent struct {
	Iteration  int     `json:"iteration"`
	Iterations int     `json:"iterations"`
	Loss       float64 `json:"loss"`
}

// Config holds the hyperparameters of one induction run.
//
// # Description
//
// Zero values are replaced by the canonical defaults in applyConfigDefaults,
// so Config{} is a valid configuration.
//
// # Fields
//
//   - Iterations: fixed optimizer budget. No early stopping.
//   - LearningRate, Momentum: Nesterov SGD settings.
//   - WeightDecayA: L2 decay applied to the steepness parameters only.
//   - SmoothnessCoeff: 0 picks 5 (two brushes) or 50 (more), a positive
//     value overrides, a negative value disables the term.
//   - MuSmoothnessCoeff: coefficient of the center smoothness term. 0 disables.
//   - ExponentB: edge sharpness of the bump function.
//   - Epsilon: stabilizer added to standard deviations, in [1e-6, 0.1].
//   - NegativeWeight: multiplier on the unselected class weight.
//   - Workers: goroutines used to evaluate brushes within one iteration.
//   - ProgressEvery: iterations between progress reports.
//   - Progress: optional progress callback, called on the training goroutine.
//   - Logger: optional logger, slog.Default() when nil.
type Config struct {
	Iterations        int
	LearningRate      float64
	Momentum          float64
	WeightDecayA      float64
	SmoothnessCoeff   float64
	MuSmoothnessCoeff float64
	ExponentB         int
	Epsilon           float64
	NegativeWeight    float64
	Workers           int
	ProgressEvery     int
	Progress          func(ProgressEvent)
	Logger            *slog.Logger
}

// DefaultConfig returns the canonical configuration.
func DefaultConfig() Config {
	return applyConfigDefaults(Config{})
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Momentum == 0 {
		cfg.Momentum = DefaultMomentum
	}
	if cfg.WeightDecayA == 0 {
		cfg.WeightDecayA = DefaultWeightDecayA
	}
	if cfg.ExponentB == 0 {
		cfg.ExponentB = DefaultExponentB
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.NegativeWeight == 0 {
		cfg.NegativeWeight = DefaultNegativeWeight
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if cfg.ProgressEvery == 0 {
		cfg.ProgressEvery = max(1, cfg.Iterations/10)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// Validate checks that every hyperparameter is in range.
func (c Config) Validate() error {
	switch {
	case c.Iterations < 1:
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidConfig, c.Iterations)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive, got %g", ErrInvalidConfig, c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return fmt.Errorf("%w: momentum must be in [0, 1), got %g", ErrInvalidConfig, c.Momentum)
	case c.WeightDecayA < 0:
		return fmt.Errorf("%w: weight decay must be non-negative, got %g", ErrInvalidConfig, c.WeightDecayA)
	case c.MuSmoothnessCoeff < 0:
		return fmt.Errorf("%w: mu smoothness must be non-negative, got %g", ErrInvalidConfig, c.MuSmoothnessCoeff)
	case c.ExponentB < 1:
		return fmt.Errorf("%w: exponent b must be at least 1, got %d", ErrInvalidConfig, c.ExponentB)
	case c.Epsilon < minEpsilon || c.Epsilon > maxEpsilon:
		return fmt.Errorf("%w: epsilon must be in [%g, %g], got %g", ErrInvalidConfig, minEpsilon, maxEpsilon, c.Epsilon)
	case c.NegativeWeight <= 0:
		return fmt.Errorf("%w: negative weight must be positive, got %g", ErrInvalidConfig, c.NegativeWeight)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.ProgressEvery < 1:
		return fmt.Errorf("%w: progress interval must be positive, got %d", ErrInvalidConfig, c.ProgressEvery)
	}
	return nil
}

// smoothness returns the coefficient of the steepness smoothness term for a
// sequence of nBrushes brushes.
func (c Config) smoothness(nBrushes int) float64 {
	if nBrushes < 2 || c.SmoothnessCoeff < 0 {
		return 0
	}
	if c.SmoothnessCoeff > 0 {
		return c.SmoothnessCoeff
	}
	if nBrushes == 2 {
		return smoothnessPair
	}
	return smoothnessSequence
}
