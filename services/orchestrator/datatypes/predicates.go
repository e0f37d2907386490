// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the request and response bodies of the
// predicate API.
package datatypes

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/go-playground/validator/v10"
)

// maxDatasetNameLen bounds the dataset field before it reaches the file
// system.
const maxDatasetNameLen = 128

// predicateValidate is the validator instance for predicate datatypes.
var predicateValidate *validator.Validate

func init() {
	predicateValidate = validator.New()
	predicateValidate.RegisterStructValidation(validateBrush, dataset.Brush{})
}

// validateBrush requires both extents to be ordered.
func validateBrush(sl validator.StructLevel) {
	b := sl.Current().Interface().(dataset.Brush)
	if !(b.XExtent[0] < b.XExtent[1]) {
		sl.ReportError(b.XExtent, "XExtent", "x_extent", "ordered", "")
	}
	if !(b.YExtent[0] < b.YExtent[1]) {
		sl.ReportError(b.YExtent, "YExtent", "y_extent", "ordered", "")
	}
}

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// PredicateOptions overrides engine hyperparameters. Zero fields keep the
// server defaults.
type PredicateOptions struct {
	Iterations      int     `json:"iterations,omitempty" validate:"omitempty,min=1,max=100000"`
	LearningRate    float64 `json:"learning_rate,omitempty" validate:"omitempty,gt=0,lte=10"`
	Momentum        float64 `json:"momentum,omitempty" validate:"omitempty,gte=0,lt=1"`
	WeightDecayA    float64 `json:"weight_decay_a,omitempty" validate:"omitempty,gte=0"`
	SmoothnessCoeff float64 `json:"smoothness_coeff,omitempty"`
	ExponentB       int     `json:"exponent_b,omitempty" validate:"omitempty,min=1,max=16"`
}

// Apply copies the non-zero options onto cfg.
func (o *PredicateOptions) Apply(cfg predicate_engine.Config) predicate_engine.Config {
	if o == nil {
		return cfg
	}
	if o.Iterations != 0 {
		cfg.Iterations = o.Iterations
	}
	if o.LearningRate != 0 {
		cfg.LearningRate = o.LearningRate
	}
	if o.Momentum != 0 {
		cfg.Momentum = o.Momentum
	}
	if o.WeightDecayA != 0 {
		cfg.WeightDecayA = o.WeightDecayA
	}
	if o.SmoothnessCoeff != 0 {
		cfg.SmoothnessCoeff = o.SmoothnessCoeff
	}
	if o.ExponentB != 0 {
		cfg.ExponentB = o.ExponentB
	}
	return cfg
}

// PredicateRequest asks for one predicate per brush of a dataset.
//
// Exactly one of Subsets (explicit masks) or Brushes (rectangles on the x/y
// projection) must be given.
type PredicateRequest struct {
	Dataset    string            `json:"dataset" validate:"required,max=128"`
	Subsets    [][]bool          `json:"subsets,omitempty"`
	Brushes    []dataset.Brush   `json:"brushes,omitempty" validate:"omitempty,dive"`
	Mode       string            `json:"mode,omitempty" validate:"omitempty,oneof=regression extent"`
	MaxBrushes int               `json:"max_brushes,omitempty" validate:"gte=0"`
	Options    *PredicateOptions `json:"options,omitempty"`
}

// Validate checks field constraints and the subsets/brushes exclusivity.
func (r *PredicateRequest) Validate() error {
	if err := predicateValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	switch {
	case len(r.Subsets) == 0 && len(r.Brushes) == 0:
		return fmt.Errorf("%w: one of subsets or brushes is required", ErrInvalidRequest)
	case len(r.Subsets) > 0 && len(r.Brushes) > 0:
		return fmt.Errorf("%w: subsets and brushes are mutually exclusive", ErrInvalidRequest)
	}
	return nil
}

// EngineMode returns the requested mode, defaulting to regression.
func (r *PredicateRequest) EngineMode() predicate_engine.Mode {
	if r.Mode == "" {
		return predicate_engine.ModeRegression
	}
	return predicate_engine.Mode(r.Mode)
}

// PredicateResponse is the body of a successful predicate request.
type PredicateResponse struct {
	RequestID  string                           `json:"request_id"`
	Dataset    string                           `json:"dataset"`
	Mode       predicate_engine.Mode            `json:"mode"`
	Predicates []predicate_engine.Predicate     `json:"predicates"`
	Qualities  []predicate_engine.QualityRecord `json:"qualities"`
	Cached     bool                             `json:"cached"`
}

// LegacyPredicateResponse is the body returned on /get_predicates.
type LegacyPredicateResponse struct {
	Predicates []predicate_engine.Predicate     `json:"predicates"`
	Qualities  []predicate_engine.QualityRecord `json:"qualities"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// Stream message types sent on the predicate WebSocket.
const (
	StreamProgress = "progress"
	StreamResult   = "result"
	StreamError    = "error"
)

// StreamMessage is one frame on the predicate WebSocket.
type StreamMessage struct {
	Type       string             `json:"type"`
	Iteration  int                `json:"iteration,omitempty"`
	Iterations int                `json:"iterations,omitempty"`
	Loss       float64            `json:"loss,omitempty"`
	Result     *PredicateResponse `json:"result,omitempty"`
	Error      *ErrorResponse     `json:"error,omitempty"`
}
