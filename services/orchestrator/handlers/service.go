// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers of the DimBridge service.
//
// # Request Flow
//
//	request ─► validate ─► dataset cache ─► masks ─► result store ─► engine
//	                                                      │             │
//	                                                      └── hit ──────┴─► response
//
// Every handler is a closure over a *PredicateService so routes can be
// wired with different stores and limits in tests.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/DimBridge/pkg/telemetry"
	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/AleutianAI/DimBridge/services/orchestrator/datatypes"
	"github.com/AleutianAI/DimBridge/services/orchestrator/observability"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/AleutianAI/DimBridge/services/resultstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dimbridge.handlers"

// PredicateService holds the dependencies shared by the predicate handlers.
type PredicateService struct {
	// Cache serves parsed datasets. Required.
	Cache *dataset.Cache
	// Store persists results. Nil disables result reuse.
	Store *resultstore.Store
	// Metrics records request metrics. Nil disables them.
	Metrics *observability.Metrics
	// Engine is the base configuration; request options override it.
	Engine predicate_engine.Config
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (s *PredicateService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// engineConfig merges server defaults and request options into a fully
// populated configuration, so equal effective settings give equal store
// keys.
func (s *PredicateService) engineConfig(opts *datatypes.PredicateOptions) predicate_engine.Config {
	cfg := predicate_engine.DefaultConfig()
	base := s.Engine
	if base.Iterations > 0 {
		cfg.Iterations = base.Iterations
	}
	if base.Workers > 0 {
		cfg.Workers = base.Workers
	}
	if base.SmoothnessCoeff != 0 {
		cfg.SmoothnessCoeff = base.SmoothnessCoeff
	}
	cfg.Logger = s.logger()
	cfg = opts.Apply(cfg)
	// Recomputed from the final iteration count.
	cfg.ProgressEvery = 0
	return cfg
}

// Predicates resolves a request to a response.
//
// # Description
//
// Loads the dataset, builds the masks (explicit subsets or brushes on the
// projection), applies max_brushes subsampling, then serves the result from
// the store or runs the engine and stores the outcome. progress, when
// non-nil, receives engine progress events on the calling goroutine.
//
// # Outputs
//
//   - *datatypes.PredicateResponse: The predicates and qualities.
//   - error: Dataset, validation or engine errors. Map with errorStatus.
func (s *PredicateService) Predicates(ctx context.Context, req *datatypes.PredicateRequest, progress func(predicate_engine.ProgressEvent)) (*datatypes.PredicateResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "PredicateService.Predicates",
		trace.WithAttributes(
			attribute.String("dataset", req.Dataset),
			attribute.String("mode", string(req.EngineMode())),
		))
	defer span.End()

	resp, err := s.predicates(ctx, req, progress)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cached", resp.Cached))
	return resp, nil
}

func (s *PredicateService) predicates(ctx context.Context, req *datatypes.PredicateRequest, progress func(predicate_engine.ProgressEvent)) (*datatypes.PredicateResponse, error) {
	ds, _, err := s.Cache.Get(ctx, req.Dataset)
	if err != nil {
		return nil, err
	}

	masks := req.Subsets
	if len(req.Brushes) > 0 {
		if masks, err = dataset.MasksFromBrushes(ds, req.Brushes); err != nil {
			return nil, err
		}
	}
	masks = dataset.Subsample(masks, req.MaxBrushes)

	mode := req.EngineMode()
	cfg := s.engineConfig(req.Options)
	cfg.Progress = progress
	resp := &datatypes.PredicateResponse{Dataset: ds.Name, Mode: mode}

	key := resultstore.Key(ds.Fingerprint, mode, masks, cfg)
	if s.Store != nil {
		entry, ok, err := s.Store.Get(ctx, key)
		switch {
		case err != nil:
			s.Metrics.RecordStoreLookup("error")
			s.logger().Warn("result store lookup failed", "error", err)
		case ok:
			s.Metrics.RecordStoreLookup("hit")
			resp.Predicates = entry.Result.Predicates
			resp.Qualities = entry.Result.Qualities
			resp.Cached = true
			return resp, nil
		default:
			s.Metrics.RecordStoreLookup("miss")
		}
	}

	done := s.Metrics.TrackInduction()
	start := time.Now()
	var result *predicate_engine.Result
	if mode == predicate_engine.ModeExtent {
		result, err = predicate_engine.ExtentPredicates(ctx, ds.Points, masks, ds.Columns)
	} else {
		result, err = predicate_engine.Induce(ctx, ds.Points, masks, ds.Columns, cfg)
	}
	done()
	if err != nil {
		return nil, err
	}
	s.Metrics.ObserveInduction(string(mode), time.Since(start))
	s.logger().Info("predicates induced",
		"dataset", ds.Name,
		"mode", mode,
		"brushes", len(masks),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if s.Store != nil {
		entry := &resultstore.Entry{Dataset: ds.Name, Mode: mode, Result: result}
		if err := s.Store.Put(ctx, key, entry); err != nil {
			s.logger().Warn("result store write failed", "error", err)
		}
	}
	resp.Predicates = result.Predicates
	resp.Qualities = result.Qualities
	return resp, nil
}

// errorStatus maps an error to its HTTP status and API code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, datatypes.ErrInvalidRequest),
		errors.Is(err, dataset.ErrInvalidDatasetName),
		errors.Is(err, dataset.ErrNoProjection),
		errors.Is(err, dataset.ErrNoNumericColumns),
		errors.Is(err, predicate_engine.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, predicate_engine.ErrInvalidSelection):
		return http.StatusBadRequest, "invalid_selection"
	case errors.Is(err, predicate_engine.ErrShapeMismatch):
		return http.StatusBadRequest, "shape_mismatch"
	case errors.Is(err, dataset.ErrDatasetNotFound):
		return http.StatusNotFound, "dataset_not_found"
	case errors.Is(err, predicate_engine.ErrDegenerateInterval):
		return http.StatusUnprocessableEntity, "degenerate_interval"
	case errors.Is(err, predicate_engine.ErrNumericalInstability):
		return http.StatusUnprocessableEntity, "numerical_instability"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	}
	return http.StatusInternalServerError, "internal"
}

// newErrorResponse builds the error body. Internal errors are not echoed.
func newErrorResponse(err error, requestID string) (int, datatypes.ErrorResponse) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return status, datatypes.ErrorResponse{Error: msg, Code: code, RequestID: requestID}
}

func newRequestID() string {
	return uuid.NewString()
}

func bindError(err error) error {
	return fmt.Errorf("%w: %v", datatypes.ErrInvalidRequest, err)
}
