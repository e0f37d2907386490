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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/AleutianAI/DimBridge/services/predicate_engine"

var (
	tracer = otel.Tracer(instrumentationName)

	metricsOnce sync.Once
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram
	iterations  metric.Int64Counter
)

// initMetrics registers the engine instruments against the global meter
// provider. Registration errors leave the no-op instruments in place.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter(instrumentationName)
		var err error
		if runsTotal, err = meter.Int64Counter(
			"dimbridge_induction_runs_total",
			metric.WithDescription("Predicate induction runs by mode and outcome"),
			metric.WithUnit("{run}"),
		); err != nil {
			otel.Handle(err)
		}
		if runDuration, err = meter.Float64Histogram(
			"dimbridge_induction_duration_seconds",
			metric.WithDescription("Predicate induction duration in seconds"),
			metric.WithUnit("s"),
		); err != nil {
			otel.Handle(err)
		}
		if iterations, err = meter.Int64Counter(
			"dimbridge_induction_iterations_total",
			metric.WithDescription("Optimizer iterations executed"),
			metric.WithUnit("{iteration}"),
		); err != nil {
			otel.Handle(err)
		}
	})
}

// recordRun records one finished run. iters is the number of optimizer
// iterations actually executed.
func recordRun(ctx context.Context, mode Mode, start time.Time, iters int, err error) {
	initMetrics()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.String("outcome", outcome),
	)
	if runsTotal != nil {
		runsTotal.Add(ctx, 1, attrs)
	}
	if runDuration != nil {
		runDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if iterations != nil && iters > 0 {
		iterations.Add(ctx, int64(iters), metric.WithAttributes(attribute.String("mode", string(mode))))
	}
}
