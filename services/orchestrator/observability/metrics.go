// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the DimBridge HTTP
// service.
//
// # Description
//
// Metrics cover predicate requests by endpoint and outcome, induction
// latency, result-store hits, dataset cache loads, rate-limited requests
// and the number of inductions in flight. They are served on /metrics next
// to the OpenTelemetry instruments exported by pkg/telemetry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "dimbridge"
	predicateSubsystem = "predicates"
)

// Endpoint labels the route that served a request.
type Endpoint string

const (
	EndpointPredicates Endpoint = "predicates"
	EndpointLegacy     Endpoint = "legacy_predicates"
	EndpointWebSocket  Endpoint = "predicates_ws"
)

// Metrics holds the service's Prometheus collectors.
//
// # Fields
//
//   - RequestsTotal: predicate requests by endpoint and status code label.
//   - InductionSeconds: engine wall time by mode.
//   - StoreLookupsTotal: result store lookups by outcome (hit, miss, error).
//   - DatasetLoadsTotal: dataset loads from disk by outcome.
//   - RateLimitedTotal: requests rejected by the rate limiter.
//   - ActiveInductions: inductions currently running.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	InductionSeconds  *prometheus.HistogramVec
	StoreLookupsTotal *prometheus.CounterVec
	DatasetLoadsTotal *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	ActiveInductions  prometheus.Gauge
}

// DefaultMetrics is the instance registered by InitMetrics.
var DefaultMetrics *Metrics

// InitMetrics registers the metrics on the default Prometheus registry and
// stores them in DefaultMetrics. Calling it twice panics on duplicate
// registration.
func InitMetrics() *Metrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: predicateSubsystem,
				Name:      "requests_total",
				Help:      "Total predicate requests by endpoint and result code",
			},
			[]string{"endpoint", "code"},
		),
		InductionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: predicateSubsystem,
				Name:      "induction_seconds",
				Help:      "Predicate induction wall time in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		StoreLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: predicateSubsystem,
				Name:      "store_lookups_total",
				Help:      "Result store lookups by outcome",
			},
			[]string{"outcome"},
		),
		DatasetLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "datasets",
				Name:      "loads_total",
				Help:      "Dataset loads from disk by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: predicateSubsystem,
				Name:      "rate_limited_total",
				Help:      "Predicate requests rejected by the rate limiter",
			},
		),
		ActiveInductions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: predicateSubsystem,
				Name:      "active_inductions",
				Help:      "Number of inductions currently running",
			},
		),
	}
}

// RecordRequest counts a finished request. code is "ok" or an error code.
// A nil receiver is a no-op, so handlers work without metrics.
func (m *Metrics) RecordRequest(endpoint Endpoint, code string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), code).Inc()
}

// ObserveInduction records the duration of one engine run.
func (m *Metrics) ObserveInduction(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.InductionSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordStoreLookup counts a result store lookup: "hit", "miss" or "error".
func (m *Metrics) RecordStoreLookup(outcome string) {
	if m == nil {
		return
	}
	m.StoreLookupsTotal.WithLabelValues(outcome).Inc()
}

// RecordDatasetLoad counts a dataset load from disk.
func (m *Metrics) RecordDatasetLoad(err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.DatasetLoadsTotal.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// TrackInduction increments ActiveInductions and returns the matching
// decrement.
func (m *Metrics) TrackInduction() func() {
	if m == nil {
		return func() {}
	}
	m.ActiveInductions.Inc()
	return m.ActiveInductions.Dec
}
