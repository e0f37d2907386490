// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/AleutianAI/DimBridge/services/orchestrator/handlers"
	"github.com/AleutianAI/DimBridge/services/orchestrator/middleware"
	"github.com/AleutianAI/DimBridge/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, limiter *rate.Limiter) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "iris"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "iris", "iris.csv"),
		[]byte("x,y,petal\n0,0,1\n1,1,2\n2,2,3\n"), 0o644))

	reg := prometheus.NewRegistry()
	svc := &handlers.PredicateService{
		Cache:   dataset.NewCache(dataset.NewCatalog(root), nil),
		Metrics: observability.NewMetrics(reg),
	}
	router := gin.New()
	SetupRoutes(router, Deps{
		Service:        svc,
		Limiter:        limiter,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return router
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"GET", "/v1/datasets"},
		{"GET", "/v1/datasets/:name"},
		{"POST", "/v1/predicates"},
		{"GET", "/v1/predicates/ws"},
		{"GET", "/get_dataset_names"},
		{"GET", "/get_dataset/:name"},
		{"POST", "/get_predicates"},
	}

	routes := router.Routes()
	for _, want := range expected {
		found := false
		for _, r := range routes {
			if r.Method == want.method && r.Path == want.path {
				found = true
				break
			}
		}
		assert.True(t, found, "route %s %s not registered", want.method, want.path)
	}
}

func TestSetupRoutes_LegacyAliases(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/get_dataset_names", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["iris"]`, w.Body.String())

	w = serve(router, http.MethodGet, "/get_dataset/iris_local", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "petal")
}

func TestSetupRoutes_RateLimitsPredicates(t *testing.T) {
	router := newTestRouter(t, middleware.NewLimiter(0.001, 1))

	first := serve(router, http.MethodPost, "/v1/predicates", `{}`)
	assert.Equal(t, http.StatusBadRequest, first.Code)

	second := serve(router, http.MethodPost, "/get_predicates", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "rate_limited")

	// Dataset routes are not limited.
	datasets := serve(router, http.MethodGet, "/v1/datasets", "")
	assert.Equal(t, http.StatusOK, datasets.Code)

	metrics := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "dimbridge_predicates_rate_limited_total 1")
}
