// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/DimBridge/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

var quietTelemetry = telemetry.Config{
	ServiceName:    "dimbridge-test",
	TraceExporter:  telemetry.ExporterNone,
	MetricExporter: telemetry.ExporterNone,
}

func testConfig(t *testing.T) Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "cars", "cars.csv"),
		[]byte("x,y,mpg,hp\n0,0,20,100\n1,1,30,90\n2,2,25,150\n"), 0o644))
	return Config{
		DataDir:   root,
		GinMode:   gin.TestMode,
		Telemetry: quietTelemetry,
	}
}

// =============================================================================
// Config Tests
// =============================================================================

func TestApplyConfigDefaults_AllDefaults(t *testing.T) {
	result := applyConfigDefaults(Config{})

	assert.Equal(t, 12210, result.Port, "default port should be 12210")
	assert.Equal(t, "./datasets", result.DataDir)
	assert.Equal(t, 4.0, result.RequestsPerSecond)
	assert.Equal(t, 1, result.Workers)
	assert.Equal(t, 15*time.Second, result.ShutdownTimeout)
	assert.Equal(t, 7*24*time.Hour, result.ResultTTL)
	assert.Equal(t, "dimbridge", result.Telemetry.ServiceName)
	assert.NotNil(t, result.Registry)
	assert.NotNil(t, result.Logger)
	assert.Empty(t, result.ResultStorePath, "results stay in memory by default")
}

func TestApplyConfigDefaults_TableDriven(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(t *testing.T, c Config)
	}{
		{
			name:  "custom port preserved",
			input: Config{Port: 8080},
			check: func(t *testing.T, c Config) { assert.Equal(t, 8080, c.Port) },
		},
		{
			name:  "negative rate disables limiting",
			input: Config{RequestsPerSecond: -1},
			check: func(t *testing.T, c Config) { assert.Equal(t, -1.0, c.RequestsPerSecond) },
		},
		{
			name:  "workers preserved",
			input: Config{Workers: 8},
			check: func(t *testing.T, c Config) { assert.Equal(t, 8, c.Workers) },
		},
		{
			name:  "telemetry preserved",
			input: Config{Telemetry: quietTelemetry},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "dimbridge-test", c.Telemetry.ServiceName)
				assert.Equal(t, telemetry.ExporterNone, c.Telemetry.MetricExporter)
			},
		},
		{
			name: "telemetry exporters kept without service name",
			input: Config{Telemetry: telemetry.Config{
				TraceExporter:  telemetry.ExporterStdout,
				MetricExporter: telemetry.ExporterNone,
				OTLPEndpoint:   "collector:4317",
			}},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "dimbridge", c.Telemetry.ServiceName)
				assert.Equal(t, telemetry.ExporterStdout, c.Telemetry.TraceExporter)
				assert.Equal(t, telemetry.ExporterNone, c.Telemetry.MetricExporter)
				assert.Equal(t, "collector:4317", c.Telemetry.OTLPEndpoint)
				assert.NotEmpty(t, c.Telemetry.ServiceVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, applyConfigDefaults(tt.input))
		})
	}
}

// =============================================================================
// Service Tests
// =============================================================================

func TestNew_ServesRoutes(t *testing.T) {
	svc, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	router := svc.Router()
	require.NotNil(t, router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/datasets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["cars"]`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestNew_WithWatcherAndPersistentStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.WatchDatasets = true
	cfg.ResultStorePath = filepath.Join(t.TempDir(), "results")

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	// Closing twice is harmless.
	require.NoError(t, svc.Close())
}

func TestNew_UnknownExporter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.TraceExporter = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, telemetry.ErrUnknownExporter)
}

func TestRun_GracefulShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := testConfig(t)
	cfg.Port = port
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

// =============================================================================
// Benchmark Tests
// =============================================================================

func BenchmarkApplyConfigDefaults(b *testing.B) {
	cfg := Config{Port: 8080, Telemetry: quietTelemetry}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = applyConfigDefaults(cfg)
	}
}
