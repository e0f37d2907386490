// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DIMBRIDGE_PORT", "DIMBRIDGE_DATA_DIR", "DIMBRIDGE_RESULT_STORE", "DIMBRIDGE_LOG_LEVEL",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)

	path := filepath.Join(home, ".dimbridge", "dimbridge.yaml")
	assert.FileExists(t, path)
	assert.Equal(t, 12210, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Engine.Iterations)
	assert.Equal(t, filepath.Join(home, ".dimbridge", "results"), cfg.Server.ResultStore)
	assert.Equal(t, filepath.Join(home, ".dimbridge", "logs"), cfg.Logging.Dir)

	// The second load reads the file that was written.
	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_ExplicitPathKeepsDefaultsForMissingKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\nengine:\n  workers: 4\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 1000, cfg.Engine.Iterations)
	assert.Equal(t, "./datasets", cfg.Server.DataDir)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [unterminated"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))
	t.Setenv("DIMBRIDGE_PORT", "9100")
	t.Setenv("DIMBRIDGE_DATA_DIR", "/srv/data")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/srv/data", cfg.Server.DataDir)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DIMBRIDGE_PORT":              "8081",
		"DIMBRIDGE_RESULT_STORE":      "/tmp/results",
		"DIMBRIDGE_LOG_LEVEL":         "debug",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4317",
		"OTEL_TRACES_EXPORTER":        "otlp",
		"OTEL_METRICS_EXPORTER":       "none",
		"DIMBRIDGE_DATA_DIR":          "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg, lookup))
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "./datasets", cfg.Server.DataDir, "empty values are ignored")
	assert.Equal(t, "/tmp/results", cfg.Server.ResultStore)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "otlp", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "none", cfg.Telemetry.MetricExporter)

	for _, port := range []string{"abc", "0", "70000"} {
		env["DIMBRIDGE_PORT"] = port
		assert.Error(t, ApplyEnv(&cfg, lookup), port)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandHome("~/x/y"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
	assert.Equal(t, "~", ExpandHome("~"))
	assert.Equal(t, "", ExpandHome(""))
}
