// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the DimBridge CLI configuration.
//
// Settings are layered: built-in defaults, then the YAML file, then
// environment variables. Command-line flags are applied last by the
// commands themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/DimBridge/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// DimBridgeConfig is the root of dimbridge.yaml.
type DimBridgeConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Engine    EngineConfig     `yaml:"engine"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig configures `dimbridge serve`.
type ServerConfig struct {
	Port              int     `yaml:"port"`
	DataDir           string  `yaml:"data_dir"`
	ResultStore       string  `yaml:"result_store"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	WatchDatasets     bool    `yaml:"watch_datasets"`
	GinMode           string  `yaml:"gin_mode"`
}

// EngineConfig holds server-wide engine settings.
type EngineConfig struct {
	Workers    int `yaml:"workers"`
	Iterations int `yaml:"iterations"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() DimBridgeConfig {
	tel := telemetry.DefaultConfig()
	return DimBridgeConfig{
		Server: ServerConfig{
			Port:              12210,
			DataDir:           "./datasets",
			ResultStore:       "~/.dimbridge/results",
			RequestsPerSecond: 4,
			WatchDatasets:     true,
			GinMode:           "release",
		},
		Engine: EngineConfig{
			Workers:    1,
			Iterations: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.dimbridge/logs",
		},
		Telemetry: tel,
	}
}

// DefaultPath returns ~/.dimbridge/dimbridge.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".dimbridge", "dimbridge.yaml"), nil
}

// Load reads the configuration at path, or at DefaultPath when path is
// empty, and applies environment overrides. The default file is created on
// first run; an explicit path must exist.
func Load(path string) (DimBridgeConfig, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return DimBridgeConfig{}, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, " First run detected, creating the config at %s\n", path)
			if err := createDefault(path); err != nil {
				return DimBridgeConfig{}, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DimBridgeConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DimBridgeConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return DimBridgeConfig{}, err
	}
	cfg.Server.DataDir = ExpandHome(cfg.Server.DataDir)
	cfg.Server.ResultStore = ExpandHome(cfg.Server.ResultStore)
	cfg.Logging.Dir = ExpandHome(cfg.Logging.Dir)
	return cfg, nil
}

// ApplyEnv overrides cfg from environment variables read through lookup.
func ApplyEnv(cfg *DimBridgeConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup("DIMBRIDGE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid DIMBRIDGE_PORT %q", v)
		}
		cfg.Server.Port = port
	}
	overrides := []struct {
		key string
		dst *string
	}{
		{"DIMBRIDGE_DATA_DIR", &cfg.Server.DataDir},
		{"DIMBRIDGE_RESULT_STORE", &cfg.Server.ResultStore},
		{"DIMBRIDGE_LOG_LEVEL", &cfg.Logging.Level},
		{"OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint},
		{"OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter},
		{"OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricExporter},
	}
	for _, s := range overrides {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
