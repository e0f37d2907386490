// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator is the container entrypoint of the DimBridge service.
//
// Unlike `dimbridge serve` it reads no config file: every setting comes from
// the environment, and logs are JSON on stdout.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/AleutianAI/DimBridge/cmd/dimbridge/config"
	"github.com/AleutianAI/DimBridge/pkg/logging"
	"github.com/AleutianAI/DimBridge/services/orchestrator"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	cfg.Server.ResultStore = getEnv("DIMBRIDGE_RESULT_STORE", "/data/results")
	cfg.Server.DataDir = getEnv("DIMBRIDGE_DATA_DIR", "/data/datasets")
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		slog.Error("invalid environment", "error", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Service: "dimbridge-orchestrator",
		JSON:    true,
		Writer:  os.Stdout,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, orchestrator.Config{
		Port:              cfg.Server.Port,
		DataDir:           cfg.Server.DataDir,
		ResultStorePath:   cfg.Server.ResultStore,
		GinMode:           getEnv("GIN_MODE", "release"),
		RequestsPerSecond: getEnvFloat("DIMBRIDGE_REQUESTS_PER_SECOND", cfg.Server.RequestsPerSecond),
		Workers:           getEnvInt("DIMBRIDGE_WORKERS", cfg.Engine.Workers),
		WatchDatasets:     true,
		Telemetry:         cfg.Telemetry,
		Logger:            logger.Slog(),
	})
	if err != nil {
		slog.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}
	if err := svc.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// getEnv returns the environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
