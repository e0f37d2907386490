// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/AleutianAI/DimBridge/cmd/dimbridge/config"
	"github.com/AleutianAI/DimBridge/pkg/logging"
	"github.com/AleutianAI/DimBridge/pkg/ux"
	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/AleutianAI/DimBridge/services/orchestrator"
	"github.com/AleutianAI/DimBridge/services/predicate_engine"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	port    int
	dataDir string
}

type datasetsOptions struct {
	dataDir string
}

type induceOptions struct {
	csv        string
	brushes    []string
	maskFile   string
	mode       string
	iterations int
	workers    int
	maxBrushes int
	json       bool
	progress   bool
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "dimbridge",
		Short:        "Explain brushed regions of a projection with interval predicates",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.dimbridge/dimbridge.yaml)")

	var serve serveOptions
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the DimBridge HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, serve)
		},
	}
	serveCmd.Flags().IntVar(&serve.port, "port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().StringVar(&serve.dataDir, "data-dir", "", "dataset root (overrides config)")

	var datasets datasetsOptions
	datasetsCmd := &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets under the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDatasets(cmd, configPath, datasets)
		},
	}
	datasetsCmd.Flags().StringVar(&datasets.dataDir, "data-dir", "", "dataset root (overrides config)")

	var induce induceOptions
	induceCmd := &cobra.Command{
		Use:   "induce",
		Short: "Induce predicates for brushes on a CSV file",
		Long: `Induce predicates for one or more brushes on a CSV file.

Brushes are rectangles on the x/y projection columns, given as
--brush x0,x1,y0,y1 (repeatable), or explicit selections given as a JSON
file holding one boolean array per brush (--mask-file).`,
		Example: `  dimbridge induce --csv cars.csv --brush 0,1.5,-1,1
  dimbridge induce --csv cars.csv --mask-file masks.json --mode extent --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInduce(cmd, induce)
		},
	}
	f := induceCmd.Flags()
	f.StringVar(&induce.csv, "csv", "", "CSV file with a header row")
	f.StringArrayVar(&induce.brushes, "brush", nil, "brush as x0,x1,y0,y1 (repeatable)")
	f.StringVar(&induce.maskFile, "mask-file", "", "JSON file of selection masks")
	f.StringVar(&induce.mode, "mode", string(predicate_engine.ModeRegression), "regression or extent")
	f.IntVar(&induce.iterations, "iterations", 0, "training iterations (default 1000)")
	f.IntVar(&induce.workers, "workers", 1, "goroutines per iteration")
	f.IntVar(&induce.maxBrushes, "max-brushes", 0, "keep at most this many evenly spaced brushes")
	f.BoolVar(&induce.json, "json", false, "output JSON")
	f.BoolVar(&induce.progress, "progress", false, "report training loss on stderr")
	_ = induceCmd.MarkFlagRequired("csv")
	induceCmd.MarkFlagsMutuallyExclusive("brush", "mask-file")
	induceCmd.MarkFlagsOneRequired("brush", "mask-file")

	rootCmd.AddCommand(serveCmd, datasetsCmd, induceCmd)
	return rootCmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newLogger(cfg config.LoggingConfig, quiet bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "dimbridge",
		JSON:    cfg.JSON,
		Quiet:   quiet,
	}), nil
}

func runServe(configPath string, opts serveOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.dataDir != "" {
		cfg.Server.DataDir = opts.dataDir
	}

	logger, err := newLogger(cfg.Logging, false)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext()
	defer stop()

	svc, err := orchestrator.New(ctx, orchestrator.Config{
		Port:              cfg.Server.Port,
		DataDir:           cfg.Server.DataDir,
		ResultStorePath:   cfg.Server.ResultStore,
		GinMode:           cfg.Server.GinMode,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		Workers:           cfg.Engine.Workers,
		Iterations:        cfg.Engine.Iterations,
		WatchDatasets:     cfg.Server.WatchDatasets,
		Telemetry:         cfg.Telemetry,
		Logger:            logger.Slog(),
	})
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	return svc.Run(ctx)
}

func runDatasets(cmd *cobra.Command, configPath string, opts datasetsOptions) error {
	dataDir := opts.dataDir
	if dataDir == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dataDir = cfg.Server.DataDir
	}
	names, err := dataset.NewCatalog(dataDir).List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runInduce(cmd *cobra.Command, opts induceOptions) error {
	mode := predicate_engine.Mode(opts.mode)
	if mode != predicate_engine.ModeRegression && mode != predicate_engine.ModeExtent {
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	name := strings.TrimSuffix(filepath.Base(opts.csv), filepath.Ext(opts.csv))
	ds, err := dataset.LoadFile(name, opts.csv)
	if err != nil {
		return err
	}
	masks, err := loadMasks(ds, opts)
	if err != nil {
		return err
	}
	masks = dataset.Subsample(masks, opts.maxBrushes)

	logger, err := newLogger(config.LoggingConfig{Level: "warn"}, false)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext()
	defer stop()

	var res *predicate_engine.Result
	if mode == predicate_engine.ModeExtent {
		res, err = predicate_engine.ExtentPredicates(ctx, ds.Points, masks, ds.Columns)
	} else {
		cfg := predicate_engine.Config{
			Iterations: opts.iterations,
			Workers:    opts.workers,
			Logger:     logger.Slog(),
		}
		if opts.progress {
			stderr := cmd.ErrOrStderr()
			barMode := ux.ModePlain
			if stderr == os.Stderr {
				barMode = ux.DetectMode(os.Stderr)
			}
			cfg.Progress = func(ev predicate_engine.ProgressEvent) {
				fmt.Fprintf(stderr, "%s loss %.5f\n", ux.ProgressBar(barMode, ev.Iteration+1, ev.Iterations, 30), ev.Loss)
			}
		}
		res, err = predicate_engine.Induce(ctx, ds.Points, masks, ds.Columns, cfg)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.json:
		return outputJSON(out, res)
	case out == os.Stdout && ux.DetectMode(os.Stdout) == ux.ModeStyled:
		renderTable(out, res, mode)
	default:
		renderPlain(out, res)
	}
	return nil
}

// loadMasks builds the selections from --brush or --mask-file.
func loadMasks(ds *dataset.Dataset, opts induceOptions) ([][]bool, error) {
	if opts.maskFile != "" {
		data, err := os.ReadFile(opts.maskFile)
		if err != nil {
			return nil, fmt.Errorf("read mask file: %w", err)
		}
		var masks [][]bool
		if err := json.Unmarshal(data, &masks); err != nil {
			return nil, fmt.Errorf("parse mask file %s: %w", opts.maskFile, err)
		}
		return masks, nil
	}

	brushes := make([]dataset.Brush, len(opts.brushes))
	for i, s := range opts.brushes {
		b, err := parseBrush(s)
		if err != nil {
			return nil, err
		}
		brushes[i] = b
	}
	return dataset.MasksFromBrushes(ds, brushes)
}

var errBadBrush = errors.New("brush must be x0,x1,y0,y1 with x0<x1 and y0<y1")

// parseBrush parses "x0,x1,y0,y1".
func parseBrush(s string) (dataset.Brush, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return dataset.Brush{}, fmt.Errorf("%w: got %q", errBadBrush, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return dataset.Brush{}, fmt.Errorf("%w: got %q", errBadBrush, s)
		}
		v[i] = f
	}
	b := dataset.Brush{XExtent: [2]float64{v[0], v[1]}, YExtent: [2]float64{v[2], v[3]}}
	if !(b.XExtent[0] < b.XExtent[1]) || !(b.YExtent[0] < b.YExtent[1]) {
		return dataset.Brush{}, fmt.Errorf("%w: got %q", errBadBrush, s)
	}
	return b, nil
}
