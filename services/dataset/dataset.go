// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset loads, caches and watches the CSV datasets that predicates
// are induced over.
//
// Datasets live under a root directory, one sub-directory per dataset, each
// holding at least one CSV file:
//
//	datasets/
//	├── cars/
//	│   └── cars.csv
//	└── gaits/
//	    └── gaits.csv
//
// Numeric columns become the induction attributes. The projection columns
// "x" and "y" are held apart and only used to turn 2D brushes into masks.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDatasetNotFound is returned for a dataset directory that does not
	// exist or holds no CSV file.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrNoNumericColumns is returned when a CSV has no usable attribute.
	ErrNoNumericColumns = errors.New("dataset has no numeric columns")

	// ErrInvalidDatasetName is returned for names that would escape the
	// dataset root.
	ErrInvalidDatasetName = errors.New("invalid dataset name")
)

// Projection column names, excluded from the attributes.
const (
	ProjectionX = "x"
	ProjectionY = "y"
)

// Dataset is an immutable numeric table ready for induction.
type Dataset struct {
	Name string
	Path string

	// Columns names the attributes, one per column of Points.
	Columns []string
	// Points holds n_points x n_features values in original units.
	Points *mat.Dense
	// VMin and VMax are the per-attribute extrema.
	VMin []float64
	VMax []float64

	// X and Y are the projection coordinates, nil when absent.
	X []float64
	Y []float64

	// Fingerprint is the hex SHA-256 of the CSV bytes.
	Fingerprint string
}

// NumPoints returns the number of rows.
func (d *Dataset) NumPoints() int {
	r, _ := d.Points.Dims()
	return r
}

// HasProjection reports whether brushes can be converted to masks.
func (d *Dataset) HasProjection() bool {
	return d.X != nil && d.Y != nil
}

// LoadFile reads and parses a CSV file.
func LoadFile(name, path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %q: %w", name, err)
	}
	ds, err := Parse(name, data)
	if err != nil {
		return nil, err
	}
	ds.Path = path
	return ds, nil
}

// Parse builds a Dataset from CSV bytes with a header row.
//
// A column is numeric when every cell parses as a finite float. Non-numeric
// columns are dropped, as are the projection columns, which are kept
// separately when numeric.
func Parse(name string, data []byte) (*Dataset, error) {
	records, err := readRecords(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse dataset %q: %w", name, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("parse dataset %q: %w: no data rows", name, ErrNoNumericColumns)
	}
	header, rows := records[0], records[1:]

	columns := make([][]float64, len(header))
	for j := range header {
		columns[j] = numericColumn(rows, j)
	}

	sum := sha256.Sum256(data)
	ds := &Dataset{Name: name, Fingerprint: hex.EncodeToString(sum[:])}
	var keep []int
	for j, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case columns[j] == nil:
		case h == ProjectionX:
			ds.X = columns[j]
		case h == ProjectionY:
			ds.Y = columns[j]
		default:
			keep = append(keep, j)
			ds.Columns = append(ds.Columns, h)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("parse dataset %q: %w", name, ErrNoNumericColumns)
	}

	ds.Points = mat.NewDense(len(rows), len(keep), nil)
	ds.VMin = make([]float64, len(keep))
	ds.VMax = make([]float64, len(keep))
	for k, j := range keep {
		ds.Points.SetCol(k, columns[j])
		ds.VMin[k] = floats.Min(columns[j])
		ds.VMax[k] = floats.Max(columns[j])
	}
	return ds, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return records, nil
}

// numericColumn returns column j as floats, or nil if any cell is empty or
// not a finite number.
func numericColumn(rows [][]string, j int) []float64 {
	values := make([]float64, len(rows))
	for i, row := range rows {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[j]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		values[i] = v
	}
	return values
}
