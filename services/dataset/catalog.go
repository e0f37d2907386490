// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// localSuffix is appended by the browser client to datasets served from the
// local root. It names the same dataset.
const localSuffix = "_local"

// Catalog resolves dataset names to CSV files under a root directory.
type Catalog struct {
	root string
}

// NewCatalog returns a Catalog over root. The directory is not required to
// exist until it is queried.
func NewCatalog(root string) *Catalog {
	return &Catalog{root: filepath.Clean(root)}
}

// Root returns the dataset root directory.
func (c *Catalog) Root() string {
	return c.root
}

// NormalizeName strips the client's "_local" suffix.
func NormalizeName(name string) string {
	return strings.TrimSuffix(name, localSuffix)
}

// ValidateName rejects names that are empty, hidden or contain a path
// separator.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidDatasetName, name)
	}
	return nil
}

// List returns the names of all dataset directories in lexical order.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("list datasets in %s: %w", c.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CSVPath returns the first CSV file, in lexical order, of the named dataset.
func (c *Catalog) CSVPath(name string) (string, error) {
	name = NormalizeName(name)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir := filepath.Join(c.root, name)
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		if _, statErr := os.Stat(dir); errors.Is(statErr, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
		}
		return "", fmt.Errorf("%w: %q has no csv file", ErrDatasetNotFound, name)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Load reads and parses the named dataset without caching.
func (c *Catalog) Load(name string) (*Dataset, error) {
	name = NormalizeName(name)
	path, err := c.CSVPath(name)
	if err != nil {
		return nil, err
	}
	return LoadFile(name, path)
}

// datasetOf maps a path inside the root to the dataset directory it belongs
// to, or "" for paths outside any dataset.
func (c *Catalog) datasetOf(path string) string {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first
}
