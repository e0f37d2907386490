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

import "errors"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrInvalidSelection is returned when a brush selects no points or every
	// point. Such a brush has no negative (or positive) class to fit against.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrShapeMismatch is returned when the selection matrix or the attribute
	// names do not match the dimensions of the points matrix.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDegenerateInterval is returned when a fitted box yields an interval
	// whose lower bound is not below its upper bound.
	ErrDegenerateInterval = errors.New("degenerate interval")

	// ErrNumericalInstability is returned when NaN or Inf shows up in the
	// inputs, the loss, the gradients or the parameters.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrInvalidConfig is returned when a Config value is out of range.
	ErrInvalidConfig = errors.New("invalid config")
)
