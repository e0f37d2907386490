// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the DimBridge HTTP service.
//
// # Rate Limiting
//
// Induction is CPU bound and runs for the full iteration budget, so the
// predicate routes sit behind a shared token bucket:
//
//	Request
//	   │
//	   ▼
//	RateLimit ──► limiter.Allow() == false ──► 429 rate_limited
//	   │
//	   ▼
//	Handler
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/AleutianAI/DimBridge/services/orchestrator/datatypes"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// NewLimiter returns a token bucket allowing rps requests per second with
// the given burst. A non-positive rps disables limiting and returns nil.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RateLimit rejects requests with 429 when limiter has no token. A nil
// limiter lets every request through. onReject, when set, is called for
// each rejection.
func RateLimit(limiter *rate.Limiter, onReject func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limiter.Allow() {
			c.Next()
			return
		}
		if onReject != nil {
			onReject()
		}
		retry := limiter.Reserve()
		delay := retry.Delay()
		retry.Cancel()
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
			Error: "too many predicate requests",
			Code:  "rate_limited",
		})
	}
}
