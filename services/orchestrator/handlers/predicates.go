// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"net/http"

	"github.com/AleutianAI/DimBridge/services/orchestrator/datatypes"
	"github.com/AleutianAI/DimBridge/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
)

// HandlePredicates serves POST /v1/predicates.
//
// # Description
//
// Binds and validates a PredicateRequest, runs it through the service and
// replies with a PredicateResponse carrying a fresh request ID. Errors are
// mapped to their status code with errorStatus.
func HandlePredicates(svc *PredicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := newRequestID()
		req, ok := bindPredicateRequest(c, svc, observability.EndpointPredicates, requestID)
		if !ok {
			return
		}

		resp, err := svc.Predicates(c.Request.Context(), req, nil)
		if err != nil {
			abortWithError(c, svc, observability.EndpointPredicates, err, requestID)
			return
		}
		resp.RequestID = requestID
		svc.Metrics.RecordRequest(observability.EndpointPredicates, "ok")
		c.JSON(http.StatusOK, resp)
	}
}

// HandleLegacyPredicates serves POST /get_predicates with the legacy
// {predicates, qualities} body.
func HandleLegacyPredicates(svc *PredicateService) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := newRequestID()
		req, ok := bindPredicateRequest(c, svc, observability.EndpointLegacy, requestID)
		if !ok {
			return
		}

		resp, err := svc.Predicates(c.Request.Context(), req, nil)
		if err != nil {
			abortWithError(c, svc, observability.EndpointLegacy, err, requestID)
			return
		}
		svc.Metrics.RecordRequest(observability.EndpointLegacy, "ok")
		c.JSON(http.StatusOK, datatypes.LegacyPredicateResponse{
			Predicates: resp.Predicates,
			Qualities:  resp.Qualities,
		})
	}
}

func bindPredicateRequest(c *gin.Context, svc *PredicateService, endpoint observability.Endpoint, requestID string) (*datatypes.PredicateRequest, bool) {
	var req datatypes.PredicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, svc, endpoint, bindError(err), requestID)
		return nil, false
	}
	if err := req.Validate(); err != nil {
		abortWithError(c, svc, endpoint, err, requestID)
		return nil, false
	}
	return &req, true
}

func abortWithError(c *gin.Context, svc *PredicateService, endpoint observability.Endpoint, err error, requestID string) {
	status, body := newErrorResponse(err, requestID)
	if status >= http.StatusInternalServerError {
		svc.logger().Error("predicate request failed", "request_id", requestID, "error", err)
	} else {
		svc.logger().Info("predicate request rejected",
			"request_id", requestID,
			"code", body.Code,
			"error", err,
		)
	}
	svc.Metrics.RecordRequest(endpoint, body.Code)
	c.AbortWithStatusJSON(status, body)
}
