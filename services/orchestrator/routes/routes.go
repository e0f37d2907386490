// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/AleutianAI/DimBridge/services/orchestrator/handlers"
	"github.com/AleutianAI/DimBridge/services/orchestrator/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Deps are the dependencies the routes are built from.
type Deps struct {
	Service *handlers.PredicateService
	// Limiter guards the predicate routes. Nil disables limiting.
	Limiter *rate.Limiter
	// MetricsHandler serves /metrics. Nil falls back to the default
	// Prometheus registry.
	MetricsHandler http.Handler
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	svc := deps.Service
	catalog := svc.Cache.Catalog()

	metrics := deps.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	limit := middleware.RateLimit(deps.Limiter, svc.Metrics.RecordRateLimited)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/datasets", handlers.ListDatasets(catalog))
		v1.GET("/datasets/:name", handlers.GetDataset(catalog))
		predicates := v1.Group("/predicates", limit)
		{
			predicates.POST("", handlers.HandlePredicates(svc))
			predicates.GET("/ws", handlers.HandlePredicateWebSocket(svc))
		}
	}

	// Routes used by the legacy web client
	router.GET("/get_dataset_names", handlers.ListDatasets(catalog))
	router.GET("/get_dataset/:name", handlers.GetDataset(catalog))
	router.POST("/get_predicates", limit, handlers.HandleLegacyPredicates(svc))
}
