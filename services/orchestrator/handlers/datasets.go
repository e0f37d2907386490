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

	"github.com/AleutianAI/DimBridge/services/dataset"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListDatasets returns the dataset names under the data root.
func ListDatasets(catalog *dataset.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := catalog.List()
		if err != nil {
			status, body := newErrorResponse(err, "")
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.JSON(http.StatusOK, names)
	}
}

// GetDataset streams the CSV file of the named dataset.
func GetDataset(catalog *dataset.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := catalog.CSVPath(c.Param("name"))
		if err != nil {
			status, body := newErrorResponse(err, "")
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Header("Content-Type", "text/csv")
		c.File(path)
	}
}
