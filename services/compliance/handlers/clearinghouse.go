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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/clearinghouse"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// ClearinghouseDashboard returns the query compliance summary.
func ClearinghouseDashboard(svc *clearinghouse.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.Dashboard(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"dashboard": d})
	}
}

// ClearinghouseDrivers lists active drivers with their annual query state,
// filtered by status and search.
func ClearinghouseDrivers(svc *clearinghouse.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		p, err := svc.DriverStatuses(c.Request.Context(), companyID(c), c.Query("status"), c.Query("search"), page, limit)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageBody("drivers", p))
	}
}

// ListClearinghouseQueries lists queries newest first.
func ListClearinghouseQueries(svc *clearinghouse.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := queryDate(c, "startDate")
		if err != nil {
			fail(c, err)
			return
		}
		to, err := queryDate(c, "endDate")
		if err != nil {
			fail(c, err)
			return
		}
		page, limit := pageParams(c)
		p, err := svc.ListQueries(c.Request.Context(), companyID(c), clearinghouse.QueryFilter{
			DriverID:     c.Query("driverId"),
			QueryType:    c.Query("queryType"),
			QueryPurpose: c.Query("queryPurpose"),
			From:         from,
			To:           to,
			Page:         page,
			Limit:        limit,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageBody("queries", p))
	}
}

// GetClearinghouseQuery returns one query.
func GetClearinghouseQuery(svc *clearinghouse.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := svc.GetQuery(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"query": q})
	}
}

// CreateClearinghouseQuery records a query and syncs the driver.
func CreateClearinghouseQuery(svc *clearinghouse.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q datatypes.ClearinghouseQuery
		if err := c.ShouldBindJSON(&q); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		stored, err := svc.RecordQuery(c.Request.Context(), companyID(c), userID(c), &q)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "clearinghouse_query", stored.ID, map[string]any{
			"driverId": stored.DriverID,
			"result":   stored.Result,
		})
		ok(c, http.StatusCreated, gin.H{"query": stored})
	}
}

// UpdateClearinghouseQuery applies a result, confirmation or consent patch.
func UpdateClearinghouseQuery(svc *clearinghouse.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch clearinghouse.QueryPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		q, err := svc.UpdateQuery(c.Request.Context(), companyID(c), c.Param("id"), patch)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "update", "clearinghouse_query", q.ID, nil)
		ok(c, http.StatusOK, gin.H{"query": q})
	}
}

// ClearinghouseViolationReports lists positive and refused tests with their
// three-business-day reporting deadline.
func ClearinghouseViolationReports(svc *clearinghouse.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := svc.ViolationReports(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"pending":      r.Pending,
			"reported":     r.Reported,
			"pendingCount": len(r.Pending),
		})
	}
}
