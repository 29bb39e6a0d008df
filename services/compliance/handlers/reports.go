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
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/export"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// auditExportLimit caps the rows of one audit CSV export.
const auditExportLimit = 10000

const csvContentType = "text/csv; charset=utf-8"

// sendCSV writes a finished CSV body as an attachment.
func sendCSV(c *gin.Context, filename string, body *bytes.Buffer) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, csvContentType, body.Bytes())
}

// ExportReport writes the :kind report as CSV. The report is rendered in
// full before any byte is sent so failures still produce a JSON error.
func ExportReport(exporter *export.Exporter, audit extensions.AuditLogger, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := c.Param("kind")
		var buf bytes.Buffer
		rows, err := exporter.Export(c.Request.Context(), &buf, companyID(c), kind)
		if errors.Is(err, export.ErrUnknownKind) {
			fail(c, datatypes.BadRequest("Unknown report %q", kind))
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "export", "report", kind, map[string]any{"rows": rows})
		sendCSV(c, export.Filename(kind, "csv", now()), &buf)
	}
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = storage.DefaultPageSize
	}
	if limit > storage.MaxPageSize {
		limit = storage.MaxPageSize
	}
	return page, limit
}

// auditFilter reads the audit list query parameters.
func auditFilter(c *gin.Context) (extensions.AuditFilter, error) {
	f := extensions.AuditFilter{
		CompanyID:    companyID(c),
		UserID:       c.Query("userId"),
		Action:       c.Query("action"),
		ResourceType: c.Query("resourceType"),
		ResourceID:   c.Query("resourceId"),
	}
	from, err := queryDate(c, "startDate")
	if err != nil {
		return f, err
	}
	to, err := queryDate(c, "endDate")
	if err != nil {
		return f, err
	}
	if from != nil {
		f.StartTime = *from
	}
	if to != nil {
		f.EndTime = *to
	}
	return f, nil
}

// ListAudit lists the company's audit records newest first.
func ListAudit(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := auditFilter(c)
		if err != nil {
			fail(c, err)
			return
		}
		page, limit := pageParams(c)
		page, limit = clampPage(page, limit)
		f.Limit = limit
		f.Offset = (page - 1) * limit

		records, total, err := logger.List(c.Request.Context(), f)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"records": records,
			"pagination": gin.H{
				"total": total,
				"page":  page,
				"pages": (total + limit - 1) / limit,
			},
		})
	}
}

// ExportAudit writes the filtered audit records as CSV.
func ExportAudit(logger *audit.Logger, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := auditFilter(c)
		if err != nil {
			fail(c, err)
			return
		}
		f.Limit = auditExportLimit
		records, _, err := logger.List(c.Request.Context(), f)
		if err != nil {
			fail(c, err)
			return
		}
		var buf bytes.Buffer
		if err := export.WriteAudit(&buf, records); err != nil {
			fail(c, err)
			return
		}
		sendCSV(c, export.Filename(export.KindAudit, "csv", now()), &buf)
	}
}

// VerifyAudit checks the integrity of the stored audit chain.
func VerifyAudit(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := logger.VerifyAll(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"verification": res})
	}
}
