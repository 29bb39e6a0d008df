// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gin handlers of the compliance API.
//
// Handlers are constructors returning gin.HandlerFunc closed over the
// services they need. They never write error responses themselves: errors
// are attached with c.Error and rendered by middleware.ErrorHandler.
// Successful responses carry "success": true next to the payload.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// user returns the authenticated caller. Routes behind CompanyScope always
// have one.
func user(c *gin.Context) *extensions.AuthInfo {
	if info := middleware.GetAuthInfo(c); info != nil {
		return info
	}
	return &extensions.AuthInfo{}
}

func companyID(c *gin.Context) string { return user(c).CompanyID }

func userID(c *gin.Context) string { return user(c).UserID }

// fail attaches err for middleware.ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// notFound maps storage.ErrNotFound to a 404 naming what.
func notFound(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.NotFound(what)
	}
	return err
}

// bind decodes the JSON body into v and validates it.
func bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return datatypes.BadRequest("Invalid request body: %v", err)
	}
	return datatypes.Validate(v)
}

// mergeBody decodes the JSON body over an existing record, so absent fields
// keep their stored values.
func mergeBody(raw []byte, v any) error {
	if len(raw) == 0 {
		return datatypes.BadRequest("Request body is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return datatypes.BadRequest("Invalid request body: %v", err)
	}
	return nil
}

// keepBase restores the identity fields a client must not change.
func keepBase(dst *datatypes.Base, orig datatypes.Base) {
	*dst = orig
}

func ok(c *gin.Context, status int, body gin.H) {
	body["success"] = true
	c.JSON(status, body)
}

func pageBody[T any](key string, p datatypes.Page[T]) gin.H {
	return gin.H{
		key: p.Items,
		"pagination": gin.H{
			"total": p.Total,
			"page":  p.Page,
			"pages": p.Pages,
		},
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func pageParams(c *gin.Context) (int, int) {
	return queryInt(c, "page", 1), queryInt(c, "limit", storage.DefaultPageSize)
}

// queryDate parses an optional yyyy-mm-dd or RFC3339 query parameter.
func queryDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, datatypes.BadRequest("Invalid %s date: %s", key, v)
}

// matches reports whether any field contains search, case-insensitively.
func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// record writes an audit event for the caller. Audit failures are logged
// and never fail the request.
func record(ctx context.Context, audit extensions.AuditLogger, c *gin.Context, action, resourceType, resourceID string, metadata map[string]any) {
	if audit == nil {
		return
	}
	info := user(c)
	event := extensions.AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		UserID:       info.UserID,
		UserEmail:    info.Email,
		CompanyID:    info.CompanyID,
		IPAddress:    c.ClientIP(),
		Metadata:     metadata,
	}
	if err := audit.Log(ctx, event); err != nil {
		slog.Warn("Failed to write audit event", "action", action, "resource", resourceType, "error", err)
	}
}
