// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// =============================================================================
// ErrorHandler
// =============================================================================

func TestErrorHandler(t *testing.T) {
	verr := datatypes.Validate(&struct {
		Name string `json:"name" validate:"required"`
	}{})
	require.Error(t, verr)

	tests := []struct {
		name   string
		err    error
		hide   bool
		status int
		msg    string
	}{
		{"app error", datatypes.NotFound("Driver"), true, http.StatusNotFound, "Driver not found"},
		{"wrapped app error", fmt.Errorf("load: %w", datatypes.BadRequest("bad date")), true, http.StatusBadRequest, "bad date"},
		{"validation", verr, true, http.StatusBadRequest, "validation failed: name is required"},
		{"storage not found", fmt.Errorf("get: %w", storage.ErrNotFound), true, http.StatusNotFound, "Resource not found"},
		{"unauthorized", extensions.ErrUnauthorized, true, http.StatusUnauthorized, "Not authorized"},
		{"forbidden", extensions.ErrForbidden, true, http.StatusForbidden, "Forbidden"},
		{"internal hidden", errors.New("badger: disk full"), true, http.StatusInternalServerError, "Internal server error"},
		{"internal shown", errors.New("badger: disk full"), false, http.StatusInternalServerError, "badger: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(ErrorHandler(tt.hide))
			router.GET("/test", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := serve(router, "GET", "/test", "")
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestErrorHandler_ValidationFields(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(true))
	router.GET("/test", func(c *gin.Context) {
		_ = c.Error(datatypes.Validate(&struct {
			Email string `json:"email" validate:"required,email"`
		}{Email: "nope"}))
	})

	body := decode(t, serve(router, "GET", "/test", ""))
	fields, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, fields, 1)
	assert.Equal(t, "email", fields[0].(map[string]any)["tag"])
}

func TestErrorHandler_KeepsWrittenResponse(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(true))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"success": true})
		_ = c.Error(errors.New("late"))
	})
	w := serve(router, "GET", "/test", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

// =============================================================================
// RateLimit
// =============================================================================

type countingLimiter struct {
	allowed int
	seen    []string
}

func (l *countingLimiter) Allow(key string) bool {
	l.seen = append(l.seen, key)
	return len(l.seen) <= l.allowed
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{allowed: 2}
	router := gin.New()
	router.POST("/login", RateLimit(limiter), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, "POST", "/login", "").Code)
	assert.Equal(t, http.StatusOK, serve(router, "POST", "/login", "").Code)
	w := serve(router, "POST", "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Too many login attempts")
	assert.Equal(t, "192.0.2.1", limiter.seen[0], "httptest remote address")
}

// =============================================================================
// Metrics
// =============================================================================

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	router := gin.New()
	router.Use(Metrics(m))
	router.GET("/v1/drivers/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, "GET", "/v1/drivers/1", "")
	serve(router, "GET", "/v1/drivers/2", "")
	serve(router, "GET", "/nowhere", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/v1/drivers/:id", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("unmatched", "GET", "404")))
}

// =============================================================================
// Maintenance
// =============================================================================

func maintenanceRouter(m *Maintenance) *gin.Engine {
	router := gin.New()
	router.Use(m.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/health", ok)
	router.GET("/v1/drivers", ok)
	router.POST("/v1/auth/login", ok)
	router.GET("/v1/admin/maintenance", ok)
	return router
}

func TestMaintenance_Middleware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enabled: true\nmessage: Back at noon\n"), 0o644))

	m, err := NewMaintenance(path)
	require.NoError(t, err)
	assert.Equal(t, MaintenanceState{Enabled: true, Message: "Back at noon"}, m.State())
	router := maintenanceRouter(m)

	w := serve(router, "GET", "/v1/drivers", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Back at noon", body["error"])
	assert.Equal(t, true, body["maintenance"])
	assert.Equal(t, "300", w.Header().Get("Retry-After"))

	for _, p := range []struct{ method, path string }{
		{"GET", "/health"},
		{"POST", "/v1/auth/login"},
		{"GET", "/v1/admin/maintenance"},
	} {
		assert.Equal(t, http.StatusOK, serve(router, p.method, p.path, "").Code, p.path)
	}

	require.NoError(t, m.Write(MaintenanceState{Enabled: true}))
	assert.Equal(t, DefaultMaintenanceMessage, decode(t, serve(router, "GET", "/v1/drivers", ""))["error"])

	require.NoError(t, m.Write(MaintenanceState{}))
	assert.Equal(t, http.StatusOK, serve(router, "GET", "/v1/drivers", "").Code)
}

func TestMaintenance_HotReload(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "maintenance.yaml")
	m, err := NewMaintenance(path)
	require.NoError(t, err)
	assert.False(t, m.State().Enabled, "missing file means disabled")

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, os.WriteFile(path, []byte("enabled: true\n"), 0o644))
	assert.Eventually(t, func() bool { return m.State().Enabled }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	assert.Eventually(t, func() bool { return !m.State().Enabled }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
}

func TestMaintenance_Unconfigured(t *testing.T) {
	m, err := NewMaintenance("")
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Write(MaintenanceState{Enabled: true}))
	assert.Equal(t, http.StatusOK, serve(maintenanceRouter(m), "GET", "/v1/drivers", "").Code)
	assert.NoError(t, m.Stop())

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("enabled: [x"), 0o644))
	_, err = NewMaintenance(bad)
	assert.Error(t, err)
}
