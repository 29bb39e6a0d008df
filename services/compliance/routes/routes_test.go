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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/auth"
	"github.com/AleutianAI/vroomx/services/compliance/blobs"
	"github.com/AleutianAI/vroomx/services/compliance/checklists"
	"github.com/AleutianAI/vroomx/services/compliance/clearinghouse"
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/documents"
	"github.com/AleutianAI/vroomx/services/compliance/export"
	"github.com/AleutianAI/vroomx/services/compliance/letters"
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/scoring"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
	"github.com/AleutianAI/vroomx/services/compliance/tasks"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	router *gin.Engine
	repo   *storage.Repository
	maint  *middleware.Maintenance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	clock := func() time.Time { return now }
	repo := storage.NewRepository(db, clock)

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	auditLog, err := audit.NewLogger(ctx, repo, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLog.Close() })

	tokens, err := auth.NewTokenIssuer(bytes.Repeat([]byte("s"), auth.MinSecretLength), time.Hour, clock)
	require.NoError(t, err)
	authSvc := auth.NewService(repo, tokens, auditLog).WithBcryptCost(bcrypt.MinCost)

	store, err := blobs.NewLocalStore(filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	maint, err := middleware.NewMaintenance(filepath.Join(dir, "maintenance.yaml"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.ErrorHandler(false))
	SetupRoutes(router, Deps{
		Repo:          repo,
		Auth:          authSvc,
		AuthProvider:  authSvc,
		Authz:         auth.Authorizer{},
		LoginLimiter:  auth.NewLoginLimiter(clock),
		Audit:         auditLog,
		DataQ:         dataq.NewService(repo, letters.TemplateWriter{Now: clock}, metrics),
		Clearinghouse: clearinghouse.NewService(repo, metrics),
		Tasks:         tasks.NewService(repo),
		Checklists:    checklists.NewService(repo),
		Documents:     documents.NewService(repo, store),
		Scoring:       scoring.NewService(repo, metrics, nil),
		Exporter:      export.NewExporter(repo),
		Maintenance:   maint,
		Gatherer:      reg,
	})
	return &fixture{router: router, repo: repo, maint: maint}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

// register signs up a company owner and returns the token.
func (f *fixture) register(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"companyName": "Acme Freight",
		"dotNumber":   "1234567",
		"email":       "owner@acme.test",
		"password":    "hunter22",
		"firstName":   "Ada",
		"lastName":    "Owner",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// addUser creates a user with role and returns its token.
func (f *fixture) addUser(t *testing.T, ownerToken, email, role string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/users", ownerToken, map[string]any{
		"email":     email,
		"password":  "password1",
		"firstName": "Test",
		"lastName":  "User",
		"role":      role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/auth/login", "", map[string]any{"email": email, "password": "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

// ============================================================================
// Registration
// ============================================================================

func TestSetupRoutes_Registered(t *testing.T) {
	f := newFixture(t)

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/metrics"},
		{"POST", "/v1/auth/register"},
		{"POST", "/v1/auth/login"},
		{"GET", "/v1/auth/me"},
		{"PUT", "/v1/auth/updatepassword"},
		{"GET", "/v1/users"},
		{"POST", "/v1/users"},
		{"GET", "/v1/drivers"},
		{"POST", "/v1/drivers/:id/mvr-review"},
		{"POST", "/v1/drivers/:id/restore"},
		{"GET", "/v1/drivers/:id/violations"},
		{"POST", "/v1/vehicles/:id/inspection"},
		{"GET", "/v1/vehicles/alerts"},
		{"GET", "/v1/violations/severity-weights"},
		{"POST", "/v1/violations/:id/dataq"},
		{"GET", "/v1/violations/:id/dataq/countdown"},
		{"POST", "/v1/violations/:id/dataq/new-round"},
		{"GET", "/v1/violations/dataq/dashboard"},
		{"POST", "/v1/accidents/:id/investigation"},
		{"POST", "/v1/drug-alcohol/:id/clearinghouse"},
		{"GET", "/v1/clearinghouse/violations-pending"},
		{"PUT", "/v1/clearinghouse/queries/:id"},
		{"POST", "/v1/documents"},
		{"GET", "/v1/documents/:id/download"},
		{"POST", "/v1/documents/:id/replace"},
		{"POST", "/v1/tasks/:id/complete"},
		{"GET", "/v1/tasks/overdue"},
		{"PATCH", "/v1/checklists/assignments/:id/items/:itemId"},
		{"POST", "/v1/checklists/templates/seed-defaults"},
		{"GET", "/v1/dashboard"},
		{"POST", "/v1/dashboard/compliance-score/calculate"},
		{"GET", "/v1/reports/export/:kind"},
		{"GET", "/v1/audit"},
		{"GET", "/v1/audit/export"},
		{"PUT", "/v1/admin/maintenance"},
	}

	routes := f.router.Routes()
	for _, e := range expected {
		found := false
		for _, r := range routes {
			if r.Method == e.method && r.Path == e.path {
				found = true
				break
			}
		}
		assert.True(t, found, "expected route %s %s", e.method, e.path)
	}
}

// ============================================================================
// Auth and permissions
// ============================================================================

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/v1/drivers", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/v1/drivers", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_RegisterAndMe(t *testing.T) {
	f := newFixture(t)
	token := f.register(t)

	w := f.do(t, http.MethodGet, "/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	u := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "owner@acme.test", u["email"])
	assert.Equal(t, "owner", u["role"])
	assert.NotContains(t, w.Body.String(), "hunter22")

	w = f.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"companyName": "Other", "email": "owner@acme.test", "password": "hunter22",
		"firstName": "B", "lastName": "C",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_PermissionMatrix(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t)
	viewer := f.addUser(t, owner, "viewer@acme.test", "viewer")
	dispatcher := f.addUser(t, owner, "dispatch@acme.test", "dispatcher")
	safety := f.addUser(t, owner, "safety@acme.test", "safety_manager")

	driver := map[string]any{"firstName": "Jo", "lastName": "Road"}

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		body   any
		want   int
	}{
		{"viewer lists drivers", viewer, "GET", "/v1/drivers", nil, http.StatusOK},
		{"viewer cannot create driver", viewer, "POST", "/v1/drivers", driver, http.StatusForbidden},
		{"dispatcher cannot read drug tests", dispatcher, "GET", "/v1/drug-alcohol", nil, http.StatusForbidden},
		{"dispatcher cannot export", dispatcher, "GET", "/v1/reports/export/drivers", nil, http.StatusForbidden},
		{"safety manager creates driver", safety, "POST", "/v1/drivers", driver, http.StatusCreated},
		{"safety manager cannot list users", safety, "GET", "/v1/users", nil, http.StatusForbidden},
		{"safety manager cannot read audit", safety, "GET", "/v1/audit", nil, http.StatusForbidden},
		{"owner reads audit", owner, "GET", "/v1/audit", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := f.do(t, http.MethodPost, "/v1/drivers", viewer, driver)
	assert.Equal(t, "You do not have permission to edit drivers", decode(t, w)["error"])
}

func TestAPI_LoginRateLimit(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	creds := map[string]any{"email": "owner@acme.test", "password": "wrong-password"}
	for i := 0; i < auth.LoginBurst; i++ {
		w := f.do(t, http.MethodPost, "/v1/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := f.do(t, http.MethodPost, "/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// ============================================================================
// Company scoping
// ============================================================================

func TestAPI_CompanyIsolation(t *testing.T) {
	f := newFixture(t)
	acme := f.register(t)

	w := f.do(t, http.MethodPost, "/v1/auth/register", "", map[string]any{
		"companyName": "Rival Haulage", "email": "owner@rival.test", "password": "hunter22",
		"firstName": "Rex", "lastName": "Rival",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	rival := decode(t, w)["token"].(string)

	w = f.do(t, http.MethodPost, "/v1/drivers", acme, map[string]any{"firstName": "Jo", "lastName": "Road"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["driver"].(map[string]any)["id"].(string)

	w = f.do(t, http.MethodGet, "/v1/drivers/"+id, acme, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/v1/drivers/"+id, rival, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/v1/drivers", rival, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["drivers"])
}

// ============================================================================
// Reports, audit and maintenance
// ============================================================================

func TestAPI_ExportDrivers(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t)
	w := f.do(t, http.MethodPost, "/v1/drivers", owner, map[string]any{"firstName": "Jo", "lastName": "Road"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/v1/reports/export/drivers", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "drivers-2025-06-18-1200.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "First Name,Last Name"))
	assert.True(t, strings.HasPrefix(lines[1], "Jo,Road"))

	w = f.do(t, http.MethodGet, "/v1/reports/export/payroll", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_AuditTrail(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t)
	w := f.do(t, http.MethodPost, "/v1/drivers", owner, map[string]any{"firstName": "Jo", "lastName": "Road"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/v1/audit?resourceType=driver", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := decode(t, w)["records"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "create", records[0].(map[string]any)["action"])

	w = f.do(t, http.MethodGet, "/v1/audit/verify", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	v := decode(t, w)["verification"].(map[string]any)
	assert.Equal(t, true, v["valid"])

	w = f.do(t, http.MethodGet, "/v1/audit/export", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit-")
}

func TestAPI_Maintenance(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t)

	w := f.do(t, http.MethodPut, "/v1/admin/maintenance", owner, map[string]any{"enabled": true, "message": "Upgrading"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, f.maint.State().Enabled)

	w = f.do(t, http.MethodGet, "/v1/admin/maintenance", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["maintenance"].(map[string]any)["enabled"])
}

func TestAPI_Dashboard(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t)
	w := f.do(t, http.MethodPost, "/v1/drivers", owner, map[string]any{"firstName": "Jo", "lastName": "Road"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodGet, "/v1/dashboard", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode(t, w)["dashboard"].(map[string]any)
	assert.Equal(t, float64(1), d["drivers"].(map[string]any)["total"])
	assert.Nil(t, d["latestScore"])

	w = f.do(t, http.MethodPost, "/v1/dashboard/compliance-score/calculate", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/dashboard", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["dashboard"].(map[string]any)["latestScore"])
}

func TestAPI_Metrics(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	w := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
