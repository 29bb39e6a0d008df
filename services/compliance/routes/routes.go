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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/auth"
	"github.com/AleutianAI/vroomx/services/compliance/checklists"
	"github.com/AleutianAI/vroomx/services/compliance/clearinghouse"
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/documents"
	"github.com/AleutianAI/vroomx/services/compliance/export"
	"github.com/AleutianAI/vroomx/services/compliance/handlers"
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/scoring"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
	"github.com/AleutianAI/vroomx/services/compliance/tasks"
)

// Deps carries everything the routes need.
type Deps struct {
	Repo          *storage.Repository
	Auth          *auth.Service
	AuthProvider  extensions.AuthProvider
	Authz         extensions.AuthzProvider
	LoginLimiter  middleware.Limiter
	Audit         *audit.Logger
	DataQ         *dataq.Service
	Clearinghouse *clearinghouse.Service
	Tasks         *tasks.Service
	Checklists    *checklists.Service
	Documents     *documents.Service
	Scoring       *scoring.Service
	Exporter      *export.Exporter
	Maintenance   *middleware.Maintenance

	// Gatherer serves /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, d Deps) {
	var auditLog extensions.AuditLogger = &extensions.NopAuditLogger{}
	if d.Audit != nil {
		auditLog = d.Audit
	}
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	can := func(resource, action string) gin.HandlerFunc {
		return middleware.RequirePermission(d.Authz, resource, action)
	}
	owners := middleware.RequireRole(string(datatypes.RoleOwner), string(datatypes.RoleAdmin))

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", handlers.Register(d.Auth))
			authGroup.POST("/login", middleware.RateLimit(d.LoginLimiter), handlers.Login(d.Auth))
		}

		// Everything below requires a token scoped to a company.
		api := v1.Group("", middleware.AuthMiddleware(d.AuthProvider), middleware.CompanyScope())

		me := api.Group("/auth")
		{
			me.GET("/me", handlers.Me(d.Auth))
			me.PUT("/profile", handlers.UpdateProfile(d.Auth))
			me.PUT("/updatepassword", handlers.UpdatePassword(d.Auth))
		}

		users := api.Group("/users", owners)
		{
			users.GET("", handlers.ListUsers(d.Auth))
			users.POST("", handlers.CreateUser(d.Auth))
		}

		drivers := api.Group("/drivers")
		{
			view := can(rules.ResourceDrivers, rules.ActionView)
			edit := can(rules.ResourceDrivers, rules.ActionEdit)
			drivers.GET("", view, handlers.ListDrivers(d.Repo))
			drivers.GET("/stats", view, handlers.DriverStats(d.Repo))
			drivers.GET("/alerts", view, handlers.DriverAlerts(d.Repo))
			drivers.GET("/:id", view, handlers.GetDriver(d.Repo))
			drivers.GET("/:id/violations", view, handlers.DriverViolations(d.Repo))
			drivers.POST("", edit, handlers.CreateDriver(d.Repo, auditLog))
			drivers.PUT("/:id", edit, handlers.UpdateDriver(d.Repo, auditLog))
			drivers.POST("/:id/mvr-review", edit, handlers.AddMVRReview(d.Repo, auditLog))
			drivers.POST("/:id/restore", edit, handlers.RestoreDriver(d.Repo, auditLog))
			drivers.DELETE("/:id", can(rules.ResourceDrivers, rules.ActionDelete), handlers.DeleteDriver(d.Repo, auditLog))
		}

		vehicles := api.Group("/vehicles")
		{
			view := can(rules.ResourceVehicles, rules.ActionView)
			edit := can(rules.ResourceVehicles, rules.ActionEdit)
			vehicles.GET("", view, handlers.ListVehicles(d.Repo))
			vehicles.GET("/stats", view, handlers.VehicleStats(d.Repo))
			vehicles.GET("/alerts", view, handlers.VehicleAlerts(d.Repo))
			vehicles.GET("/:id", view, handlers.GetVehicle(d.Repo))
			vehicles.POST("", edit, handlers.CreateVehicle(d.Repo, auditLog))
			vehicles.PUT("/:id", edit, handlers.UpdateVehicle(d.Repo, auditLog))
			vehicles.POST("/:id/maintenance", edit, handlers.AddMaintenance(d.Repo, auditLog))
			vehicles.POST("/:id/inspection", edit, handlers.RecordInspection(d.Repo, auditLog))
			vehicles.DELETE("/:id", can(rules.ResourceVehicles, rules.ActionDelete), handlers.DeleteVehicle(d.Repo, auditLog))
		}

		violations := api.Group("/violations")
		{
			view := can(rules.ResourceViolations, rules.ActionView)
			edit := can(rules.ResourceViolations, rules.ActionEdit)
			violations.GET("", view, handlers.ListViolations(d.Repo))
			violations.GET("/stats", view, handlers.ViolationStats(d.DataQ))
			violations.GET("/severity-weights", view, handlers.SeverityWeights)
			violations.GET("/:id", view, handlers.GetViolation(d.Repo))
			violations.POST("", edit, handlers.CreateViolation(d.Repo, auditLog))
			violations.PUT("/:id", edit, handlers.UpdateViolation(d.Repo, auditLog))
			violations.POST("/:id/documents", edit, handlers.AddViolationDocument(d.Repo, auditLog))
			violations.POST("/:id/resolve", edit, handlers.ResolveViolation(d.DataQ, auditLog))

			// DataQ challenges
			violations.GET("/dataq/active", view, handlers.ActiveChallenges(d.DataQ))
			violations.GET("/dataq/deadlines", view, handlers.PendingDeadlines(d.DataQ))
			violations.GET("/dataq/dashboard", view, handlers.DataQDashboard(d.DataQ))
			violations.GET("/:id/dataq/countdown", view, handlers.DataQCountdown(d.Repo))
			violations.GET("/:id/dataq/denial-options", view, handlers.DenialOptions(d.DataQ))
			violations.POST("/:id/dataq", edit, handlers.SubmitDataQ(d.DataQ, auditLog))
			violations.PUT("/:id/dataq", edit, handlers.UpdateDataQStatus(d.DataQ, auditLog))
			violations.POST("/:id/dataq/state-review", edit, handlers.RecordStateReview(d.DataQ, auditLog))
			violations.POST("/:id/dataq/denial-action", edit, handlers.RecordDenialAction(d.DataQ, auditLog))
			violations.POST("/:id/dataq/new-round", edit, handlers.InitiateNewRound(d.DataQ, auditLog))
			violations.POST("/:id/dataq/letter", edit, handlers.GenerateLetter(d.DataQ, auditLog))
		}

		accidents := api.Group("/accidents")
		{
			view := can(rules.ResourceAccidents, rules.ActionView)
			edit := can(rules.ResourceAccidents, rules.ActionEdit)
			accidents.GET("", view, handlers.ListAccidents(d.Repo))
			accidents.GET("/stats", view, handlers.AccidentStats(d.Repo))
			accidents.GET("/:id", view, handlers.GetAccident(d.Repo))
			accidents.POST("", edit, handlers.CreateAccident(d.Repo, auditLog))
			accidents.PUT("/:id", edit, handlers.UpdateAccident(d.Repo, auditLog))
			accidents.POST("/:id/investigation", edit, handlers.AddInvestigation(d.Repo, auditLog))
		}

		drugAlcohol := api.Group("/drug-alcohol")
		{
			view := can(rules.ResourceDrugAlcohol, rules.ActionView)
			edit := can(rules.ResourceDrugAlcohol, rules.ActionEdit)
			drugAlcohol.GET("", view, handlers.ListDrugAlcoholTests(d.Repo))
			drugAlcohol.GET("/stats", view, handlers.DrugAlcoholStats(d.Repo))
			drugAlcohol.GET("/:id", view, handlers.GetDrugAlcoholTest(d.Repo))
			drugAlcohol.POST("", edit, handlers.CreateDrugAlcoholTest(d.Repo, auditLog))
			drugAlcohol.PUT("/:id", edit, handlers.UpdateDrugAlcoholTest(d.Repo, auditLog))
			drugAlcohol.POST("/:id/clearinghouse", edit, handlers.MarkReported(d.Repo, auditLog))
		}

		ch := api.Group("/clearinghouse")
		{
			view := can(rules.ResourceDrugAlcohol, rules.ActionView)
			edit := can(rules.ResourceDrugAlcohol, rules.ActionEdit)
			ch.GET("/dashboard", view, handlers.ClearinghouseDashboard(d.Clearinghouse))
			ch.GET("/drivers", view, handlers.ClearinghouseDrivers(d.Clearinghouse))
			ch.GET("/violations-pending", view, handlers.ClearinghouseViolationReports(d.Clearinghouse))
			ch.GET("/queries", view, handlers.ListClearinghouseQueries(d.Clearinghouse))
			ch.GET("/queries/:id", view, handlers.GetClearinghouseQuery(d.Clearinghouse))
			ch.POST("/queries", edit, handlers.CreateClearinghouseQuery(d.Clearinghouse, auditLog))
			ch.PUT("/queries/:id", edit, handlers.UpdateClearinghouseQuery(d.Clearinghouse, auditLog))
		}

		docs := api.Group("/documents")
		{
			view := can(rules.ResourceDocuments, rules.ActionView)
			upload := can(rules.ResourceDocuments, rules.ActionUpload)
			docs.GET("", view, handlers.ListDocuments(d.Documents))
			docs.GET("/expiring", view, handlers.ExpiringDocuments(d.Documents))
			docs.GET("/stats", view, handlers.DocumentStats(d.Documents))
			docs.GET("/types", view, handlers.DocumentTypes(d.Documents))
			docs.GET("/:id", view, handlers.GetDocument(d.Documents))
			docs.GET("/:id/download", view, handlers.DownloadDocument(d.Documents, auditLog))
			docs.POST("", upload, handlers.UploadDocument(d.Documents, auditLog))
			docs.PUT("/:id", upload, handlers.UpdateDocument(d.Documents, auditLog))
			docs.POST("/:id/verify", upload, handlers.VerifyDocument(d.Documents, auditLog))
			docs.POST("/:id/replace", upload, handlers.ReplaceDocument(d.Documents, auditLog))
			docs.DELETE("/:id", can(rules.ResourceDocuments, rules.ActionDelete), handlers.DeleteDocument(d.Documents, auditLog))
		}

		taskGroup := api.Group("/tasks")
		{
			taskGroup.GET("", handlers.ListTasks(d.Tasks))
			taskGroup.GET("/stats", handlers.TaskStats(d.Tasks))
			taskGroup.GET("/overdue", handlers.OverdueTasks(d.Tasks))
			taskGroup.GET("/:id", handlers.GetTask(d.Tasks))
			taskGroup.POST("", handlers.CreateTask(d.Tasks, auditLog))
			taskGroup.PUT("/:id", handlers.UpdateTask(d.Tasks, auditLog))
			taskGroup.POST("/:id/complete", handlers.CompleteTask(d.Tasks, auditLog))
			taskGroup.POST("/:id/reopen", handlers.ReopenTask(d.Tasks, auditLog))
			taskGroup.POST("/:id/notes", handlers.AddTaskNote(d.Tasks))
			taskGroup.DELETE("/:id", handlers.DeleteTask(d.Tasks, auditLog))
		}

		cl := api.Group("/checklists")
		{
			cl.GET("/templates", handlers.ListTemplates(d.Checklists))
			cl.GET("/templates/:id", handlers.GetTemplate(d.Checklists))
			cl.POST("/templates", handlers.CreateTemplate(d.Checklists, auditLog))
			cl.PUT("/templates/:id", handlers.UpdateTemplate(d.Checklists, auditLog))
			cl.DELETE("/templates/:id", handlers.DeleteTemplate(d.Checklists, auditLog))
			cl.POST("/templates/seed-defaults", owners, handlers.SeedTemplates(d.Checklists, auditLog))
			cl.GET("/assignments", handlers.ListAssignments(d.Checklists))
			cl.GET("/assignments/:id", handlers.GetAssignment(d.Checklists))
			cl.POST("/assignments", handlers.AssignChecklist(d.Checklists, auditLog))
			cl.PATCH("/assignments/:id/items/:itemId", handlers.ToggleChecklistItem(d.Checklists))
			cl.POST("/assignments/:id/notes", handlers.AddAssignmentNote(d.Checklists))
			cl.DELETE("/assignments/:id", handlers.DeleteAssignment(d.Checklists, auditLog))
			cl.GET("/stats", handlers.ChecklistStats(d.Checklists))
		}

		dash := api.Group("/dashboard")
		{
			dash.GET("", handlers.Dashboard(handlers.DashboardDeps{
				Repo:      d.Repo,
				DataQ:     d.DataQ,
				Documents: d.Documents,
				Scoring:   d.Scoring,
			}))
			dash.GET("/compliance-score", handlers.ComplianceScore(d.Scoring))
			dash.GET("/compliance-score/history", handlers.ScoreHistory(d.Scoring))
			dash.GET("/compliance-score/breakdown", handlers.ScoreBreakdown(d.Scoring))
			dash.POST("/compliance-score/calculate", handlers.CalculateScore(d.Scoring, auditLog))
		}

		api.GET("/reports/export/:kind", can(rules.ResourceReports, rules.ActionExport), handlers.ExportReport(d.Exporter, auditLog, d.Repo.Now))

		auditGroup := api.Group("/audit", owners)
		{
			auditGroup.GET("", handlers.ListAudit(d.Audit))
			auditGroup.GET("/export", handlers.ExportAudit(d.Audit, d.Repo.Now))
			auditGroup.GET("/verify", handlers.VerifyAudit(d.Audit))
		}

		admin := api.Group("/admin", middleware.RequireRole(string(datatypes.RoleOwner)))
		{
			admin.GET("/maintenance", handlers.GetMaintenance(d.Maintenance))
			admin.PUT("/maintenance", handlers.SetMaintenance(d.Maintenance, auditLog))
		}
	}
}
