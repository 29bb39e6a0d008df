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
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/documents"
	"github.com/AleutianAI/vroomx/services/compliance/scoring"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// dashboardExpiringDays is the document look-ahead of the dashboard.
const dashboardExpiringDays = 30

// DashboardDeps are the services the dashboard reads from.
type DashboardDeps struct {
	Repo      *storage.Repository
	DataQ     *dataq.Service
	Documents *documents.Service
	Scoring   *scoring.Service
}

// FleetCounts is the dashboard's driver or vehicle summary.
type FleetCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Issues int `json:"issues"`
}

// Dashboard aggregates the fleet overview.
//
// # Description
//
// Each section is loaded concurrently. The first failing section fails the
// whole response; latestScore is null until a score has been calculated.
func Dashboard(deps DashboardDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := companyID(c)
		now := deps.Repo.Now()
		g, ctx := errgroup.WithContext(c.Request.Context())

		var (
			drivers, vehicles FleetCounts
			openViolations    int
			expiring          documents.Expiring
			openTasks         int
			challenges        *dataq.BatchDashboard
			latest            *datatypes.ComplianceScore
		)

		g.Go(func() error {
			ds, err := deps.Repo.Drivers.List(ctx, cid, func(d *datatypes.Driver) bool { return !d.IsArchived })
			if err != nil {
				return err
			}
			for _, d := range ds {
				drivers.Total++
				if d.Status == datatypes.DriverActive {
					drivers.Active++
					if d.ComplianceStatus.Overall != datatypes.OverallCompliant {
						drivers.Issues++
					}
				}
			}
			return nil
		})
		g.Go(func() error {
			vs, err := deps.Repo.Vehicles.List(ctx, cid, func(v *datatypes.Vehicle) bool { return v.Status != datatypes.VehicleSold })
			if err != nil {
				return err
			}
			for _, v := range vs {
				vehicles.Total++
				if v.Status == datatypes.VehicleActive {
					vehicles.Active++
				}
				if due := v.AnnualInspection.NextDueDate; due != nil && due.Before(now) {
					vehicles.Issues++
				}
			}
			return nil
		})
		g.Go(func() error {
			n, err := deps.Repo.Violations.Count(ctx, cid, func(v *datatypes.Violation) bool {
				return v.Status == datatypes.ViolationOpen || v.Status == datatypes.ViolationDisputeInProgress
			})
			openViolations = n
			return err
		})
		g.Go(func() error {
			e, err := deps.Documents.Expiring(ctx, cid, dashboardExpiringDays)
			expiring = e
			return err
		})
		g.Go(func() error {
			n, err := deps.Repo.Tasks.Count(ctx, cid, func(t *datatypes.Task) bool {
				return t.Status != datatypes.TaskCompleted
			})
			openTasks = n
			return err
		})
		g.Go(func() error {
			d, err := deps.DataQ.BatchDashboard(ctx, cid)
			challenges = d
			return err
		})
		g.Go(func() error {
			sc, err := deps.Scoring.Latest(ctx, cid)
			latest = sc
			return err
		})
		if err := g.Wait(); err != nil {
			fail(c, err)
			return
		}

		ok(c, http.StatusOK, gin.H{"dashboard": gin.H{
			"drivers":        drivers,
			"vehicles":       vehicles,
			"openViolations": openViolations,
			"documents": gin.H{
				"expiringSoon": len(expiring.Expiring),
				"expired":      len(expiring.Expired),
			},
			"openTasks":   openTasks,
			"dataQ":       challenges,
			"latestScore": latest,
		}})
	}
}

// ComplianceScore returns today's score, calculating it when missing.
func ComplianceScore(svc *scoring.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, err := svc.Get(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"score": sc})
	}
}

// ScoreHistory returns the scores of the last ?days= days (default 30).
func ScoreHistory(svc *scoring.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		scores, err := svc.History(c.Request.Context(), companyID(c), queryInt(c, "days", 0))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"history": scores, "count": len(scores)})
	}
}

// ScoreBreakdown returns the components weakest first with
// recommendations.
func ScoreBreakdown(svc *scoring.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svc.Breakdown(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"breakdown": b})
	}
}

// CalculateScore recalculates and stores today's score.
func CalculateScore(svc *scoring.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, err := svc.Calculate(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "calculate", "compliance_score", sc.ID, map[string]any{"overall": sc.OverallScore})
		ok(c, http.StatusOK, gin.H{"score": sc})
	}
}
