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
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// accidentStatsYears is the look-back window of the accident stats.
const accidentStatsYears = 3

// ListAccidents lists accidents newest first, filtered by severity,
// status, driverId and recordable=true.
func ListAccidents(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		severity, status, driverID := c.Query("severity"), c.Query("status"), c.Query("driverId")
		recordable := c.Query("recordable") == "true"

		as, err := repo.Accidents.List(c.Request.Context(), companyID(c), func(a *datatypes.Accident) bool {
			switch {
			case severity != "" && a.Severity != severity:
				return false
			case status != "" && a.Status != status:
				return false
			case driverID != "" && a.DriverID != driverID:
				return false
			case recordable && !a.IsDOTRecordable:
				return false
			}
			return true
		})
		if err != nil {
			fail(c, err)
			return
		}
		sort.SliceStable(as, func(i, j int) bool { return as[i].AccidentDate.After(as[j].AccidentDate) })
		page, limit := pageParams(c)
		ok(c, http.StatusOK, pageBody("accidents", storage.Paginate(as, page, limit)))
	}
}

// GetAccident returns one accident.
func GetAccident(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := repo.Accidents.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Accident", err))
			return
		}
		ok(c, http.StatusOK, gin.H{"accident": a})
	}
}

// CreateAccident records an accident and derives its DOT recordability.
func CreateAccident(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var a datatypes.Accident
		if err := bind(c, &a); err != nil {
			fail(c, err)
			return
		}
		a.Base = datatypes.Base{CompanyID: companyID(c)}
		rules.PrepareAccident(&a)
		if err := repo.Accidents.Put(c.Request.Context(), &a); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "accident", a.ID, map[string]any{"dotRecordable": a.IsDOTRecordable})
		ok(c, http.StatusCreated, gin.H{"accident": &a})
	}
}

// UpdateAccident merges the body over the stored accident.
func UpdateAccident(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, datatypes.BadRequest("Invalid request body"))
			return
		}
		a, err := repo.Accidents.Update(c.Request.Context(), companyID(c), c.Param("id"), func(a *datatypes.Accident) error {
			orig := a.Base
			if err := mergeBody(raw, a); err != nil {
				return err
			}
			keepBase(&a.Base, orig)
			if err := datatypes.Validate(a); err != nil {
				return err
			}
			rules.PrepareAccident(a)
			return nil
		})
		if err != nil {
			fail(c, notFound("Accident", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "accident", a.ID, nil)
		ok(c, http.StatusOK, gin.H{"accident": a})
	}
}

// InvestigationRequest updates the post-accident review.
type InvestigationRequest struct {
	datatypes.Investigation
	Completed bool `json:"completed"`
}

// AddInvestigation merges the investigation. A completed investigation is
// dated and closes the accident; otherwise it is under investigation.
func AddInvestigation(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InvestigationRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		a, err := repo.Accidents.Update(c.Request.Context(), companyID(c), c.Param("id"), func(a *datatypes.Accident) error {
			inv := &a.Investigation
			if req.Findings != "" {
				inv.Findings = req.Findings
			}
			if req.RootCause != "" {
				inv.RootCause = req.RootCause
			}
			if req.Preventable != nil {
				inv.Preventable = req.Preventable
			}
			if req.Completed {
				inv.CompletedDate = datatypes.TimePtr(now)
				a.Status = "closed"
			} else if a.Status != "closed" {
				a.Status = "under_investigation"
			}
			rules.PrepareAccident(a)
			return nil
		})
		if err != nil {
			fail(c, notFound("Accident", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "accident", a.ID, map[string]any{"investigationCompleted": req.Completed})
		ok(c, http.StatusOK, gin.H{"accident": a})
	}
}

// AccidentSummary totals accidents in the stats window.
type AccidentSummary struct {
	Total         int     `json:"total"`
	DOTRecordable int     `json:"dotRecordable"`
	Fatalities    int     `json:"fatalities"`
	Injuries      int     `json:"injuries"`
	Preventable   int     `json:"preventable"`
	TotalCost     float64 `json:"totalCost"`
}

// AccidentStats summarises the last three years of accidents.
func AccidentStats(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		since := repo.Now().AddDate(-accidentStatsYears, 0, 0)
		as, err := repo.Accidents.List(c.Request.Context(), companyID(c), func(a *datatypes.Accident) bool {
			return !a.AccidentDate.Before(since)
		})
		if err != nil {
			fail(c, err)
			return
		}
		var sum AccidentSummary
		bySeverity := map[string]int{}
		for _, a := range as {
			sum.Total++
			if a.IsDOTRecordable {
				sum.DOTRecordable++
			}
			sum.Fatalities += a.TotalFatalities
			sum.Injuries += a.TotalInjuries
			if p := a.Investigation.Preventable; p != nil && *p {
				sum.Preventable++
			}
			sum.TotalCost += a.TotalEstimatedCost
			bySeverity[a.Severity]++
		}
		ok(c, http.StatusOK, gin.H{"stats": gin.H{"summary": sum, "bySeverity": bySeverity}})
	}
}
