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
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

func sortViolations(vs []*datatypes.Violation) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].ViolationDate.After(vs[j].ViolationDate) })
}

// ListViolations lists violations newest first, filtered by basic, status,
// driverId, vehicleId and a startDate/endDate range.
func ListViolations(repo *storage.Repository) gin.HandlerFunc {
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
		basic, status := c.Query("basic"), c.Query("status")
		driverID, vehicleID := c.Query("driverId"), c.Query("vehicleId")

		vs, err := repo.Violations.List(c.Request.Context(), companyID(c), func(v *datatypes.Violation) bool {
			switch {
			case basic != "" && string(v.Basic) != basic:
				return false
			case status != "" && string(v.Status) != status:
				return false
			case driverID != "" && v.DriverID != driverID:
				return false
			case vehicleID != "" && v.VehicleID != vehicleID:
				return false
			case from != nil && v.ViolationDate.Before(*from):
				return false
			case to != nil && v.ViolationDate.After(*to):
				return false
			}
			return true
		})
		if err != nil {
			fail(c, err)
			return
		}
		sortViolations(vs)
		page, limit := pageParams(c)
		ok(c, http.StatusOK, pageBody("violations", storage.Paginate(vs, page, limit)))
	}
}

// GetViolation returns one violation with its weighted severity.
func GetViolation(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := repo.Violations.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		ok(c, http.StatusOK, gin.H{
			"violation":        v,
			"weightedSeverity": rules.WeightedSeverity(v, repo.Now()),
		})
	}
}

// CreateViolation records a violation. DataQ state is only set through the
// challenge endpoints.
func CreateViolation(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var v datatypes.Violation
		if err := bind(c, &v); err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		v.Base = datatypes.Base{CompanyID: companyID(c)}
		v.DataQChallenge, v.Resolution, v.History = nil, nil, nil
		rules.PrepareViolation(&v)
		v.AddHistory("created", userID(c), "Violation record created", now)

		if err := repo.Violations.Put(c.Request.Context(), &v); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "violation", v.ID, nil)
		ok(c, http.StatusCreated, gin.H{"violation": &v})
	}
}

// UpdateViolation merges the body over the stored violation and appends an
// "updated" history entry.
func UpdateViolation(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, datatypes.BadRequest("Invalid request body"))
			return
		}
		v, err := repo.Violations.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Violation) error {
			orig := *v
			if err := mergeBody(raw, v); err != nil {
				return err
			}
			keepBase(&v.Base, orig.Base)
			v.DataQChallenge, v.History = orig.DataQChallenge, orig.History
			if err := datatypes.Validate(v); err != nil {
				return err
			}
			rules.PrepareViolation(v)
			v.AddHistory("updated", userID(c), "Violation record updated", repo.Now())
			return nil
		})
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "violation", v.ID, nil)
		ok(c, http.StatusOK, gin.H{"violation": v})
	}
}

// AddViolationDocument attaches evidence to a violation.
func AddViolationDocument(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var doc datatypes.ViolationDocument
		if err := bind(c, &doc); err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		doc.UploadedAt = now
		v, err := repo.Violations.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Violation) error {
			v.Documents = append(v.Documents, doc)
			v.AddHistory("document_added", userID(c), doc.Name, now)
			return nil
		})
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		record(c.Request.Context(), audit, c, "upload", "violation", v.ID, map[string]any{"document": doc.Name})
		ok(c, http.StatusOK, gin.H{"violation": v})
	}
}

// ViolationStats summarises the last two years by BASIC and status.
func ViolationStats(svc *dataq.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"stats": stats})
	}
}

// SeverityWeights returns the severity and time weight reference.
func SeverityWeights(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"severityWeights": rules.SeverityWeights,
		"timeWeights":     rules.TimeWeight,
	})
}
