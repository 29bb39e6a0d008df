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

func sortDrivers(ds []*datatypes.Driver) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].LastName != ds[j].LastName {
			return ds[i].LastName < ds[j].LastName
		}
		return ds[i].FirstName < ds[j].FirstName
	})
}

// ListDrivers lists drivers with optional status, complianceStatus and
// search filters. Archived drivers are hidden unless archived=true.
func ListDrivers(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		compliance := c.Query("complianceStatus")
		search := c.Query("search")
		archived := c.Query("archived") == "true"

		drivers, err := repo.Drivers.List(c.Request.Context(), companyID(c), func(d *datatypes.Driver) bool {
			if d.IsArchived != archived {
				return false
			}
			if status != "" && string(d.Status) != status {
				return false
			}
			if compliance != "" && string(d.ComplianceStatus.Overall) != compliance {
				return false
			}
			return matches(search, d.FirstName, d.LastName, d.EmployeeID, d.CDL.Number, d.Email)
		})
		if err != nil {
			fail(c, err)
			return
		}
		sortDrivers(drivers)
		page, limit := pageParams(c)
		ok(c, http.StatusOK, pageBody("drivers", storage.Paginate(drivers, page, limit)))
	}
}

// GetDriver returns one driver with its DQF breakdown.
func GetDriver(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := repo.Drivers.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		now := repo.Now()
		ok(c, http.StatusOK, gin.H{
			"driver":          d,
			"dqfCompleteness": rules.DriverDQFCompleteness(d, now),
			"dqfRequirements": rules.DQFRequirements(d, now),
		})
	}
}

// CreateDriver stores a new driver. Clearinghouse state is owned by the
// Clearinghouse sync and ignored on input.
func CreateDriver(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var d datatypes.Driver
		if err := bind(c, &d); err != nil {
			fail(c, err)
			return
		}
		d.Base = datatypes.Base{CompanyID: companyID(c)}
		d.Clearinghouse = datatypes.DriverClearinghouse{}
		d.IsArchived, d.ArchivedAt, d.RetentionExpiresAt = false, nil, nil
		rules.PrepareDriver(&d, repo.Now())

		if err := repo.Drivers.Put(c.Request.Context(), &d); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "driver", d.ID, nil)
		ok(c, http.StatusCreated, gin.H{"driver": &d})
	}
}

// UpdateDriver merges the body over the stored driver.
func UpdateDriver(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, datatypes.BadRequest("Invalid request body"))
			return
		}
		d, err := repo.Drivers.Update(c.Request.Context(), companyID(c), c.Param("id"), func(d *datatypes.Driver) error {
			orig := *d
			if err := mergeBody(raw, d); err != nil {
				return err
			}
			keepBase(&d.Base, orig.Base)
			d.Clearinghouse = orig.Clearinghouse
			d.IsArchived, d.ArchivedAt, d.RetentionExpiresAt = orig.IsArchived, orig.ArchivedAt, orig.RetentionExpiresAt
			if err := datatypes.Validate(d); err != nil {
				return err
			}
			rules.PrepareDriver(d, repo.Now())
			return nil
		})
		if err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "driver", d.ID, nil)
		ok(c, http.StatusOK, gin.H{"driver": d})
	}
}

// AddMVRReview appends an annual MVR review. The next review falls due a
// year after the review date.
func AddMVRReview(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var review datatypes.MVRReview
		if err := bind(c, &review); err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		if review.ReviewDate.IsZero() {
			review.ReviewDate = now
		}
		d, err := repo.Drivers.Update(c.Request.Context(), companyID(c), c.Param("id"), func(d *datatypes.Driver) error {
			d.Documents.MVRReviews = append(d.Documents.MVRReviews, review)
			latest := d.LatestMVRReview()
			d.MVRExpiryDate = datatypes.TimePtr(rules.AddYears(*latest, 1))
			rules.PrepareDriver(d, now)
			return nil
		})
		if err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "driver", d.ID, map[string]any{"mvrReview": review.ReviewDate})
		ok(c, http.StatusOK, gin.H{"driver": d})
	}
}

// DeleteDriver terminates and archives the driver. The record is kept
// until its retention period ends.
func DeleteDriver(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		now := repo.Now()
		d, err := repo.Drivers.Update(c.Request.Context(), companyID(c), c.Param("id"), func(d *datatypes.Driver) error {
			d.Status = datatypes.DriverTerminated
			if d.TerminationDate == nil {
				d.TerminationDate = datatypes.TimePtr(now)
			}
			rules.PrepareDriver(d, now)
			return nil
		})
		if err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		record(c.Request.Context(), audit, c, "delete", "driver", d.ID, map[string]any{"retentionExpiresAt": d.RetentionExpiresAt})
		ok(c, http.StatusOK, gin.H{"message": "Driver terminated and archived", "driver": d})
	}
}

// RestoreDriver unarchives a driver as inactive and clears its retention
// deadline.
func RestoreDriver(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := repo.Drivers.Update(c.Request.Context(), companyID(c), c.Param("id"), func(d *datatypes.Driver) error {
			if !d.IsArchived {
				return datatypes.BadRequest("Driver is not archived")
			}
			d.IsArchived, d.ArchivedAt, d.RetentionExpiresAt = false, nil, nil
			d.Status = datatypes.DriverInactive
			rules.PrepareDriver(d, repo.Now())
			return nil
		})
		if err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		record(c.Request.Context(), audit, c, "restore", "driver", d.ID, nil)
		ok(c, http.StatusOK, gin.H{"driver": d})
	}
}

// DriverStats counts non-archived drivers by status and compliance.
func DriverStats(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		drivers, err := repo.Drivers.List(c.Request.Context(), companyID(c), func(d *datatypes.Driver) bool {
			return !d.IsArchived
		})
		if err != nil {
			fail(c, err)
			return
		}
		byStatus := map[datatypes.DriverStatus]int{}
		byCompliance := map[datatypes.OverallStatus]int{}
		for _, d := range drivers {
			byStatus[d.Status]++
			byCompliance[d.ComplianceStatus.Overall]++
		}
		ok(c, http.StatusOK, gin.H{"stats": gin.H{
			"total":        len(drivers),
			"byStatus":     byStatus,
			"byCompliance": byCompliance,
		}})
	}
}

// DriverAlert lists the items needing attention for one driver.
type DriverAlert struct {
	DriverID string            `json:"driverId"`
	Name     string            `json:"name"`
	Items    []DriverAlertItem `json:"items"`
}

// DriverAlertItem is one expired, due or missing item.
type DriverAlertItem struct {
	Item   string               `json:"item"`
	Status datatypes.ItemStatus `json:"status"`
}

func alertable(s datatypes.ItemStatus) bool {
	switch s {
	case datatypes.StatusExpired, datatypes.StatusDueSoon, datatypes.StatusMissing,
		datatypes.StatusDue, datatypes.StatusOverdue:
		return true
	}
	return false
}

// DriverAlerts lists active drivers with expired, due or missing items.
func DriverAlerts(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		drivers, err := repo.Drivers.List(c.Request.Context(), companyID(c), func(d *datatypes.Driver) bool {
			return !d.IsArchived && d.Status == datatypes.DriverActive
		})
		if err != nil {
			fail(c, err)
			return
		}
		sortDrivers(drivers)

		alerts := []DriverAlert{}
		for _, d := range drivers {
			cs := d.ComplianceStatus
			var items []DriverAlertItem
			for _, it := range []DriverAlertItem{
				{"cdl", cs.CDLStatus},
				{"medicalCard", cs.MedicalStatus},
				{"mvr", cs.MVRStatus},
				{"clearinghouse", cs.ClearinghouseStatus},
			} {
				if alertable(it.Status) {
					items = append(items, it)
				}
			}
			if len(items) > 0 {
				alerts = append(alerts, DriverAlert{DriverID: d.ID, Name: d.FullName(), Items: items})
			}
		}
		ok(c, http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
	}
}

// DriverViolations lists a driver's violations newest first.
func DriverViolations(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cid, id := companyID(c), c.Param("id")
		if _, err := repo.Drivers.Get(ctx, cid, id); err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		vs, err := repo.Violations.List(ctx, cid, func(v *datatypes.Violation) bool {
			return v.DriverID == id
		})
		if err != nil {
			fail(c, err)
			return
		}
		sortViolations(vs)
		ok(c, http.StatusOK, gin.H{"violations": vs, "count": len(vs)})
	}
}
