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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// VehicleAlertDays is the look-ahead window of the vehicle alerts.
const VehicleAlertDays = 30

func prepareVehicle(v *datatypes.Vehicle) {
	if v.Status == "" {
		v.Status = datatypes.VehicleActive
	}
	pm := &v.PMSchedule
	if pm.IntervalDays > 0 && pm.LastPMDate != nil {
		pm.NextPMDueDate = datatypes.TimePtr(pm.LastPMDate.AddDate(0, 0, pm.IntervalDays))
	}
}

// ListVehicles lists vehicles filtered by status, vehicleType and search,
// sorted by unit number.
func ListVehicles(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, vtype, search := c.Query("status"), c.Query("vehicleType"), c.Query("search")
		vs, err := repo.Vehicles.List(c.Request.Context(), companyID(c), func(v *datatypes.Vehicle) bool {
			if status != "" && string(v.Status) != status {
				return false
			}
			if vtype != "" && v.VehicleType != vtype {
				return false
			}
			return matches(search, v.UnitNumber, v.VIN, v.Make, v.Model, v.LicensePlate.Number)
		})
		if err != nil {
			fail(c, err)
			return
		}
		sort.SliceStable(vs, func(i, j int) bool { return vs[i].UnitNumber < vs[j].UnitNumber })
		page, limit := pageParams(c)
		ok(c, http.StatusOK, pageBody("vehicles", storage.Paginate(vs, page, limit)))
	}
}

// GetVehicle returns one vehicle.
func GetVehicle(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := repo.Vehicles.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Vehicle", err))
			return
		}
		ok(c, http.StatusOK, gin.H{"vehicle": v})
	}
}

// CreateVehicle stores a new vehicle. VINs are unique within a company.
func CreateVehicle(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var v datatypes.Vehicle
		if err := bind(c, &v); err != nil {
			fail(c, err)
			return
		}
		ctx, cid := c.Request.Context(), companyID(c)
		v.Base = datatypes.Base{CompanyID: cid}

		n, err := repo.Vehicles.Count(ctx, cid, func(o *datatypes.Vehicle) bool { return o.VIN == v.VIN })
		if err != nil {
			fail(c, err)
			return
		}
		if n > 0 {
			fail(c, datatypes.NewAppError(http.StatusConflict, "A vehicle with VIN %s already exists", v.VIN))
			return
		}
		prepareVehicle(&v)
		if err := repo.Vehicles.Put(ctx, &v); err != nil {
			fail(c, err)
			return
		}
		record(ctx, audit, c, "create", "vehicle", v.ID, nil)
		ok(c, http.StatusCreated, gin.H{"vehicle": &v})
	}
}

// UpdateVehicle merges the body over the stored vehicle.
func UpdateVehicle(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, datatypes.BadRequest("Invalid request body"))
			return
		}
		v, err := repo.Vehicles.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Vehicle) error {
			orig := v.Base
			if err := mergeBody(raw, v); err != nil {
				return err
			}
			keepBase(&v.Base, orig)
			if err := datatypes.Validate(v); err != nil {
				return err
			}
			prepareVehicle(v)
			return nil
		})
		if err != nil {
			fail(c, notFound("Vehicle", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "vehicle", v.ID, nil)
		ok(c, http.StatusOK, gin.H{"vehicle": v})
	}
}

// AddMaintenance appends a maintenance log entry. A preventive maintenance
// entry also advances the PM schedule.
func AddMaintenance(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var entry datatypes.MaintenanceEntry
		if err := bind(c, &entry); err != nil {
			fail(c, err)
			return
		}
		if entry.Date.IsZero() {
			entry.Date = repo.Now()
		}
		v, err := repo.Vehicles.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Vehicle) error {
			v.MaintenanceLog = append(v.MaintenanceLog, entry)
			if entry.MaintenanceType == "preventive" {
				v.PMSchedule.LastPMDate = datatypes.TimePtr(entry.Date)
			}
			prepareVehicle(v)
			return nil
		})
		if err != nil {
			fail(c, notFound("Vehicle", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "vehicle", v.ID, map[string]any{"maintenanceType": entry.MaintenanceType})
		ok(c, http.StatusOK, gin.H{"vehicle": v})
	}
}

// InspectionRequest records an annual inspection.
type InspectionRequest struct {
	Date          *time.Time `json:"date,omitempty"`
	Result        string     `json:"result" validate:"required,oneof=pass pass_with_defects fail"`
	InspectorName string     `json:"inspectorName,omitempty"`
}

// RecordInspection sets the annual inspection. The next one is due a year
// after the inspection date.
func RecordInspection(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InspectionRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		date := repo.Now()
		if req.Date != nil {
			date = *req.Date
		}
		v, err := repo.Vehicles.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Vehicle) error {
			v.AnnualInspection = datatypes.AnnualInspection{
				LastInspectionDate: datatypes.TimePtr(date),
				NextDueDate:        datatypes.TimePtr(rules.AddYears(date, 1)),
				InspectorName:      req.InspectorName,
				Result:             req.Result,
			}
			return nil
		})
		if err != nil {
			fail(c, notFound("Vehicle", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "vehicle", v.ID, map[string]any{"inspection": req.Result})
		ok(c, http.StatusOK, gin.H{"vehicle": v})
	}
}

// DeleteVehicle marks the vehicle sold. The record is kept.
func DeleteVehicle(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := repo.Vehicles.Update(c.Request.Context(), companyID(c), c.Param("id"), func(v *datatypes.Vehicle) error {
			v.Status = datatypes.VehicleSold
			return nil
		})
		if err != nil {
			fail(c, notFound("Vehicle", err))
			return
		}
		record(c.Request.Context(), audit, c, "delete", "vehicle", v.ID, nil)
		ok(c, http.StatusOK, gin.H{"message": "Vehicle marked as sold", "vehicle": v})
	}
}

// VehicleStats counts vehicles by status and inspection state.
func VehicleStats(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, err := repo.Vehicles.List(c.Request.Context(), companyID(c), nil)
		if err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		byStatus := map[datatypes.VehicleStatus]int{}
		inspections := map[datatypes.ItemStatus]int{}
		for _, v := range vs {
			byStatus[v.Status]++
			if v.Status == datatypes.VehicleSold {
				continue
			}
			inspections[rules.DocumentStatus(v.AnnualInspection.NextDueDate, now)]++
		}
		ok(c, http.StatusOK, gin.H{"stats": gin.H{
			"total":         len(vs),
			"byStatus":      byStatus,
			"inspectionDue": inspections[datatypes.StatusDueSoon],
			"inspections":   inspections,
			"outOfService":  byStatus[datatypes.VehicleOutOfService],
			"inMaintenance": byStatus[datatypes.VehicleMaintenance],
		}})
	}
}

// VehicleAlert is one upcoming or past expiry on a vehicle.
type VehicleAlert struct {
	VehicleID  string    `json:"vehicleId"`
	UnitNumber string    `json:"unitNumber"`
	Item       string    `json:"item"`
	DueDate    time.Time `json:"dueDate"`
	DaysLeft   int       `json:"daysLeft"`
}

// VehicleAlerts lists inspections, registrations and insurance policies
// expiring within VehicleAlertDays, soonest first. Sold vehicles are
// ignored.
func VehicleAlerts(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, err := repo.Vehicles.List(c.Request.Context(), companyID(c), func(v *datatypes.Vehicle) bool {
			return v.Status != datatypes.VehicleSold
		})
		if err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		alerts := []VehicleAlert{}
		for _, v := range vs {
			for _, item := range []struct {
				name string
				due  *time.Time
			}{
				{"annualInspection", v.AnnualInspection.NextDueDate},
				{"registration", v.Registration.ExpiryDate},
				{"insurance", v.Insurance.ExpiryDate},
			} {
				if item.due == nil {
					continue
				}
				days := rules.DaysUntil(*item.due, now)
				if days > VehicleAlertDays {
					continue
				}
				alerts = append(alerts, VehicleAlert{
					VehicleID:  v.ID,
					UnitNumber: v.UnitNumber,
					Item:       item.name,
					DueDate:    *item.due,
					DaysLeft:   days,
				})
			}
		}
		sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].DaysLeft < alerts[j].DaysLeft })
		ok(c, http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
	}
}
