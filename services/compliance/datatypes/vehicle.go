// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// VehicleStatus is the operating state of a unit.
type VehicleStatus string

const (
	VehicleActive       VehicleStatus = "active"
	VehicleInactive     VehicleStatus = "inactive"
	VehicleMaintenance  VehicleStatus = "maintenance"
	VehicleOutOfService VehicleStatus = "out_of_service"
	VehicleSold         VehicleStatus = "sold"
)

// LicensePlate is the unit's plate registration.
type LicensePlate struct {
	Number     string     `json:"number,omitempty"`
	State      string     `json:"state,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// AnnualInspection is the periodic DOT inspection (49 CFR 396.17).
type AnnualInspection struct {
	LastInspectionDate *time.Time `json:"lastInspectionDate,omitempty"`
	NextDueDate        *time.Time `json:"nextDueDate,omitempty"`
	InspectorName      string     `json:"inspectorName,omitempty"`
	Result             string     `json:"result,omitempty" validate:"omitempty,oneof=pass pass_with_defects fail"`
}

// Registration is the vehicle registration.
type Registration struct {
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
}

// Insurance is the vehicle's liability cover.
type Insurance struct {
	Provider     string     `json:"provider,omitempty"`
	PolicyNumber string     `json:"policyNumber,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

// PMSchedule tracks preventive maintenance.
type PMSchedule struct {
	IntervalDays  int        `json:"intervalDays,omitempty" validate:"min=0"`
	LastPMDate    *time.Time `json:"lastPmDate,omitempty"`
	NextPMDueDate *time.Time `json:"nextPmDueDate,omitempty"`
}

// MaintenanceEntry is one logged maintenance event.
type MaintenanceEntry struct {
	Date            time.Time `json:"date"`
	MaintenanceType string    `json:"maintenanceType" validate:"required"`
	Description     string    `json:"description,omitempty"`
	Cost            float64   `json:"cost,omitempty" validate:"min=0"`
}

// Vehicle is a tractor, trailer or other unit operated by the company.
type Vehicle struct {
	Base
	UnitNumber       string             `json:"unitNumber" validate:"required"`
	VIN              string             `json:"vin" validate:"required,vin"`
	VehicleType      string             `json:"vehicleType" validate:"required,oneof=tractor trailer straight_truck bus van"`
	Make             string             `json:"make,omitempty"`
	Model            string             `json:"model,omitempty"`
	Year             int                `json:"year,omitempty" validate:"omitempty,min=1900,max=2100"`
	Status           VehicleStatus      `json:"status" validate:"omitempty,oneof=active inactive maintenance out_of_service sold"`
	LicensePlate     LicensePlate       `json:"licensePlate"`
	AssignedDriverID string             `json:"assignedDriverId,omitempty"`
	AnnualInspection AnnualInspection   `json:"annualInspection"`
	Registration     Registration       `json:"registration"`
	Insurance        Insurance          `json:"insurance"`
	PMSchedule       PMSchedule         `json:"pmSchedule"`
	MaintenanceLog   []MaintenanceEntry `json:"maintenanceLog,omitempty"`
	Notes            string             `json:"notes,omitempty"`
}

// DisplayName is "{unit} ({type})", used in task titles.
func (v *Vehicle) DisplayName() string {
	return v.UnitNumber + " (" + v.VehicleType + ")"
}
