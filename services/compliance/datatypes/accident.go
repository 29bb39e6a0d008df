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

// Accident severities.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityFatal    = "fatal"
)

// Injury is one injured party.
type Injury struct {
	Name                    string `json:"name,omitempty"`
	IsFatal                 bool   `json:"isFatal"`
	TransportedForTreatment bool   `json:"transportedForTreatment"`
}

// Investigation is the post-accident review.
type Investigation struct {
	Findings      string     `json:"findings,omitempty"`
	RootCause     string     `json:"rootCause,omitempty"`
	Preventable   *bool      `json:"preventable,omitempty"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

// Accident is a crash involving a company unit.
type Accident struct {
	Base
	AccidentDate time.Time `json:"accidentDate" validate:"required"`
	Location     string    `json:"location,omitempty"`
	DriverID     string    `json:"driverId,omitempty"`
	VehicleID    string    `json:"vehicleId,omitempty"`
	Description  string    `json:"description,omitempty"`
	Severity     string    `json:"severity" validate:"omitempty,oneof=minor moderate severe fatal"`
	Status       string    `json:"status" validate:"omitempty,oneof=reported under_investigation closed"`

	IsFatality      bool `json:"isFatality"`
	IsInjury        bool `json:"isInjury"`
	IsTowAway       bool `json:"isTowAway"`
	IsDOTRecordable bool `json:"isDotRecordable"`

	Injuries        []Injury `json:"injuries,omitempty"`
	TotalInjuries   int      `json:"totalInjuries"`
	TotalFatalities int      `json:"totalFatalities"`

	VehicleDamage      float64 `json:"vehicleDamage,omitempty" validate:"min=0"`
	CargoDamage        float64 `json:"cargoDamage,omitempty" validate:"min=0"`
	PropertyDamage     float64 `json:"propertyDamage,omitempty" validate:"min=0"`
	TotalEstimatedCost float64 `json:"totalEstimatedCost"`

	Investigation Investigation `json:"investigation"`
	Documents     []string      `json:"documents,omitempty"`
}
