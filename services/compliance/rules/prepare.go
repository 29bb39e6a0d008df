// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// =============================================================================
// Drivers
// =============================================================================

// PrepareDriver archives terminated drivers and recomputes the compliance
// status block.
func PrepareDriver(d *datatypes.Driver, now time.Time) {
	if d.Status == "" {
		d.Status = datatypes.DriverActive
	}

	if d.Status == datatypes.DriverTerminated && !d.IsArchived {
		d.IsArchived = true
		d.ArchivedAt = datatypes.TimePtr(now)
		if d.TerminationDate == nil {
			d.TerminationDate = datatypes.TimePtr(now)
		}
		d.RetentionExpiresAt = datatypes.TimePtr(AddYears(*d.TerminationDate, RetentionYears))
	}

	cs := &d.ComplianceStatus
	cs.CDLStatus = DocumentStatus(d.CDL.ExpiryDate, now)
	cs.MedicalStatus = DocumentStatus(d.MedicalCard.ExpiryDate, now)
	cs.MVRStatus = ReviewStatus(d.LatestMVRReview(), now)
	cs.ClearinghouseStatus = ReviewStatus(d.Clearinghouse.LastQueryDate, now)
	cs.Overall = OverallStatus(cs.CDLStatus, cs.MedicalStatus, cs.MVRStatus, cs.ClearinghouseStatus)
}

// DQFRequirement is one weighted line of the driver qualification file.
type DQFRequirement struct {
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Met    bool   `json:"met"`
}

// DQFRequirements evaluates each file requirement for d.
func DQFRequirements(d *datatypes.Driver, now time.Time) []DQFRequirement {
	within := func(t *time.Time) bool {
		return t != nil && now.Sub(*t) <= ReviewOverdueDays*day
	}
	future := func(t *time.Time) bool {
		return t != nil && t.After(now)
	}
	docs := d.Documents
	return []DQFRequirement{
		{"cdl", 20, d.CDL.Number != "" && future(d.CDL.ExpiryDate)},
		{"medicalCard", 20, future(d.MedicalCard.ExpiryDate)},
		{"mvr", 15, within(d.LatestMVRReview())},
		{"clearinghouse", 15, within(d.Clearinghouse.LastQueryDate)},
		{"employmentApp", 10, docs.EmploymentApplication.Complete},
		{"roadTest", 10, docs.RoadTest.Date != nil || docs.RoadTest.Waived},
		{"employmentVerification", 10, len(docs.EmploymentVerification) > 0},
	}
}

// DriverDQFCompleteness returns the weighted DQF completeness, 0 to 100.
func DriverDQFCompleteness(d *datatypes.Driver, now time.Time) int {
	score := 0
	for _, r := range DQFRequirements(d, now) {
		if r.Met {
			score += r.Weight
		}
	}
	return score
}

// =============================================================================
// Violations
// =============================================================================

// TimeWeight is the CSA time weight by whole years since the violation.
var TimeWeight = map[int]int{0: 3, 1: 2, 2: 1}

// WeightedSeverity returns severityWeight × time weight. Violations three or
// more years old weigh nothing.
func WeightedSeverity(v *datatypes.Violation, now time.Time) int {
	sev := v.SeverityWeight
	if sev == 0 {
		sev = 1
	}
	return sev * TimeWeight[YearsAgo(v.ViolationDate, now)]
}

// PrepareViolation fills defaults on a new violation.
func PrepareViolation(v *datatypes.Violation) {
	if v.Status == "" {
		v.Status = datatypes.ViolationOpen
	}
	if v.SeverityWeight == 0 {
		v.SeverityWeight = 1
	}
}

// =============================================================================
// Accidents
// =============================================================================

// IsDOTRecordable applies the 49 CFR 390.5 accident criteria.
func IsDOTRecordable(a *datatypes.Accident) bool {
	return a.IsFatality || a.IsInjury || a.IsTowAway
}

// PrepareAccident derives recordability, totals and cost.
func PrepareAccident(a *datatypes.Accident) {
	a.IsDOTRecordable = IsDOTRecordable(a)
	if a.IsFatality {
		a.Severity = datatypes.SeverityFatal
	}
	if a.Status == "" {
		a.Status = "reported"
	}

	a.TotalInjuries, a.TotalFatalities = 0, 0
	for _, inj := range a.Injuries {
		if inj.IsFatal {
			a.TotalFatalities++
		} else {
			a.TotalInjuries++
		}
	}
	a.TotalEstimatedCost = a.VehicleDamage + a.CargoDamage + a.PropertyDamage
}

// =============================================================================
// Tasks and Documents
// =============================================================================

// PrepareTask marks past-due open tasks overdue.
func PrepareTask(t *datatypes.Task, now time.Time) {
	if t.Status == "" {
		t.Status = datatypes.TaskNotStarted
	}
	if t.Priority == "" {
		t.Priority = datatypes.PriorityMedium
	}
	if t.Category == "" {
		t.Category = "general"
	}
	if t.Status != datatypes.TaskCompleted && t.DueDate.Before(now) {
		t.Status = datatypes.TaskOverdue
	}
}

// PrepareDocument derives document status from its expiry date.
//
// Documents without an expiry stay pending_review until verified.
func PrepareDocument(doc *datatypes.Document, now time.Time) {
	if doc.Version == 0 {
		doc.Version = 1
	}
	if doc.ExpiryDate == nil {
		if doc.Status == datatypes.StatusMissing {
			return
		}
		if doc.Verified {
			doc.Status = datatypes.StatusValid
		} else {
			doc.Status = datatypes.StatusPendingReview
		}
		return
	}
	doc.Status = DocumentStatus(doc.ExpiryDate, now)
}
