// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules holds the derivations applied to records before they are
// written, and the role permission policy.
//
// Every function is pure: the current time is passed in, and nothing here
// touches storage. Write sites call the matching Prepare function
// immediately before persisting a record.
package rules

import (
	"math"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

const (
	day = 24 * time.Hour

	// DueSoonDays is the window before expiry in which a document is due_soon.
	DueSoonDays = 30

	// ReviewOverdueDays and ReviewDueDays bound annual MVR and Clearinghouse
	// reviews.
	ReviewOverdueDays = 365
	ReviewDueDays     = 335

	// RetentionYears is how long a terminated driver's file is kept.
	RetentionYears = 3

	daysPerYear = 365.25
)

// DaysUntil returns ceil((t-now)/24h). Negative once t has passed.
func DaysUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}

// DaysSince returns floor((now-t)/24h).
func DaysSince(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// DocumentStatus derives the status of an item with an expiry date.
//
//	nil expiry   → missing
//	days < 0     → expired
//	days <= 30   → due_soon
//	otherwise    → valid
func DocumentStatus(expiry *time.Time, now time.Time) datatypes.ItemStatus {
	if expiry == nil {
		return datatypes.StatusMissing
	}
	days := DaysUntil(*expiry, now)
	switch {
	case days < 0:
		return datatypes.StatusExpired
	case days <= DueSoonDays:
		return datatypes.StatusDueSoon
	default:
		return datatypes.StatusValid
	}
}

// ReviewStatus derives the status of an annual review from its last date.
func ReviewStatus(last *time.Time, now time.Time) datatypes.ItemStatus {
	if last == nil {
		return datatypes.StatusMissing
	}
	since := DaysSince(*last, now)
	switch {
	case since > ReviewOverdueDays:
		return datatypes.StatusOverdue
	case since > ReviewDueDays:
		return datatypes.StatusDue
	default:
		return datatypes.StatusCurrent
	}
}

// OverallStatus folds item statuses into a single driver status.
func OverallStatus(statuses ...datatypes.ItemStatus) datatypes.OverallStatus {
	warning := false
	for _, s := range statuses {
		switch s {
		case datatypes.StatusExpired, datatypes.StatusOverdue, datatypes.StatusMissing:
			return datatypes.OverallNonCompliant
		case datatypes.StatusDueSoon, datatypes.StatusDue:
			warning = true
		}
	}
	if warning {
		return datatypes.OverallWarning
	}
	return datatypes.OverallCompliant
}

// AddYears adds fractional 365.25-day years to t.
func AddYears(t time.Time, years float64) time.Time {
	return t.Add(time.Duration(years * daysPerYear * float64(day)))
}

// YearsAgo returns floor(days/365.25) between t and now.
func YearsAgo(t, now time.Time) int {
	return int(math.Floor(now.Sub(t).Hours() / 24 / daysPerYear))
}
