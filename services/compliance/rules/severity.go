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

// SeverityWeights is the CSA severity reference shown to users when they
// record a violation. Values are either a weight or, for graded
// violations, a map from grade to weight.
var SeverityWeights = map[string]any{
	// Unsafe driving
	"speeding": map[string]int{
		"1-5":              1,
		"6-10":             4,
		"11-14":            5,
		"15+":              7,
		"15+ in work zone": 10,
	},
	"recklessDriving":     10,
	"improperLaneChange":  4,
	"followingTooClose":   5,
	"failureToYield":      5,
	"improperTurn":        4,
	"textingWhileDriving": 10,
	"seatbeltViolation":   7,

	// Hours of service
	"hosFalseLogBook":          7,
	"hosExceedingDrivingLimit": 7,
	"hosNoLogBook":             5,
	"hosFormMannerViolation":   1,
	"hosOutOfService":          10,

	// Vehicle maintenance
	"brakeDefect": map[string]int{
		"adjustment":   4,
		"component":    6,
		"outOfService": 8,
	},
	"lightingDefect": 2,
	"tireDefect": map[string]int{
		"tread":        3,
		"flat":         6,
		"outOfService": 8,
	},
	"loadSecurement":   5,
	"frameDefect":      7,
	"steeringDefect":   8,
	"suspensionDefect": 6,

	// Driver fitness
	"noValidCDL":            8,
	"wrongCDLClass":         5,
	"noMedicalCard":         5,
	"expiredMedicalCard":    4,
	"noRequiredEndorsement": 5,

	// Controlled substances
	"alcoholPossession":   10,
	"drugPossession":      10,
	"positiveAlcoholTest": 10,
	"positiveDrugTest":    10,
	"refusedTest":         10,
}
