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

// Score trends.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// ScoreComponent is one weighted part of the compliance score.
type ScoreComponent struct {
	Score     int            `json:"score"`
	Weight    int            `json:"weight"`
	Breakdown map[string]any `json:"breakdown"`
}

// ScoreComponents holds the five weighted components.
type ScoreComponents struct {
	DocumentStatus    ScoreComponent `json:"documentStatus"`
	Violations        ScoreComponent `json:"violations"`
	DrugAlcohol       ScoreComponent `json:"drugAlcohol"`
	DQFCompleteness   ScoreComponent `json:"dqfCompleteness"`
	VehicleInspection ScoreComponent `json:"vehicleInspection"`
}

// ScoreMetrics are raw counts captured alongside a score.
type ScoreMetrics struct {
	TotalDrivers     int `json:"totalDrivers"`
	TotalVehicles    int `json:"totalVehicles"`
	TotalDocuments   int `json:"totalDocuments"`
	ActiveViolations int `json:"activeViolations"`
}

// ComplianceScore is one point-in-time company score.
type ComplianceScore struct {
	Base
	Date          time.Time       `json:"date"`
	OverallScore  int             `json:"overallScore"`
	Components    ScoreComponents `json:"components"`
	PreviousScore *int            `json:"previousScore,omitempty"`
	Change        int             `json:"change"`
	Trend         string          `json:"trend"`
	Metrics       ScoreMetrics    `json:"metrics"`
}

// ComponentEntry is a named component in a breakdown listing.
type ComponentEntry struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	ScoreComponent
}

// ScoreBreakdown is a score with its components sorted weakest first.
type ScoreBreakdown struct {
	*ComplianceScore
	ComponentsList  []ComponentEntry `json:"componentsList"`
	Recommendations []string         `json:"recommendations"`
}
