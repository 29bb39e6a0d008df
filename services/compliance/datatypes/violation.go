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

// BASIC is an FMCSA Behavior Analysis and Safety Improvement Category.
type BASIC string

const (
	BasicUnsafeDriving        BASIC = "unsafe_driving"
	BasicHoursOfService       BASIC = "hours_of_service"
	BasicVehicleMaintenance   BASIC = "vehicle_maintenance"
	BasicControlledSubstances BASIC = "controlled_substances"
	BasicDriverFitness        BASIC = "driver_fitness"
	BasicCrashIndicator       BASIC = "crash_indicator"
)

// Basics lists every BASIC in display order.
var Basics = []BASIC{
	BasicUnsafeDriving,
	BasicHoursOfService,
	BasicVehicleMaintenance,
	BasicControlledSubstances,
	BasicDriverFitness,
	BasicCrashIndicator,
}

// ViolationStatus is the lifecycle state of a violation.
//
// open → dispute_in_progress → resolved | dismissed | upheld
type ViolationStatus string

const (
	ViolationOpen              ViolationStatus = "open"
	ViolationDisputeInProgress ViolationStatus = "dispute_in_progress"
	ViolationResolved          ViolationStatus = "resolved"
	ViolationDismissed         ViolationStatus = "dismissed"
	ViolationUpheld            ViolationStatus = "upheld"
)

// ChallengeStatus is the DataQ response state.
type ChallengeStatus string

const (
	ChallengePending     ChallengeStatus = "pending"
	ChallengeUnderReview ChallengeStatus = "under_review"
	ChallengeAccepted    ChallengeStatus = "accepted"
	ChallengeDenied      ChallengeStatus = "denied"
	ChallengeWithdrawn   ChallengeStatus = "withdrawn"
)

// IsTerminal reports whether the state ends a round.
func (s ChallengeStatus) IsTerminal() bool {
	return s == ChallengeAccepted || s == ChallengeDenied || s == ChallengeWithdrawn
}

// IsActive reports whether the challenge is still awaiting a decision.
func (s ChallengeStatus) IsActive() bool {
	return s == ChallengePending || s == ChallengeUnderReview
}

// ViolationDocument is evidence attached to a violation.
type ViolationDocument struct {
	Type       string    `json:"type" validate:"required,oneof=citation inspection_report court_document evidence other"`
	Name       string    `json:"name" validate:"required"`
	URL        string    `json:"url,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Resolution closes a violation outside the DataQ flow.
type Resolution struct {
	Date   time.Time `json:"date"`
	Action string    `json:"action"`
	Notes  string    `json:"notes,omitempty"`
}

// StateReview is the state-level review that precedes FMCSA escalation.
type StateReview struct {
	Submitted      bool       `json:"submitted"`
	SubmissionDate *time.Time `json:"submissionDate,omitempty"`
	Decision       string     `json:"decision,omitempty"`
}

// EvidenceItem is one line of the evidence checklist.
type EvidenceItem struct {
	Item     string `json:"item"`
	Obtained bool   `json:"obtained"`
}

// DenialWorkflow records the response chosen after a denial.
type DenialWorkflow struct {
	SelectedOption string     `json:"selectedOption,omitempty"`
	SelectedLabel  string     `json:"selectedLabel,omitempty"`
	SelectedAt     *time.Time `json:"selectedAt,omitempty"`
	SelectedBy     string     `json:"selectedBy,omitempty"`
	ActionTaken    bool       `json:"actionTaken"`
}

// ChallengeRound is an archived earlier round of the same challenge.
type ChallengeRound struct {
	RoundNumber           int             `json:"roundNumber"`
	RoundType             string          `json:"roundType"`
	InitiatedAt           time.Time       `json:"initiatedAt"`
	InitiatedBy           string          `json:"initiatedBy,omitempty"`
	PreviousStatus        ChallengeStatus `json:"previousStatus,omitempty"`
	PreviousResponseNotes string          `json:"previousResponseNotes,omitempty"`
}

// DataQChallenge is the dispute filed against a violation.
type DataQChallenge struct {
	Submitted           bool            `json:"submitted"`
	SubmissionDate      *time.Time      `json:"submissionDate,omitempty"`
	CaseNumber          string          `json:"caseNumber,omitempty"`
	ChallengeType       string          `json:"challengeType,omitempty" validate:"omitempty,oneof=data_error policy_violation procedural_error not_responsible"`
	Reason              string          `json:"reason,omitempty"`
	SupportingDocuments []string        `json:"supportingDocuments,omitempty"`
	Status              ChallengeStatus `json:"status,omitempty" validate:"omitempty,oneof=pending under_review accepted denied withdrawn"`
	ResponseDate        *time.Time      `json:"responseDate,omitempty"`
	ResponseNotes       string          `json:"responseNotes,omitempty"`

	RDRType                 string      `json:"rdrType,omitempty"`
	StateReview             StateReview `json:"stateReview"`
	PendingResponseDeadline *time.Time  `json:"pendingResponseDeadline,omitempty"`

	GeneratedLetter   string         `json:"generatedLetter,omitempty"`
	EvidenceChecklist []EvidenceItem `json:"evidenceChecklist,omitempty"`

	DenialWorkflow *DenialWorkflow  `json:"denialWorkflow,omitempty"`
	Rounds         []ChallengeRound `json:"rounds,omitempty"`

	EscalatedToFMCSA bool       `json:"escalatedToFMCSA"`
	EscalationDate   *time.Time `json:"escalationDate,omitempty"`
}

// Violation is an FMCSA roadside inspection violation.
type Violation struct {
	Base
	DriverID         string              `json:"driverId,omitempty"`
	VehicleID        string              `json:"vehicleId,omitempty"`
	InspectionNumber string              `json:"inspectionNumber,omitempty"`
	ViolationDate    time.Time           `json:"violationDate" validate:"required"`
	Location         string              `json:"location,omitempty"`
	ViolationCode    string              `json:"violationCode,omitempty"`
	Description      string              `json:"description" validate:"required"`
	Basic            BASIC               `json:"basic" validate:"required,oneof=unsafe_driving hours_of_service vehicle_maintenance controlled_substances driver_fitness crash_indicator"`
	SeverityWeight   int                 `json:"severityWeight" validate:"min=0,max=10"`
	OutOfService     bool                `json:"outOfService"`
	FineAmount       float64             `json:"fineAmount,omitempty" validate:"min=0"`
	Status           ViolationStatus     `json:"status" validate:"omitempty,oneof=open dispute_in_progress resolved dismissed upheld"`
	Documents        []ViolationDocument `json:"documents,omitempty"`
	Resolution       *Resolution         `json:"resolution,omitempty"`
	History          []HistoryEntry      `json:"history,omitempty"`
	DataQChallenge   *DataQChallenge     `json:"dataQChallenge,omitempty"`
	Notes            string              `json:"notes,omitempty"`
}

// HasCitation reports whether a fine was issued or a citation is attached.
func (v *Violation) HasCitation() bool {
	if v.FineAmount > 0 {
		return true
	}
	for _, d := range v.Documents {
		if d.Type == "citation" {
			return true
		}
	}
	return false
}

// AddHistory appends an audit trail entry.
func (v *Violation) AddHistory(action, userID, notes string, at time.Time) {
	v.History = append(v.History, HistoryEntry{
		Action: action,
		Date:   at,
		UserID: userID,
		Notes:  notes,
	})
}
