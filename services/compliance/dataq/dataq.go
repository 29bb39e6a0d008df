// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataq implements the DataQ challenge workflow for violations.
//
// # Description
//
// A violation moves open → dispute_in_progress → resolved | dismissed |
// upheld. Submitting a challenge puts it in dispute. The challenge response
// (accepted or denied) dismisses or upholds it. After a denial the carrier
// picks one of five follow-up options and may start a new round, which
// archives the previous outcome and reopens the dispute.
//
// Every transition appends a history entry to the violation.
//
// # Thread Safety
//
// Service is safe for concurrent use. Each operation is a single store
// transaction on one violation.
package dataq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/letters"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// ErrNoChallenge is returned by follow-up operations on a violation that
// has no challenge at all.
var ErrNoChallenge = datatypes.NewAppError(http.StatusBadRequest, "No DataQ challenge exists for this violation")

// ErrChallengeNotSubmitted is returned when a status change targets a
// challenge that was never submitted.
var ErrChallengeNotSubmitted = datatypes.NewAppError(http.StatusBadRequest, "DataQ challenge has not been submitted")

// Round types.
const (
	RoundReconsideration = "reconsideration"
	RoundFMCSAEscalation = "fmcsa_escalation"
)

// urgentDays is the countdown threshold for urgency.
const urgentDays = 3

// statsWindowYears bounds the violations counted by Stats.
const statsWindowYears = 2

// Service implements the DataQ operations.
type Service struct {
	repo    *storage.Repository
	writer  letters.Writer
	metrics *observability.Metrics
}

// NewService creates a Service. writer defaults to the template writer and
// metrics may be nil.
func NewService(repo *storage.Repository, writer letters.Writer, metrics *observability.Metrics) *Service {
	if writer == nil {
		writer = letters.TemplateWriter{Now: repo.Now}
	}
	return &Service{repo: repo, writer: writer, metrics: metrics}
}

// mutate applies fn to one violation inside a transaction.
func (s *Service) mutate(ctx context.Context, companyID, id string, fn func(v *datatypes.Violation, now time.Time) error) (*datatypes.Violation, error) {
	now := s.repo.Now()
	v, err := s.repo.Violations.Update(ctx, companyID, id, func(v *datatypes.Violation) error {
		return fn(v, now)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("Violation")
	}
	return v, err
}

func (s *Service) get(ctx context.Context, companyID, id string) (*datatypes.Violation, error) {
	v, err := s.repo.Violations.Get(ctx, companyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("Violation")
	}
	return v, err
}

// =============================================================================
// Challenge Lifecycle
// =============================================================================

// SubmitInput is the payload of a new challenge.
type SubmitInput struct {
	ChallengeType           string     `json:"challengeType" validate:"required,oneof=data_error policy_violation procedural_error not_responsible"`
	Reason                  string     `json:"reason" validate:"required"`
	RDRType                 string     `json:"rdrType,omitempty"`
	CaseNumber              string     `json:"caseNumber,omitempty"`
	SupportingDocuments     []string   `json:"supportingDocuments,omitempty"`
	PendingResponseDeadline *time.Time `json:"pendingResponseDeadline,omitempty"`
}

// Submit files a challenge and puts the violation in dispute.
func (s *Service) Submit(ctx context.Context, companyID, violationID, userID string, in SubmitInput) (*datatypes.Violation, error) {
	if err := datatypes.Validate(&in); err != nil {
		return nil, err
	}
	v, err := s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		v.DataQChallenge = &datatypes.DataQChallenge{
			Submitted:               true,
			SubmissionDate:          datatypes.TimePtr(now),
			CaseNumber:              in.CaseNumber,
			ChallengeType:           in.ChallengeType,
			Reason:                  in.Reason,
			RDRType:                 in.RDRType,
			SupportingDocuments:     in.SupportingDocuments,
			PendingResponseDeadline: in.PendingResponseDeadline,
			Status:                  datatypes.ChallengePending,
		}
		v.Status = datatypes.ViolationDisputeInProgress
		v.AddHistory("dataq_submitted", userID, "DataQ challenge submitted: "+in.ChallengeType, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDataQTransition(string(datatypes.ChallengePending))
	return v, nil
}

// UpdateStatus records the agency's response to a submitted challenge.
//
// Description:
//
//	accepted, denied and withdrawn stamp the response date. accepted
//	dismisses the violation and denied upholds it. responseNotes replaces
//	the stored notes only when non-empty.
//
// Outputs:
//
//	error - ErrChallengeNotSubmitted, 400 for an unknown status, or 404.
func (s *Service) UpdateStatus(ctx context.Context, companyID, violationID, userID string, status datatypes.ChallengeStatus, responseNotes string) (*datatypes.Violation, error) {
	switch status {
	case datatypes.ChallengePending, datatypes.ChallengeUnderReview,
		datatypes.ChallengeAccepted, datatypes.ChallengeDenied, datatypes.ChallengeWithdrawn:
	default:
		return nil, datatypes.BadRequest("Invalid DataQ status: %s", status)
	}

	v, err := s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		c := v.DataQChallenge
		if c == nil || !c.Submitted {
			return ErrChallengeNotSubmitted
		}
		c.Status = status
		if responseNotes != "" {
			c.ResponseNotes = responseNotes
		}
		if status.IsTerminal() {
			c.ResponseDate = datatypes.TimePtr(now)
		}
		switch status {
		case datatypes.ChallengeAccepted:
			v.Status = datatypes.ViolationDismissed
		case datatypes.ChallengeDenied:
			v.Status = datatypes.ViolationUpheld
		}
		notes := responseNotes
		if notes == "" {
			notes = "DataQ status updated to: " + string(status)
		}
		v.AddHistory("dataq_"+string(status), userID, notes, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDataQTransition(string(status))
	return v, nil
}

// Resolve closes a violation outside the DataQ flow.
func (s *Service) Resolve(ctx context.Context, companyID, violationID, userID, action, notes string) (*datatypes.Violation, error) {
	if action == "" {
		return nil, datatypes.BadRequest("Resolution action is required")
	}
	return s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		v.Resolution = &datatypes.Resolution{Date: now, Action: action, Notes: notes}
		v.Status = datatypes.ViolationResolved
		v.AddHistory("resolved", userID, action, now)
		return nil
	})
}

// RecordStateReview marks the state-level review as submitted, which makes
// FMCSA escalation available after a denial.
func (s *Service) RecordStateReview(ctx context.Context, companyID, violationID, userID, decision string) (*datatypes.Violation, error) {
	return s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		if v.DataQChallenge == nil {
			return ErrNoChallenge
		}
		v.DataQChallenge.StateReview = datatypes.StateReview{
			Submitted:      true,
			SubmissionDate: datatypes.TimePtr(now),
			Decision:       decision,
		}
		v.AddHistory("state_review_recorded", userID, decision, now)
		return nil
	})
}

// BasicStats aggregates violations of one BASIC.
type BasicStats struct {
	Count         int `json:"count"`
	TotalSeverity int `json:"totalSeverity"`
	OutOfService  int `json:"outOfService"`
}

// Stats summarises a company's recent violations.
type Stats struct {
	ByBasic   map[datatypes.BASIC]*BasicStats   `json:"byBasic"`
	ByStatus  map[datatypes.ViolationStatus]int `json:"byStatus"`
	OpenDataQ int                               `json:"openDataQChallenges"`
	Total     int                               `json:"total"`
}

// Stats counts violations from the last two years by BASIC and status, and
// all open challenges.
func (s *Service) Stats(ctx context.Context, companyID string) (*Stats, error) {
	now := s.repo.Now()
	since := now.AddDate(-statsWindowYears, 0, 0)

	all, err := s.repo.Violations.List(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	out := &Stats{
		ByBasic:  make(map[datatypes.BASIC]*BasicStats),
		ByStatus: make(map[datatypes.ViolationStatus]int),
	}
	for _, v := range all {
		if isActiveChallenge(v) {
			out.OpenDataQ++
		}
		if v.ViolationDate.Before(since) {
			continue
		}
		out.Total++
		b := out.ByBasic[v.Basic]
		if b == nil {
			b = &BasicStats{}
			out.ByBasic[v.Basic] = b
		}
		b.Count++
		b.TotalSeverity += rules.WeightedSeverity(v, now)
		if v.OutOfService {
			b.OutOfService++
		}
		out.ByStatus[v.Status]++
	}
	return out, nil
}

// =============================================================================
// Persistence Engine
// =============================================================================

func isActiveChallenge(v *datatypes.Violation) bool {
	c := v.DataQChallenge
	return c != nil && c.Submitted && c.Status.IsActive()
}

// ActiveChallenges returns violations with a pending or under-review
// challenge, most recently submitted first.
func (s *Service) ActiveChallenges(ctx context.Context, companyID string) ([]*datatypes.Violation, error) {
	vs, err := s.repo.Violations.List(ctx, companyID, isActiveChallenge)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(vs, func(i, j int) bool {
		return submittedAt(vs[i]).After(submittedAt(vs[j]))
	})
	if vs == nil {
		vs = []*datatypes.Violation{}
	}
	return vs, nil
}

func submittedAt(v *datatypes.Violation) time.Time {
	if v.DataQChallenge == nil || v.DataQChallenge.SubmissionDate == nil {
		return time.Time{}
	}
	return *v.DataQChallenge.SubmissionDate
}

// Countdown is the response deadline state of a challenge.
type Countdown struct {
	HasPendingDeadline bool       `json:"hasPendingDeadline"`
	Deadline           *time.Time `json:"deadline"`
	DaysRemaining      *int       `json:"daysRemaining"`
	IsUrgent           bool       `json:"isUrgent"`
	IsExpired          bool       `json:"isExpired"`
}

// CountdownStatus computes the days left until the response deadline.
// Urgent is 1 to 3 days left; expired is zero or fewer.
func CountdownStatus(v *datatypes.Violation, now time.Time) Countdown {
	c := v.DataQChallenge
	if c == nil || c.PendingResponseDeadline == nil {
		return Countdown{}
	}
	deadline := *c.PendingResponseDeadline
	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	return Countdown{
		HasPendingDeadline: true,
		Deadline:           &deadline,
		DaysRemaining:      &days,
		IsUrgent:           days > 0 && days <= urgentDays,
		IsExpired:          days <= 0,
	}
}

// DeadlineAlert pairs an active challenge with its countdown.
type DeadlineAlert struct {
	Violation     *datatypes.Violation `json:"violation"`
	DaysRemaining int                  `json:"daysRemaining"`
	IsUrgent      bool                 `json:"isUrgent"`
	IsExpired     bool                 `json:"isExpired"`
}

// CheckPendingDeadlines lists active challenges that carry a deadline,
// fewest days remaining first.
func (s *Service) CheckPendingDeadlines(ctx context.Context, companyID string) ([]DeadlineAlert, error) {
	now := s.repo.Now()
	vs, err := s.repo.Violations.List(ctx, companyID, func(v *datatypes.Violation) bool {
		return isActiveChallenge(v) && v.DataQChallenge.PendingResponseDeadline != nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]DeadlineAlert, 0, len(vs))
	for _, v := range vs {
		cd := CountdownStatus(v, now)
		out = append(out, DeadlineAlert{
			Violation:     v,
			DaysRemaining: *cd.DaysRemaining,
			IsUrgent:      cd.IsUrgent,
			IsExpired:     cd.IsExpired,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DaysRemaining < out[j].DaysRemaining })
	return out, nil
}

// DenialOption is one follow-up path after a denied challenge.
type DenialOption struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description"`
	Available   bool    `json:"available"`
	Reason      *string `json:"reason"`
}

func reason(s string) *string { return &s }

// DenialOptions returns the five follow-up options with availability for v.
func DenialOptions(v *datatypes.Violation) []DenialOption {
	var isRDR, hasStateReview bool
	if c := v.DataQChallenge; c != nil {
		isRDR = c.RDRType != ""
		hasStateReview = c.StateReview.Submitted
	}
	hasCitation := v.HasCitation()

	optA := DenialOption{
		ID:          "A",
		Label:       "Request FMCSA review",
		Description: "Escalate to FMCSA for federal-level review of the state decision. Best for RDR-type challenges that were reviewed at state level.",
		Available:   isRDR && hasStateReview,
	}
	switch {
	case !isRDR:
		optA.Reason = reason("Only available for RDR-type challenges")
	case !hasStateReview:
		optA.Reason = reason("Requires state-level review to have been completed first")
	}

	optD := DenialOption{
		ID:          "D",
		Label:       "Go to court",
		Description: "Contest the underlying citation in court. If the citation is dismissed or reduced, use the court outcome to support a new DataQ challenge.",
		Available:   hasCitation,
	}
	if !hasCitation {
		optD.Reason = reason("No citation on record for this violation. Court option requires a citation to contest.")
	}

	return []DenialOption{
		optA,
		{
			ID:          "B",
			Label:       "Reopen with additional evidence",
			Description: "Submit new supporting documents or information that was not part of the original challenge. Useful when new evidence becomes available.",
			Available:   true,
		},
		{
			ID:          "C",
			Label:       "Refile under different RDR type",
			Description: "Start a new challenge using a different Request for Data Review type. Consider if the original RDR type did not match the situation well.",
			Available:   true,
		},
		optD,
		{
			ID:          "E",
			Label:       "Accept and focus on clean inspections",
			Description: "Accept the denial and focus compliance efforts elsewhere. The violation will age off your record over time with reduced weight.",
			Available:   true,
		},
	}
}

// DenialOptionsFor loads a violation and returns its options.
func (s *Service) DenialOptionsFor(ctx context.Context, companyID, violationID string) ([]DenialOption, error) {
	v, err := s.get(ctx, companyID, violationID)
	if err != nil {
		return nil, err
	}
	return DenialOptions(v), nil
}

// RecordDenialAction stores the follow-up option chosen after a denial.
func (s *Service) RecordDenialAction(ctx context.Context, companyID, violationID, optionID, userID string) (*datatypes.Violation, error) {
	return s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		if v.DataQChallenge == nil {
			return ErrNoChallenge
		}
		var chosen *DenialOption
		for _, opt := range DenialOptions(v) {
			if opt.ID == optionID {
				chosen = &opt
				break
			}
		}
		if chosen == nil {
			return datatypes.BadRequest("Invalid denial option: %s", optionID)
		}
		v.DataQChallenge.DenialWorkflow = &datatypes.DenialWorkflow{
			SelectedOption: chosen.ID,
			SelectedLabel:  chosen.Label,
			SelectedAt:     datatypes.TimePtr(now),
			SelectedBy:     userID,
			ActionTaken:    false,
		}
		v.AddHistory("denial_response_selected", userID,
			fmt.Sprintf("Selected denial response: Option %s - %s", chosen.ID, chosen.Label), now)
		return nil
	})
}

// InitiateNewRound archives the current outcome and reopens the challenge.
//
// Description:
//
//	The archived round records the previous status and response notes.
//	The challenge returns to pending with no response. An FMCSA escalation
//	also flags the challenge as escalated.
func (s *Service) InitiateNewRound(ctx context.Context, companyID, violationID, roundType, userID string) (*datatypes.Violation, error) {
	if roundType != RoundReconsideration && roundType != RoundFMCSAEscalation {
		return nil, datatypes.BadRequest("roundType must be %s or %s", RoundReconsideration, RoundFMCSAEscalation)
	}
	v, err := s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		c := v.DataQChallenge
		if c == nil {
			return ErrNoChallenge
		}
		n := len(c.Rounds) + 1
		c.Rounds = append(c.Rounds, datatypes.ChallengeRound{
			RoundNumber:           n,
			RoundType:             roundType,
			InitiatedAt:           now,
			InitiatedBy:           userID,
			PreviousStatus:        c.Status,
			PreviousResponseNotes: c.ResponseNotes,
		})
		c.Status = datatypes.ChallengePending
		c.ResponseDate = nil
		c.ResponseNotes = ""

		label := "Reconsideration"
		if roundType == RoundFMCSAEscalation {
			c.EscalatedToFMCSA = true
			c.EscalationDate = datatypes.TimePtr(now)
			label = "FMCSA Escalation"
		}
		v.AddHistory("new_round_initiated", userID, fmt.Sprintf("Round %d initiated: %s", n, label), now)
		v.Status = datatypes.ViolationDisputeInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDataQTransition(string(datatypes.ChallengePending))
	return v, nil
}

// BatchDashboard summarises a company's challenge portfolio.
type BatchDashboard struct {
	Active          int `json:"active"`
	PendingResponse int `json:"pendingResponse"`
	Won             int `json:"won"`
	Lost            int `json:"lost"`
	TotalFiled      int `json:"totalFiled"`
	SuccessRate     int `json:"successRate"`
}

// BatchDashboard counts active, won and lost challenges.
func (s *Service) BatchDashboard(ctx context.Context, companyID string) (*BatchDashboard, error) {
	now := s.repo.Now()
	filed, err := s.repo.Violations.List(ctx, companyID, func(v *datatypes.Violation) bool {
		return v.DataQChallenge != nil && v.DataQChallenge.Submitted
	})
	if err != nil {
		return nil, err
	}
	out := &BatchDashboard{TotalFiled: len(filed)}
	for _, v := range filed {
		c := v.DataQChallenge
		if c.Status.IsActive() {
			out.Active++
		}
		if cd := CountdownStatus(v, now); cd.HasPendingDeadline && *cd.DaysRemaining > 0 {
			out.PendingResponse++
		}
		switch c.Status {
		case datatypes.ChallengeAccepted:
			out.Won++
		case datatypes.ChallengeDenied:
			out.Lost++
		}
	}
	if out.TotalFiled > 0 {
		out.SuccessRate = int(math.Round(float64(out.Won) / float64(out.TotalFiled) * 100))
	}
	return out, nil
}

// =============================================================================
// Letters
// =============================================================================

// GenerateLetter drafts a challenge letter and stores it on the challenge.
//
// Description:
//
//	The draft is produced outside the write transaction. A violation
//	without a challenge gets an empty, unsubmitted one to hold the letter.
func (s *Service) GenerateLetter(ctx context.Context, companyID, violationID, userID string) (*datatypes.Violation, error) {
	v, err := s.get(ctx, companyID, violationID)
	if err != nil {
		return nil, err
	}

	req := letters.LetterRequest{
		InspectionNumber: v.InspectionNumber,
		ViolationCode:    v.ViolationCode,
		Description:      v.Description,
		ViolationDate:    v.ViolationDate,
		Location:         v.Location,
	}
	if company, err := s.repo.Companies.Get(ctx, companyID, companyID); err == nil {
		req.CompanyName = company.Name
		req.DOTNumber = company.DOTNumber
	}
	if c := v.DataQChallenge; c != nil {
		req.ChallengeType = c.ChallengeType
		req.Reason = c.Reason
		for _, e := range c.EvidenceChecklist {
			if e.Obtained {
				req.Evidence = append(req.Evidence, e.Item)
			}
		}
	}
	for _, d := range v.Documents {
		req.Evidence = append(req.Evidence, d.Name)
	}

	letter, err := s.writer.Draft(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("draft letter: %w", err)
	}

	return s.mutate(ctx, companyID, violationID, func(v *datatypes.Violation, now time.Time) error {
		if v.DataQChallenge == nil {
			v.DataQChallenge = &datatypes.DataQChallenge{}
		}
		v.DataQChallenge.GeneratedLetter = letter
		v.AddHistory("letter_generated", userID, "DataQ challenge letter generated", now)
		return nil
	})
}
