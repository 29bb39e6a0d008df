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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// =============================================================================
// Request bodies
// =============================================================================

// ChallengeStatusRequest moves a challenge to a new status.
type ChallengeStatusRequest struct {
	Status        datatypes.ChallengeStatus `json:"status" validate:"required,oneof=pending under_review accepted denied withdrawn"`
	ResponseNotes string                    `json:"responseNotes,omitempty"`
}

// ResolveRequest closes a violation outside the DataQ flow.
type ResolveRequest struct {
	Action string `json:"action" validate:"required"`
	Notes  string `json:"notes,omitempty"`
}

// StateReviewRequest records the state-level review decision.
type StateReviewRequest struct {
	Decision string `json:"decision,omitempty"`
}

// DenialActionRequest selects a response to a denied challenge.
type DenialActionRequest struct {
	OptionID string `json:"optionId" validate:"required"`
}

// NewRoundRequest starts another challenge round.
type NewRoundRequest struct {
	RoundType string `json:"roundType" validate:"required,oneof=reconsideration fmcsa_escalation"`
}

// =============================================================================
// Challenge lifecycle
// =============================================================================

func violationResponse(c *gin.Context, audit extensions.AuditLogger, action string, v *datatypes.Violation, err error) {
	if err != nil {
		fail(c, notFound("Violation", err))
		return
	}
	record(c.Request.Context(), audit, c, action, "violation", v.ID, nil)
	ok(c, http.StatusOK, gin.H{"violation": v})
}

// SubmitDataQ files a DataQ challenge.
func SubmitDataQ(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in dataq.SubmitInput
		if err := bind(c, &in); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.Submit(c.Request.Context(), companyID(c), c.Param("id"), userID(c), in)
		violationResponse(c, audit, "dataq_submit", v, err)
	}
}

// UpdateDataQStatus records the response to a challenge.
func UpdateDataQStatus(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChallengeStatusRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.UpdateStatus(c.Request.Context(), companyID(c), c.Param("id"), userID(c), req.Status, req.ResponseNotes)
		violationResponse(c, audit, "dataq_status", v, err)
	}
}

// ResolveViolation closes a violation.
func ResolveViolation(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResolveRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.Resolve(c.Request.Context(), companyID(c), c.Param("id"), userID(c), req.Action, req.Notes)
		violationResponse(c, audit, "resolve", v, err)
	}
}

// RecordStateReview marks the state review as submitted.
func RecordStateReview(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StateReviewRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.RecordStateReview(c.Request.Context(), companyID(c), c.Param("id"), userID(c), req.Decision)
		violationResponse(c, audit, "dataq_state_review", v, err)
	}
}

// =============================================================================
// Persistence engine
// =============================================================================

// DataQCountdown returns the response deadline state of one challenge.
func DataQCountdown(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := repo.Violations.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		ok(c, http.StatusOK, gin.H{"countdown": dataq.CountdownStatus(v, repo.Now())})
	}
}

// DenialOptions lists the responses available after a denial.
func DenialOptions(svc *dataq.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, err := svc.DenialOptionsFor(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		ok(c, http.StatusOK, gin.H{"options": opts})
	}
}

// RecordDenialAction stores the selected denial response.
func RecordDenialAction(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DenialActionRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.RecordDenialAction(c.Request.Context(), companyID(c), c.Param("id"), req.OptionID, userID(c))
		violationResponse(c, audit, "dataq_denial_action", v, err)
	}
}

// InitiateNewRound starts a reconsideration or FMCSA escalation round.
func InitiateNewRound(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NewRoundRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		v, err := svc.InitiateNewRound(c.Request.Context(), companyID(c), c.Param("id"), req.RoundType, userID(c))
		violationResponse(c, audit, "dataq_new_round", v, err)
	}
}

// GenerateLetter drafts the challenge letter.
func GenerateLetter(svc *dataq.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.GenerateLetter(c.Request.Context(), companyID(c), c.Param("id"), userID(c))
		if err != nil {
			fail(c, notFound("Violation", err))
			return
		}
		record(c.Request.Context(), audit, c, "dataq_letter", "violation", v.ID, nil)
		ok(c, http.StatusOK, gin.H{"letter": v.DataQChallenge.GeneratedLetter, "violation": v})
	}
}

// ActiveChallenges lists pending and under-review challenges.
func ActiveChallenges(svc *dataq.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		vs, err := svc.ActiveChallenges(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"challenges": vs, "count": len(vs)})
	}
}

// PendingDeadlines lists active challenges by days remaining.
func PendingDeadlines(svc *dataq.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := svc.CheckPendingDeadlines(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"deadlines": alerts, "count": len(alerts)})
	}
}

// DataQDashboard summarises the challenge portfolio.
func DataQDashboard(svc *dataq.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := svc.BatchDashboard(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"dashboard": d})
	}
}
