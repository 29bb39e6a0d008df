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
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/services/compliance/dataq"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/letters"
)

type violationBody struct {
	Success   bool                 `json:"success"`
	Violation *datatypes.Violation `json:"violation"`
}

func (f *fixture) dataqRoutes() {
	svc := dataq.NewService(f.repo, letters.TemplateWriter{Now: f.repo.Now}, nil)
	g := f.router.Group("/violations/:id/dataq")
	g.POST("", SubmitDataQ(svc, f.audit))
	g.PUT("", UpdateDataQStatus(svc, f.audit))
	g.POST("/state-review", RecordStateReview(svc, f.audit))
	g.GET("/denial-options", DenialOptions(svc))
	g.POST("/denial-action", RecordDenialAction(svc, f.audit))
	g.POST("/new-round", InitiateNewRound(svc, f.audit))
}

func (f *fixture) seedViolation(t *testing.T, mutate func(*datatypes.Violation)) *datatypes.Violation {
	t.Helper()
	v := &datatypes.Violation{
		Base:           datatypes.Base{CompanyID: testCompany},
		ViolationDate:  now.AddDate(0, -3, 0),
		Description:    "Log form violation",
		Basic:          datatypes.BasicHoursOfService,
		SeverityWeight: 5,
		Status:         datatypes.ViolationOpen,
	}
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, f.repo.Violations.Put(context.Background(), v))
	return v
}

func (f *fixture) violationCall(t *testing.T, method, path string, body any) *datatypes.Violation {
	t.Helper()
	w := f.do(t, method, path, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp violationBody
	decodeInto(t, w, &resp)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Violation)
	return resp.Violation
}

// denyChallenge submits a challenge for v and records a denial.
func (f *fixture) denyChallenge(t *testing.T, v *datatypes.Violation, rdrType string) *datatypes.Violation {
	t.Helper()
	base := "/violations/" + v.ID + "/dataq"
	got := f.violationCall(t, http.MethodPost, base, map[string]any{
		"challengeType": "data_error",
		"reason":        "Driver was off duty",
		"rdrType":       rdrType,
	})
	require.Equal(t, datatypes.ViolationDisputeInProgress, got.Status)

	got = f.violationCall(t, http.MethodPut, base, map[string]any{
		"status":        "denied",
		"responseNotes": "Insufficient evidence",
	})
	require.Equal(t, datatypes.ChallengeDenied, got.DataQChallenge.Status)
	require.Equal(t, datatypes.ViolationUpheld, got.Status)
	return got
}

func TestDenialAction_Options(t *testing.T) {
	tests := []struct {
		option      string
		rdrType     string
		stateReview bool
		fine        float64
		roundType   string
	}{
		{option: "A", rdrType: "incorrect_violation", stateReview: true, roundType: dataq.RoundFMCSAEscalation},
		{option: "B", roundType: dataq.RoundReconsideration},
		{option: "C", rdrType: "incorrect_violation", roundType: dataq.RoundReconsideration},
		{option: "D", fine: 250, roundType: dataq.RoundReconsideration},
		{option: "E"},
	}
	for _, tt := range tests {
		t.Run("option "+tt.option, func(t *testing.T) {
			f := newFixture(t)
			f.dataqRoutes()
			v := f.seedViolation(t, func(v *datatypes.Violation) { v.FineAmount = tt.fine })
			base := "/violations/" + v.ID + "/dataq"
			f.denyChallenge(t, v, tt.rdrType)
			if tt.stateReview {
				got := f.violationCall(t, http.MethodPost, base+"/state-review", map[string]any{"decision": "upheld"})
				require.True(t, got.DataQChallenge.StateReview.Submitted)
			}

			w := f.do(t, http.MethodGet, base+"/denial-options", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			var opts struct {
				Options []dataq.DenialOption `json:"options"`
			}
			decodeInto(t, w, &opts)
			require.Len(t, opts.Options, 5)
			for _, o := range opts.Options {
				if o.ID == tt.option {
					assert.True(t, o.Available, "option %s should be available", o.ID)
				}
			}

			got := f.violationCall(t, http.MethodPost, base+"/denial-action", map[string]any{"optionId": tt.option})
			c := got.DataQChallenge
			require.NotNil(t, c.DenialWorkflow)
			assert.Equal(t, tt.option, c.DenialWorkflow.SelectedOption)
			assert.Equal(t, "u1", c.DenialWorkflow.SelectedBy)
			assert.False(t, c.DenialWorkflow.ActionTaken)
			assert.Equal(t, datatypes.ChallengeDenied, c.Status, "selecting a response does not change the challenge status")
			assert.Equal(t, datatypes.ViolationUpheld, got.Status)
			assert.Equal(t, "denial_response_selected", got.History[len(got.History)-1].Action)

			if tt.roundType == "" {
				return
			}
			got = f.violationCall(t, http.MethodPost, base+"/new-round", map[string]any{"roundType": tt.roundType})
			c = got.DataQChallenge
			assert.Equal(t, datatypes.ChallengePending, c.Status)
			assert.Nil(t, c.ResponseDate)
			assert.Empty(t, c.ResponseNotes)
			assert.Equal(t, datatypes.ViolationDisputeInProgress, got.Status)
			require.Len(t, c.Rounds, 1)
			assert.Equal(t, datatypes.ChallengeDenied, c.Rounds[0].PreviousStatus)
			assert.Equal(t, "Insufficient evidence", c.Rounds[0].PreviousResponseNotes)
			assert.Equal(t, tt.roundType == dataq.RoundFMCSAEscalation, c.EscalatedToFMCSA)
		})
	}
}

func TestDenialAction_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		deny    bool
		id      string
		body    any
		status  int
		message string
	}{
		{name: "no challenge", body: map[string]any{"optionId": "B"}, status: http.StatusBadRequest, message: dataq.ErrNoChallenge.Message},
		{name: "unknown option", deny: true, body: map[string]any{"optionId": "Z"}, status: http.StatusBadRequest, message: "Invalid denial option: Z"},
		{name: "missing option", deny: true, body: map[string]any{}, status: http.StatusBadRequest},
		{name: "unknown violation", id: "missing", body: map[string]any{"optionId": "B"}, status: http.StatusNotFound, message: "Violation not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.dataqRoutes()
			v := f.seedViolation(t, nil)
			if tt.deny {
				f.denyChallenge(t, v, "")
			}
			id := v.ID
			if tt.id != "" {
				id = tt.id
			}
			w := f.do(t, http.MethodPost, "/violations/"+id+"/dataq/denial-action", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			msg := errorMessage(t, w)
			if tt.message != "" {
				assert.Equal(t, tt.message, msg)
			}

			stored, err := f.repo.Violations.Get(context.Background(), testCompany, v.ID)
			require.NoError(t, err)
			if stored.DataQChallenge != nil {
				assert.Nil(t, stored.DataQChallenge.DenialWorkflow)
			}
		})
	}
}

func TestUpdateDataQStatus_NotSubmitted(t *testing.T) {
	f := newFixture(t)
	f.dataqRoutes()
	v := f.seedViolation(t, nil)

	w := f.do(t, http.MethodPut, "/violations/"+v.ID+"/dataq", map[string]any{"status": "accepted"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dataq.ErrChallengeNotSubmitted.Message, errorMessage(t, w))
	assert.NotEqual(t, dataq.ErrNoChallenge.Message, dataq.ErrChallengeNotSubmitted.Message)
}
