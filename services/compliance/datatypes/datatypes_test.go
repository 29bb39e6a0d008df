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

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_Touch(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var b Base
	b.Touch(now)

	require.NotEmpty(t, b.ID)
	assert.Equal(t, now, b.CreatedAt)
	assert.Equal(t, now, b.UpdatedAt)

	id := b.ID
	later := now.Add(time.Hour)
	b.Touch(later)
	assert.Equal(t, id, b.ID, "ID must be stable across saves")
	assert.Equal(t, now, b.CreatedAt)
	assert.Equal(t, later, b.UpdatedAt)
}

func TestValidate_Vehicle(t *testing.T) {
	tests := []struct {
		name    string
		vehicle Vehicle
		wantErr bool
		field   string
	}{
		{
			name:    "valid 17 char vin",
			vehicle: Vehicle{UnitNumber: "T-101", VIN: "1FUJGLDR5CLBP8834", VehicleType: "tractor"},
		},
		{
			name:    "valid 16 char vin",
			vehicle: Vehicle{UnitNumber: "T-102", VIN: "1FUJGLDR5CLBP883", VehicleType: "trailer"},
		},
		{
			name:    "short vin",
			vehicle: Vehicle{UnitNumber: "T-103", VIN: "1FUJ", VehicleType: "tractor"},
			wantErr: true,
			field:   "vin",
		},
		{
			name:    "unknown type",
			vehicle: Vehicle{UnitNumber: "T-104", VIN: "1FUJGLDR5CLBP8834", VehicleType: "boat"},
			wantErr: true,
			field:   "vehicleType",
		},
		{
			name:    "missing unit number",
			vehicle: Vehicle{VIN: "1FUJGLDR5CLBP8834", VehicleType: "bus"},
			wantErr: true,
			field:   "unitNumber",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.vehicle)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.NotEmpty(t, verr.Fields)
			assert.Contains(t, verr.Fields[0].Field, tt.field)
		})
	}
}

func TestValidate_NestedEnums(t *testing.T) {
	d := Driver{FirstName: "Ann", LastName: "Lee", CDL: CDL{Class: "D"}}
	err := Validate(&d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "class")

	d.CDL.Class = "A"
	d.CDL.Endorsements = []string{"H", "Q"}
	assert.Error(t, Validate(&d))

	d.CDL.Endorsements = []string{"H", "N"}
	assert.NoError(t, Validate(&d))
}

func TestUser_PasswordHashNotSerialised(t *testing.T) {
	u := User{Email: "a@b.com", PasswordHash: "secret-hash", FirstName: "A", LastName: "B", Role: RoleOwner}

	api, err := json.Marshal(&u)
	require.NoError(t, err)
	assert.NotContains(t, string(api), "secret-hash")

	stored, err := json.Marshal(u.ToStored())
	require.NoError(t, err)
	assert.Contains(t, string(stored), "secret-hash")

	var back User
	require.NoError(t, back.FromStored(func(v any) error { return json.Unmarshal(stored, v) }))
	assert.Equal(t, "secret-hash", back.PasswordHash)
	assert.Equal(t, "a@b.com", back.Email)
}

func TestViolation_HasCitation(t *testing.T) {
	v := Violation{}
	assert.False(t, v.HasCitation())

	v.FineAmount = 150
	assert.True(t, v.HasCitation())

	v = Violation{Documents: []ViolationDocument{{Type: "citation", Name: "ticket.pdf"}}}
	assert.True(t, v.HasCitation())
}

func TestDriver_LatestMVRReview(t *testing.T) {
	d := Driver{}
	assert.Nil(t, d.LatestMVRReview())

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.Documents.MVRReviews = []MVRReview{{ReviewDate: newer}, {ReviewDate: older}}
	require.NotNil(t, d.LatestMVRReview())
	assert.Equal(t, newer, *d.LatestMVRReview())
}

func TestAppError(t *testing.T) {
	err := NotFound("Driver")
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Equal(t, "Driver not found", err.Error())

	bad := BadRequest("option %q is not valid", "Z")
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Equal(t, `option "Z" is not valid`, bad.Message)
}

func TestChallengeStatus_Predicates(t *testing.T) {
	assert.True(t, ChallengePending.IsActive())
	assert.True(t, ChallengeUnderReview.IsActive())
	assert.False(t, ChallengeDenied.IsActive())
	assert.True(t, ChallengeDenied.IsTerminal())
	assert.False(t, ChallengePending.IsTerminal())
}
