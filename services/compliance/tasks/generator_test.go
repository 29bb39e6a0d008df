// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tasks

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

func (f *fixture) generated(t *testing.T) map[string]*datatypes.Task {
	t.Helper()
	tasks, err := f.repo.Tasks.List(context.Background(), "c1", func(task *datatypes.Task) bool {
		return task.Source == datatypes.SourceAutoCompliance
	})
	require.NoError(t, err)
	out := map[string]*datatypes.Task{}
	for _, task := range tasks {
		out[task.Title] = task
	}
	return out
}

func TestGenerateForCompany_Drivers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := &datatypes.Driver{
		Base:          datatypes.Base{ID: "d1", CompanyID: "c1"},
		FirstName:     "Jo",
		LastName:      "Reyes",
		Status:        datatypes.DriverActive,
		CDL:           datatypes.CDL{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 12))},
		MedicalCard:   datatypes.MedicalCard{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 10))},
		Clearinghouse: datatypes.DriverClearinghouse{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, -3))},
		MVRExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 45)),
	}
	require.NoError(t, f.repo.Drivers.Put(ctx, d))
	require.NoError(t, f.repo.Drivers.Put(ctx, &datatypes.Driver{
		Base:      datatypes.Base{CompanyID: "c1"},
		FirstName: "Old",
		LastName:  "Timer",
		Status:    datatypes.DriverTerminated,
		CDL:       datatypes.CDL{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 1))},
	}))
	require.NoError(t, f.repo.Drivers.Put(ctx, &datatypes.Driver{
		Base:       datatypes.Base{CompanyID: "c1"},
		FirstName:  "Arch",
		LastName:   "Ived",
		Status:     datatypes.DriverActive,
		IsArchived: true,
		CDL:        datatypes.CDL{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 1))},
	}))

	n, err := f.gen.GenerateForCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := f.generated(t)
	require.Len(t, got, 3)

	cdl := got["CDL expiring for Jo Reyes"]
	require.NotNil(t, cdl)
	assert.Equal(t, datatypes.PriorityHigh, cdl.Priority)
	assert.Equal(t, "expiring_doc", cdl.Category)
	assert.Equal(t, "CDL expires in 12 days on 6/30/2025. Ensure renewal is in progress.", cdl.Description)
	assert.Equal(t, datatypes.LinkRef{Type: "driver", RefID: "d1", RefName: "Jo Reyes"}, cdl.LinkedTo)

	med := got["Medical card expiring for Jo Reyes"]
	require.NotNil(t, med)
	assert.Equal(t, datatypes.PriorityMedium, med.Priority)

	ch := got["Clearinghouse query due for Jo Reyes"]
	require.NotNil(t, ch)
	assert.Equal(t, datatypes.TaskOverdue, ch.Status)

	assert.NotContains(t, got, "MVR review due for Jo Reyes")
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.TasksGeneratedTotal))
}

func TestGenerateForCompany_Vehicles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := &datatypes.Vehicle{
		Base:             datatypes.Base{ID: "v1", CompanyID: "c1"},
		UnitNumber:       "T-12",
		VehicleType:      "tractor",
		Status:           datatypes.VehicleMaintenance,
		AnnualInspection: datatypes.AnnualInspection{NextDueDate: datatypes.TimePtr(now.AddDate(0, 0, -1))},
		Registration:     datatypes.Registration{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 29))},
		Insurance:        datatypes.Insurance{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 20))},
		PMSchedule:       datatypes.PMSchedule{NextPMDueDate: datatypes.TimePtr(now.AddDate(0, 0, 5))},
	}
	require.NoError(t, f.repo.Vehicles.Put(ctx, v))
	require.NoError(t, f.repo.Vehicles.Put(ctx, &datatypes.Vehicle{
		Base:         datatypes.Base{CompanyID: "c1"},
		UnitNumber:   "T-99",
		VehicleType:  "trailer",
		Status:       datatypes.VehicleSold,
		Registration: datatypes.Registration{ExpiryDate: datatypes.TimePtr(now)},
	}))

	n, err := f.gen.GenerateForCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got := f.generated(t)
	insp := got["Annual inspection due for T-12 (tractor)"]
	require.NotNil(t, insp)
	assert.Equal(t, datatypes.PriorityHigh, insp.Priority)
	assert.Equal(t, "maintenance", insp.Category)
	assert.Equal(t, "Annual DOT inspection is OVERDUE. Schedule with qualified inspector.", insp.Description)

	assert.Equal(t, datatypes.PriorityMedium, got["Registration expiring for T-12 (tractor)"].Priority)
	assert.Equal(t, datatypes.PriorityHigh, got["Insurance expiring for T-12 (tractor)"].Priority)
	pm := got["Preventive maintenance due for T-12 (tractor)"]
	require.NotNil(t, pm)
	assert.Equal(t, "maintenance", pm.Category)
}

func TestGenerateForCompany_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.Vehicles.Put(ctx, &datatypes.Vehicle{
		Base:        datatypes.Base{ID: "v1", CompanyID: "c1"},
		UnitNumber:  "T-12",
		VehicleType: "tractor",
		Status:      datatypes.VehicleActive,
		Insurance:   datatypes.Insurance{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 20))},
	}))

	n, err := f.gen.GenerateForCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.gen.GenerateForCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n, "open task already exists")

	existing := f.generated(t)["Insurance expiring for T-12 (tractor)"]
	require.NotNil(t, existing)
	_, _, err = f.svc.Complete(ctx, "c1", existing.ID, "u1", "renewed")
	require.NoError(t, err)

	n, err = f.gen.GenerateForCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "completed task is replaced by a new one")
}

func TestGenerateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, c := range []*datatypes.Company{
		{Base: datatypes.Base{ID: "c1", CompanyID: "c1"}, Name: "Acme"},
		{Base: datatypes.Base{ID: "c2", CompanyID: "c2"}, Name: "Paused", Status: datatypes.CompanySuspended},
	} {
		require.NoError(t, f.repo.Companies.Put(ctx, c))
		require.NoError(t, f.repo.Vehicles.Put(ctx, &datatypes.Vehicle{
			Base:        datatypes.Base{CompanyID: c.ID},
			UnitNumber:  "U1",
			VehicleType: "van",
			Status:      datatypes.VehicleActive,
			Insurance:   datatypes.Insurance{ExpiryDate: datatypes.TimePtr(now.AddDate(0, 0, 3))},
		}))
	}

	n, err := f.gen.GenerateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c2, err := f.repo.Tasks.Count(ctx, "c2", nil)
	require.NoError(t, err)
	assert.Zero(t, c2)
}

func TestPriorityWithin(t *testing.T) {
	tests := []struct {
		days, highAt int
		want         string
	}{
		{-4, 7, datatypes.PriorityHigh},
		{7, 7, datatypes.PriorityHigh},
		{8, 7, datatypes.PriorityMedium},
		{14, 14, datatypes.PriorityHigh},
		{15, 14, datatypes.PriorityMedium},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, priorityWithin(tt.days, tt.highAt), "days=%d highAt=%d", tt.days, tt.highAt)
	}
}
