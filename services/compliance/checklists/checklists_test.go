// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checklists

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

var now = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *storage.Repository
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := &fixture{clock: now}
	f.repo = storage.NewRepository(db, func() time.Time { return f.clock })
	f.svc = NewService(f.repo)
	return f
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var appErr *datatypes.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
}

// assertBadRequest accepts either a field validation failure or a 400
// AppError.
func assertBadRequest(t *testing.T, err error) {
	t.Helper()
	var verr *datatypes.ValidationError
	if errors.As(err, &verr) {
		return
	}
	assertStatus(t, err, http.StatusBadRequest)
}

func (f *fixture) template(t *testing.T) *datatypes.ChecklistTemplate {
	t.Helper()
	tmpl, err := f.svc.CreateTemplate(context.Background(), "c1", "u1", &datatypes.ChecklistTemplate{
		Name:     "Hiring",
		Category: "onboarding",
		Items: []datatypes.TemplateItem{
			{Title: "Road test", Order: 2, Required: true, DaysToComplete: 3},
			{Title: "Application", Order: 1, Required: true, DaysToComplete: 10},
			{Title: "Welcome call", Order: 3},
		},
	})
	require.NoError(t, err)
	return tmpl
}

func TestCreateTemplate(t *testing.T) {
	f := newFixture(t)
	tmpl := f.template(t)

	assert.NotEmpty(t, tmpl.ID)
	assert.True(t, tmpl.IsActive)
	assert.Equal(t, "u1", tmpl.CreatedBy)
	require.Len(t, tmpl.Items, 3)
	assert.Equal(t, "Application", tmpl.Items[0].Title)
	assert.Equal(t, "Welcome call", tmpl.Items[2].Title)
	for _, it := range tmpl.Items {
		assert.NotEmpty(t, it.ID)
	}
}

func TestCreateTemplate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tmpl datatypes.ChecklistTemplate
	}{
		{"missing name", datatypes.ChecklistTemplate{Category: "audit", Items: []datatypes.TemplateItem{{Title: "x"}}}},
		{"bad category", datatypes.ChecklistTemplate{Name: "A", Category: "fun", Items: []datatypes.TemplateItem{{Title: "x"}}}},
		{"no items", datatypes.ChecklistTemplate{Name: "A", Category: "audit"}},
		{"untitled item", datatypes.ChecklistTemplate{Name: "A", Category: "audit", Items: []datatypes.TemplateItem{{Order: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := tt.tmpl
			_, err := f.svc.CreateTemplate(ctx, "c1", "u1", &tmpl)
			assertBadRequest(t, err)
		})
	}
}

func TestUpdateAndDeleteTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)
	keepID := tmpl.Items[0].ID

	name := "Hiring v2"
	items := []datatypes.TemplateItem{
		{Title: "New step", Order: 2},
		{ID: keepID, Title: "Application", Order: 1},
	}
	updated, err := f.svc.UpdateTemplate(ctx, "c1", tmpl.ID, TemplatePatch{Name: &name, Items: &items})
	require.NoError(t, err)
	assert.Equal(t, "Hiring v2", updated.Name)
	require.Len(t, updated.Items, 2)
	assert.Equal(t, keepID, updated.Items[0].ID)
	assert.NotEmpty(t, updated.Items[1].ID)

	empty := []datatypes.TemplateItem{}
	_, err = f.svc.UpdateTemplate(ctx, "c1", tmpl.ID, TemplatePatch{Items: &empty})
	assertBadRequest(t, err)

	_, err = f.svc.UpdateTemplate(ctx, "c1", "nope", TemplatePatch{Name: &name})
	assertStatus(t, err, http.StatusNotFound)

	require.NoError(t, f.svc.DeleteTemplate(ctx, "c1", tmpl.ID))
	got, err := f.svc.GetTemplate(ctx, "c1", tmpl.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	list, err := f.svc.ListTemplates(ctx, "c1", "", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.Assign(ctx, "c1", "u1", AssignRequest{TemplateID: tmpl.ID})
	assertStatus(t, err, http.StatusNotFound)

	assertStatus(t, f.svc.DeleteTemplate(ctx, "c2", tmpl.ID), http.StatusNotFound)
}

func TestSeedDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTemplate(ctx, "c1", "u1", &datatypes.ChecklistTemplate{
		Name:     "Annual Driver File Review",
		Category: "custom",
		Items:    []datatypes.TemplateItem{{Title: "Our own step"}},
	})
	require.NoError(t, err)

	n, err := f.svc.SeedDefaults(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.svc.SeedDefaults(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err := f.svc.ListTemplates(ctx, "c1", "", "")
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "Annual Driver File Review", list[0].Name)
	assert.Equal(t, "custom", list[0].Category)

	onboarding, err := f.svc.ListTemplates(ctx, "c1", "onboarding", "")
	require.NoError(t, err)
	require.Len(t, onboarding, 1)
	assert.Equal(t, "New Hire Driver Compliance", onboarding[0].Name)
	assert.Len(t, onboarding[0].Items, 10)
	assert.Equal(t, "system", onboarding[0].CreatedBy)

	search, err := f.svc.ListTemplates(ctx, "c1", "", "vehicle")
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, "Vehicle Inspection File Setup", search[0].Name)

	other, err := f.svc.ListTemplates(ctx, "c2", "", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDefaultTemplates_FreshCopy(t *testing.T) {
	a := DefaultTemplates()
	a[0].Items[0].Title = "changed"
	b := DefaultTemplates()
	assert.Equal(t, "Employment Application (49 CFR 391.21)", b[0].Items[0].Title)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)
	due := now.AddDate(0, 0, 30)

	a, err := f.svc.Assign(ctx, "c1", "u1", AssignRequest{
		TemplateID: tmpl.ID,
		AssignedTo: datatypes.LinkRef{Type: "driver", RefID: "d1", RefName: "Jo Reyes"},
		DueDate:    &due,
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.ChecklistNotStarted, a.Status)
	assert.Equal(t, "Hiring", a.TemplateName)
	require.Len(t, a.Items, 3)

	assert.Equal(t, "Application", a.Items[0].Title)
	require.NotNil(t, a.Items[0].DueDate)
	assert.True(t, a.Items[0].DueDate.Equal(due.AddDate(0, 0, -10)))
	require.NotNil(t, a.Items[1].DueDate)
	assert.True(t, a.Items[1].DueDate.Equal(due.AddDate(0, 0, -3)))
	assert.Nil(t, a.Items[2].DueDate, "no daysToComplete")
	assert.NotEqual(t, tmpl.Items[0].ID, a.Items[0].ID)

	noDue, err := f.svc.Assign(ctx, "c1", "u1", AssignRequest{
		TemplateID: tmpl.ID,
		AssignedTo: datatypes.LinkRef{Type: "company"},
	})
	require.NoError(t, err)
	for _, it := range noDue.Items {
		assert.Nil(t, it.DueDate)
	}

	_, err = f.svc.Assign(ctx, "c1", "u1", AssignRequest{TemplateID: tmpl.ID, AssignedTo: datatypes.LinkRef{Type: "spaceship"}})
	assertBadRequest(t, err)

	_, err = f.svc.Assign(ctx, "c1", "u1", AssignRequest{})
	assertBadRequest(t, err)

	_, err = f.svc.Assign(ctx, "c2", "u1", AssignRequest{TemplateID: tmpl.ID})
	assertStatus(t, err, http.StatusNotFound)
}

func TestToggleItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)
	a, err := f.svc.Assign(ctx, "c1", "u1", AssignRequest{TemplateID: tmpl.ID, AssignedTo: datatypes.LinkRef{Type: "driver", RefID: "d1"}})
	require.NoError(t, err)

	a, err = f.svc.ToggleItem(ctx, "c1", a.ID, a.Items[0].ID, nil, "u2", "faxed")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ChecklistInProgress, a.Status)
	assert.True(t, a.Items[0].Completed)
	assert.Equal(t, "u2", a.Items[0].CompletedBy)
	assert.Equal(t, "faxed", a.Items[0].Notes)
	require.NotNil(t, a.Items[0].CompletedAt)
	assert.Nil(t, a.CompletedAt)

	done := true
	for _, it := range a.Items[1:] {
		a, err = f.svc.ToggleItem(ctx, "c1", a.ID, it.ID, &done, "u2", "")
		require.NoError(t, err)
	}
	assert.Equal(t, datatypes.ChecklistCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)

	// Setting an already completed item keeps it completed.
	a, err = f.svc.ToggleItem(ctx, "c1", a.ID, a.Items[2].ID, &done, "u2", "")
	require.NoError(t, err)
	assert.Equal(t, datatypes.ChecklistCompleted, a.Status)

	a, err = f.svc.ToggleItem(ctx, "c1", a.ID, a.Items[0].ID, nil, "u2", "")
	require.NoError(t, err)
	assert.False(t, a.Items[0].Completed)
	assert.Empty(t, a.Items[0].CompletedBy)
	assert.Nil(t, a.Items[0].CompletedAt)
	assert.Equal(t, "faxed", a.Items[0].Notes)
	assert.Equal(t, datatypes.ChecklistInProgress, a.Status)
	assert.Nil(t, a.CompletedAt)

	_, err = f.svc.ToggleItem(ctx, "c1", a.ID, "missing", nil, "u2", "")
	assertStatus(t, err, http.StatusNotFound)
	_, err = f.svc.ToggleItem(ctx, "c1", "missing", a.Items[0].ID, nil, "u2", "")
	assertStatus(t, err, http.StatusNotFound)
}

func TestAssignmentNotesAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)
	a, err := f.svc.Assign(ctx, "c1", "u1", AssignRequest{TemplateID: tmpl.ID, AssignedTo: datatypes.LinkRef{Type: "vehicle", RefID: "v1"}})
	require.NoError(t, err)

	notes, err := f.svc.AddNote(ctx, "c1", a.ID, "u1", "  waiting on DMV  ")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "waiting on DMV", notes[0].Content)

	_, err = f.svc.AddNote(ctx, "c1", a.ID, "u1", "   ")
	assertBadRequest(t, err)

	require.NoError(t, f.svc.DeleteAssignment(ctx, "c1", a.ID))
	_, err = f.svc.GetAssignment(ctx, "c1", a.ID)
	assertStatus(t, err, http.StatusNotFound)
	assertStatus(t, f.svc.DeleteAssignment(ctx, "c1", a.ID), http.StatusNotFound)
}

func TestListAssignmentsAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tmpl := f.template(t)
	assign := func(ref datatypes.LinkRef, due time.Time) *datatypes.ChecklistAssignment {
		t.Helper()
		a, err := f.svc.Assign(ctx, "c1", "u1", AssignRequest{TemplateID: tmpl.ID, AssignedTo: ref, DueDate: &due})
		require.NoError(t, err)
		f.clock = f.clock.Add(time.Minute)
		return a
	}

	late := assign(datatypes.LinkRef{Type: "driver", RefID: "d1"}, now.AddDate(0, 0, -2))
	started := assign(datatypes.LinkRef{Type: "driver", RefID: "d2"}, now.AddDate(0, 0, 10))
	finished := assign(datatypes.LinkRef{Type: "vehicle", RefID: "v1"}, now.AddDate(0, 0, -5))

	_, err := f.svc.ToggleItem(ctx, "c1", started.ID, started.Items[0].ID, nil, "u1", "")
	require.NoError(t, err)
	done := true
	for _, it := range finished.Items {
		_, err = f.svc.ToggleItem(ctx, "c1", finished.ID, it.ID, &done, "u1", "")
		require.NoError(t, err)
	}

	all, err := f.svc.ListAssignments(ctx, "c1", AssignmentFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, all.Total)
	assert.Equal(t, finished.ID, all.Items[0].ID, "newest first")
	assert.Equal(t, late.ID, all.Items[2].ID)
	assert.Equal(t, 100, all.Items[0].Progress.Percent)
	assert.Equal(t, 33, all.Items[1].Progress.Percent)
	assert.Equal(t, 50, all.Items[1].Progress.RequiredPercent)

	tests := []struct {
		name   string
		filter AssignmentFilter
		want   []string
	}{
		{"status", AssignmentFilter{Status: "in_progress"}, []string{started.ID}},
		{"assigned type", AssignmentFilter{AssignedType: "driver"}, []string{started.ID, late.ID}},
		{"assigned id", AssignmentFilter{AssignedType: "driver", AssignedID: "d1"}, []string{late.ID}},
		{"template", AssignmentFilter{TemplateID: "other"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.ListAssignments(ctx, "c1", tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, v := range page.Items {
				ids = append(ids, v.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	st, err := f.svc.Stats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, AssignmentStats{Total: 3, NotStarted: 1, InProgress: 1, Completed: 1, Overdue: 1}, st)
}
