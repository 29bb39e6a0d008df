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
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

var now = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	gen     *Generator
	repo    *storage.Repository
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := storage.NewRepository(db, func() time.Time { return now })
	m := observability.NewMetrics(prometheus.NewRegistry())
	return &fixture{svc: NewService(repo), gen: NewGenerator(repo, m), repo: repo, metrics: m}
}

func (f *fixture) create(t *testing.T, mutate func(*datatypes.Task)) *datatypes.Task {
	t.Helper()
	task := &datatypes.Task{Title: "Review logs", DueDate: now.AddDate(0, 0, 5)}
	if mutate != nil {
		mutate(task)
	}
	out, err := f.svc.Create(context.Background(), "c1", "u1", task)
	require.NoError(t, err)
	return out
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var appErr *datatypes.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	task := f.create(t, func(task *datatypes.Task) {
		task.Source = datatypes.SourceAutoCompliance
		task.CompanyID = "other"
	})
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "c1", task.CompanyID)
	assert.Equal(t, "u1", task.CreatedBy)
	assert.Equal(t, datatypes.SourceManual, task.Source)
	assert.Equal(t, datatypes.TaskNotStarted, task.Status)
	assert.Equal(t, datatypes.PriorityMedium, task.Priority)
	assert.Equal(t, "general", task.Category)

	past := f.create(t, func(task *datatypes.Task) { task.DueDate = now.AddDate(0, 0, -1) })
	assert.Equal(t, datatypes.TaskOverdue, past.Status)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		task datatypes.Task
	}{
		{"missing title", datatypes.Task{DueDate: now}},
		{"missing due date", datatypes.Task{Title: "x"}},
		{"bad priority", datatypes.Task{Title: "x", DueDate: now, Priority: "urgent"}},
		{"bad category", datatypes.Task{Title: "x", DueDate: now, Category: "misc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := tt.task
			_, err := f.svc.Create(context.Background(), "c1", "u1", &task)
			var verr *datatypes.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, func(task *datatypes.Task) { task.DueDate = now.AddDate(0, 0, -2) })
	require.Equal(t, datatypes.TaskOverdue, task.Status)

	title := "Review driver logs"
	due := now.AddDate(0, 0, 10)
	high := datatypes.PriorityHigh
	got, err := f.svc.Update(ctx, "c1", task.ID, Patch{Title: &title, DueDate: &due, Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, datatypes.PriorityHigh, got.Priority)
	assert.Equal(t, datatypes.TaskNotStarted, got.Status, "rescheduled task is no longer overdue")

	inProgress := datatypes.TaskInProgress
	past := now.AddDate(0, 0, -1)
	got, err = f.svc.Update(ctx, "c1", task.ID, Patch{Status: &inProgress, DueDate: &past})
	require.NoError(t, err)
	assert.Equal(t, datatypes.TaskOverdue, got.Status)

	bad := "urgent"
	_, err = f.svc.Update(ctx, "c1", task.ID, Patch{Priority: &bad})
	var verr *datatypes.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.Update(ctx, "c1", "missing", Patch{Title: &title})
	assertStatus(t, err, http.StatusNotFound)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, nil)

	done, next, err := f.svc.Complete(ctx, "c1", task.ID, "u2", "filed")
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, datatypes.TaskCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, now, *done.CompletedAt)
	assert.Equal(t, "u2", done.CompletedBy)
	assert.Equal(t, "filed", done.CompletionNotes)

	_, _, err = f.svc.Complete(ctx, "c1", "missing", "u2", "")
	assertStatus(t, err, http.StatusNotFound)
}

func TestComplete_Recurring(t *testing.T) {
	tests := []struct {
		name     string
		rec      datatypes.Recurrence
		wantNext bool
	}{
		{"enabled with interval", datatypes.Recurrence{Enabled: true, IntervalDays: 30}, true},
		{"enabled without interval", datatypes.Recurrence{Enabled: true}, false},
		{"disabled", datatypes.Recurrence{IntervalDays: 30}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.create(t, func(task *datatypes.Task) {
				task.Recurring = tt.rec
				task.Priority = datatypes.PriorityHigh
				task.LinkedTo = datatypes.LinkRef{Type: "vehicle", RefID: "v1"}
			})

			_, next, err := f.svc.Complete(context.Background(), "c1", task.ID, "u1", "")
			require.NoError(t, err)
			if !tt.wantNext {
				assert.Nil(t, next)
				return
			}
			require.NotNil(t, next)
			assert.NotEqual(t, task.ID, next.ID)
			assert.Equal(t, task.ID, next.ParentTaskID)
			assert.Equal(t, task.DueDate.AddDate(0, 0, 30), next.DueDate)
			assert.Equal(t, datatypes.TaskNotStarted, next.Status)
			assert.Equal(t, datatypes.PriorityHigh, next.Priority)
			assert.Equal(t, "v1", next.LinkedTo.RefID)
			assert.True(t, next.Recurring.Enabled)

			count, err := f.repo.Tasks.Count(context.Background(), "c1", nil)
			require.NoError(t, err)
			assert.Equal(t, 2, count)
		})
	}
}

func TestReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, nil)
	_, _, err := f.svc.Complete(ctx, "c1", task.ID, "u1", "done")
	require.NoError(t, err)

	got, err := f.svc.Reopen(ctx, "c1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.TaskInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Empty(t, got.CompletedBy)
	assert.Empty(t, got.CompletionNotes)
}

func TestAddNoteAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, nil)

	notes, err := f.svc.AddNote(ctx, "c1", task.ID, "u1", "  called the shop  ")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "called the shop", notes[0].Content)
	assert.Equal(t, "u1", notes[0].CreatedBy)

	_, err = f.svc.AddNote(ctx, "c1", task.ID, "u1", "   ")
	var verr *datatypes.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, f.svc.Delete(ctx, "c1", task.ID))
	_, err = f.svc.Get(ctx, "c1", task.ID)
	assertStatus(t, err, http.StatusNotFound)
	assertStatus(t, f.svc.Delete(ctx, "c1", task.ID), http.StatusNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, func(task *datatypes.Task) {
		task.Title = "C"
		task.DueDate = now.AddDate(0, 0, 9)
	})
	f.create(t, func(task *datatypes.Task) {
		task.Title = "A"
		task.DueDate = now.AddDate(0, 0, 1)
		task.Priority = datatypes.PriorityHigh
		task.LinkedTo = datatypes.LinkRef{Type: "driver", RefID: "d1"}
	})
	done := f.create(t, func(task *datatypes.Task) {
		task.Title = "B"
		task.Description = "annual inspection paperwork"
		task.DueDate = now.AddDate(0, 0, 3)
		task.Category = "maintenance"
		task.AssignedTo = "u9"
	})
	_, _, err := f.svc.Complete(ctx, "c1", done.ID, "u1", "")
	require.NoError(t, err)

	titles := func(p datatypes.Page[*datatypes.Task]) []string {
		out := []string{}
		for _, task := range p.Items {
			out = append(out, task.Title)
		}
		return out
	}
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all sorted by due date", Filter{}, []string{"A", "B", "C"}},
		{"active excludes completed", Filter{Status: StatusActive}, []string{"A", "C"}},
		{"exact status", Filter{Status: "completed"}, []string{"B"}},
		{"priority", Filter{Priority: "high"}, []string{"A"}},
		{"category", Filter{Category: "maintenance"}, []string{"B"}},
		{"linked", Filter{LinkedType: "driver", LinkedID: "d1"}, []string{"A"}},
		{"assigned", Filter{AssignedTo: "u9"}, []string{"B"}},
		{"search description", Filter{Search: "INSPECTION"}, []string{"B"}},
		{"due before", Filter{DueBefore: datatypes.TimePtr(now.AddDate(0, 0, 4))}, []string{"A", "B"}},
		{"paged", Filter{Page: 2, Limit: 2}, []string{"C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.List(ctx, "c1", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(page))
		})
	}
}

func TestStatsAndOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, func(task *datatypes.Task) {
		task.DueDate = now.AddDate(0, 0, -3)
		task.Title = "late"
	})
	f.create(t, func(task *datatypes.Task) {
		task.DueDate = now.AddDate(0, 0, 2)
		task.Priority = datatypes.PriorityHigh
	})
	f.create(t, func(task *datatypes.Task) { task.DueDate = now.AddDate(0, 0, 20) })
	done := f.create(t, func(task *datatypes.Task) { task.DueDate = now.AddDate(0, 0, -1) })
	_, _, err := f.svc.Complete(ctx, "c1", done.ID, "u1", "")
	require.NoError(t, err)

	st, err := f.svc.Stats(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Total:        4,
		NotStarted:   2,
		Completed:    1,
		Overdue:      1,
		HighPriority: 1,
		DueThisWeek:  1,
		OverdueCount: 1,
	}, st)

	overdue, err := f.svc.Overdue(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "late", overdue[0].Title)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, task := range []*datatypes.Task{
		{Base: datatypes.Base{CompanyID: "c1"}, Title: "stale", DueDate: now.AddDate(0, 0, -1), Status: datatypes.TaskInProgress},
		{Base: datatypes.Base{CompanyID: "c2"}, Title: "stale too", DueDate: now.AddDate(0, 0, -5), Status: datatypes.TaskNotStarted},
		{Base: datatypes.Base{CompanyID: "c1"}, Title: "future", DueDate: now.AddDate(0, 0, 1), Status: datatypes.TaskNotStarted},
		{Base: datatypes.Base{CompanyID: "c1"}, Title: "done", DueDate: now.AddDate(0, 0, -1), Status: datatypes.TaskCompleted},
	} {
		require.NoError(t, f.repo.Tasks.Put(ctx, task))
	}

	n, err := f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	overdue, err := f.repo.Tasks.ListAll(ctx, func(task *datatypes.Task) bool { return task.Status == datatypes.TaskOverdue })
	require.NoError(t, err)
	assert.Len(t, overdue, 2)

	n, err = f.svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep finds nothing")
}
