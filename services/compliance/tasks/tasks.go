// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tasks manages compliance to-do items and generates them from
// upcoming driver and vehicle expiries.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// StatusActive is the list filter for every open status.
const StatusActive = "active"

const overdueListLimit = 50

// Service implements the task lifecycle.
type Service struct {
	repo *storage.Repository
}

// NewService creates a Service.
func NewService(repo *storage.Repository) *Service {
	return &Service{repo: repo}
}

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.NotFound("Task")
	}
	return err
}

// Create stores a manual task.
func (s *Service) Create(ctx context.Context, companyID, userID string, t *datatypes.Task) (*datatypes.Task, error) {
	t.ID = ""
	t.CompanyID = companyID
	t.CreatedBy = userID
	t.Source = datatypes.SourceManual
	t.CompletedAt, t.CompletedBy = nil, ""
	if err := datatypes.Validate(t); err != nil {
		return nil, err
	}
	rules.PrepareTask(t, s.repo.Now())
	if err := s.repo.Tasks.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, companyID, id string) (*datatypes.Task, error) {
	t, err := s.repo.Tasks.Get(ctx, companyID, id)
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// Patch holds the fields Update may change. Nil fields are left alone.
type Patch struct {
	Title       *string               `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string               `json:"description,omitempty"`
	DueDate     *time.Time            `json:"dueDate,omitempty"`
	Priority    *string               `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	Status      *datatypes.TaskStatus `json:"status,omitempty" validate:"omitempty,oneof=not_started in_progress completed overdue"`
	Category    *string               `json:"category,omitempty" validate:"omitempty,oneof=general expiring_doc missing_dqf violation maintenance onboarding"`
	AssignedTo  *string               `json:"assignedTo,omitempty"`
	LinkedTo    *datatypes.LinkRef    `json:"linkedTo,omitempty"`
	Recurring   *datatypes.Recurrence `json:"recurring,omitempty"`
}

// Update applies patch and re-derives the overdue state.
func (s *Service) Update(ctx context.Context, companyID, id string, patch Patch) (*datatypes.Task, error) {
	if err := datatypes.Validate(&patch); err != nil {
		return nil, err
	}
	now := s.repo.Now()
	t, err := s.repo.Tasks.Update(ctx, companyID, id, func(t *datatypes.Task) error {
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.DueDate != nil {
			t.DueDate = *patch.DueDate
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Category != nil {
			t.Category = *patch.Category
		}
		if patch.AssignedTo != nil {
			t.AssignedTo = *patch.AssignedTo
		}
		if patch.LinkedTo != nil {
			t.LinkedTo = *patch.LinkedTo
		}
		if patch.Recurring != nil {
			t.Recurring = *patch.Recurring
		}
		// An open task moved into the future is no longer overdue.
		if t.Status == datatypes.TaskOverdue && !t.DueDate.Before(now) {
			t.Status = datatypes.TaskNotStarted
		}
		rules.PrepareTask(t, now)
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// Complete marks a task done.
//
// Description:
//
//	A recurring task with a positive interval spawns its next instance,
//	due intervalDays after this one and linked back through ParentTaskID.
//
// Outputs:
//
//	*datatypes.Task - The completed task.
//	*datatypes.Task - The next instance, or nil.
//	error - 404 AppError or storage error.
func (s *Service) Complete(ctx context.Context, companyID, id, userID, notes string) (*datatypes.Task, *datatypes.Task, error) {
	now := s.repo.Now()
	t, err := s.repo.Tasks.Update(ctx, companyID, id, func(t *datatypes.Task) error {
		t.Status = datatypes.TaskCompleted
		t.CompletedAt = datatypes.TimePtr(now)
		t.CompletedBy = userID
		t.CompletionNotes = notes
		return nil
	})
	if err != nil {
		return nil, nil, notFound(err)
	}
	if !t.Recurring.Enabled || t.Recurring.IntervalDays <= 0 {
		return t, nil, nil
	}

	next := &datatypes.Task{
		Base:         datatypes.Base{CompanyID: companyID},
		Title:        t.Title,
		Description:  t.Description,
		DueDate:      t.DueDate.AddDate(0, 0, t.Recurring.IntervalDays),
		Priority:     t.Priority,
		Status:       datatypes.TaskNotStarted,
		Category:     t.Category,
		AssignedTo:   t.AssignedTo,
		Source:       t.Source,
		CreatedBy:    t.CreatedBy,
		LinkedTo:     t.LinkedTo,
		Recurring:    t.Recurring,
		ParentTaskID: t.ID,
	}
	rules.PrepareTask(next, now)
	if err := s.repo.Tasks.Put(ctx, next); err != nil {
		return t, nil, err
	}
	slog.Info("Recurring task scheduled", "company_id", companyID, "parent_id", t.ID, "task_id", next.ID, "due", next.DueDate)
	return t, next, nil
}

// Reopen moves a task back to in_progress and clears its completion.
func (s *Service) Reopen(ctx context.Context, companyID, id string) (*datatypes.Task, error) {
	t, err := s.repo.Tasks.Update(ctx, companyID, id, func(t *datatypes.Task) error {
		t.Status = datatypes.TaskInProgress
		t.CompletedAt = nil
		t.CompletedBy = ""
		t.CompletionNotes = ""
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

// AddNote appends a note and returns the task's notes.
func (s *Service) AddNote(ctx context.Context, companyID, id, userID, content string) ([]datatypes.Note, error) {
	note := datatypes.Note{Content: strings.TrimSpace(content), CreatedBy: userID, CreatedAt: s.repo.Now()}
	if err := datatypes.Validate(&note); err != nil {
		return nil, err
	}
	t, err := s.repo.Tasks.Update(ctx, companyID, id, func(t *datatypes.Task) error {
		t.Notes = append(t.Notes, note)
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return t.Notes, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, companyID, id string) error {
	return notFound(s.repo.Tasks.Delete(ctx, companyID, id))
}

// Filter selects tasks for List.
type Filter struct {
	Status     string
	Priority   string
	Category   string
	AssignedTo string
	LinkedType string
	LinkedID   string
	Search     string
	DueBefore  *time.Time
	DueAfter   *time.Time
	Page       int
	Limit      int
}

func (f Filter) match(t *datatypes.Task) bool {
	switch {
	case f.Status == StatusActive:
		if t.Status == datatypes.TaskCompleted {
			return false
		}
	case f.Status != "" && string(t.Status) != f.Status:
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.LinkedType != "" && t.LinkedTo.Type != f.LinkedType {
		return false
	}
	if f.LinkedID != "" && t.LinkedTo.RefID != f.LinkedID {
		return false
	}
	if f.DueBefore != nil && t.DueDate.After(*f.DueBefore) {
		return false
	}
	if f.DueAfter != nil && t.DueDate.Before(*f.DueAfter) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), q) && !strings.Contains(strings.ToLower(t.Description), q) {
			return false
		}
	}
	return true
}

// List returns the matching tasks sorted by due date.
func (s *Service) List(ctx context.Context, companyID string, f Filter) (datatypes.Page[*datatypes.Task], error) {
	tasks, err := s.repo.Tasks.List(ctx, companyID, f.match)
	if err != nil {
		return datatypes.Page[*datatypes.Task]{}, err
	}
	sortByDue(tasks)
	return storage.Paginate(tasks, f.Page, f.Limit), nil
}

func sortByDue(tasks []*datatypes.Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.Before(tasks[j].DueDate) })
}

// Stats summarises a company's tasks.
type Stats struct {
	Total        int `json:"total"`
	NotStarted   int `json:"notStarted"`
	InProgress   int `json:"inProgress"`
	Completed    int `json:"completed"`
	Overdue      int `json:"overdue"`
	HighPriority int `json:"highPriority"`
	DueThisWeek  int `json:"dueThisWeek"`
	OverdueCount int `json:"overdueCount"`
}

// Stats counts tasks by status. OverdueCount uses the due date rather than
// the stored status, so it includes tasks the sweep has not reached yet.
func (s *Service) Stats(ctx context.Context, companyID string) (Stats, error) {
	tasks, err := s.repo.Tasks.List(ctx, companyID, nil)
	if err != nil {
		return Stats{}, err
	}
	now := s.repo.Now()
	weekOut := now.AddDate(0, 0, 7)
	var st Stats
	for _, t := range tasks {
		st.Total++
		switch t.Status {
		case datatypes.TaskNotStarted:
			st.NotStarted++
		case datatypes.TaskInProgress:
			st.InProgress++
		case datatypes.TaskCompleted:
			st.Completed++
		case datatypes.TaskOverdue:
			st.Overdue++
		}
		if t.Priority == datatypes.PriorityHigh {
			st.HighPriority++
		}
		if t.Status == datatypes.TaskCompleted {
			continue
		}
		if t.DueDate.Before(now) {
			st.OverdueCount++
		} else if !t.DueDate.After(weekOut) {
			st.DueThisWeek++
		}
	}
	return st, nil
}

// Overdue returns up to 50 open tasks past their due date, oldest first.
func (s *Service) Overdue(ctx context.Context, companyID string) ([]*datatypes.Task, error) {
	now := s.repo.Now()
	tasks, err := s.repo.Tasks.List(ctx, companyID, func(t *datatypes.Task) bool {
		return t.Status != datatypes.TaskCompleted && t.DueDate.Before(now)
	})
	if err != nil {
		return nil, err
	}
	sortByDue(tasks)
	if len(tasks) > overdueListLimit {
		tasks = tasks[:overdueListLimit]
	}
	return tasks, nil
}

// MarkOverdue sweeps every company and flags open tasks past their due
// date. It returns the number of tasks changed.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := s.repo.Now()
	stale, err := s.repo.Tasks.ListAll(ctx, func(t *datatypes.Task) bool {
		return t.Status != datatypes.TaskCompleted && t.Status != datatypes.TaskOverdue && t.DueDate.Before(now)
	})
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, t := range stale {
		_, err := s.repo.Tasks.Update(ctx, t.CompanyID, t.ID, func(t *datatypes.Task) error {
			rules.PrepareTask(t, now)
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return marked, err
		}
		marked++
	}
	if marked > 0 {
		slog.Info("Marked tasks overdue", "count", marked)
	}
	return marked, nil
}
