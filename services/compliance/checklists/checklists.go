// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checklists manages reusable checklist templates and their
// assignments to drivers, vehicles and the company itself.
//
// # Description
//
// A template is a named, ordered list of steps. Assigning it copies the
// steps into a ChecklistAssignment so later template edits never change
// work already in progress. Assignment status is always derived from the
// items: none done is not_started, all done is completed.
//
// # Thread Safety
//
// Service is safe for concurrent use. Item toggles go through the
// collection's optimistic Update and are retried on conflict.
package checklists

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// Service implements checklist templates and assignments.
type Service struct {
	repo *storage.Repository
}

// NewService creates a Service.
func NewService(repo *storage.Repository) *Service {
	return &Service{repo: repo}
}

func notFound(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.NotFound(what)
	}
	return err
}

// =============================================================================
// Templates
// =============================================================================

// normalizeItems assigns missing item IDs and orders items by Order.
func normalizeItems(items []datatypes.TemplateItem) {
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Order < items[j].Order })
}

// CreateTemplate stores a new active template. At least one item is
// required.
func (s *Service) CreateTemplate(ctx context.Context, companyID, userID string, t *datatypes.ChecklistTemplate) (*datatypes.ChecklistTemplate, error) {
	t.ID = ""
	t.CompanyID = companyID
	t.CreatedBy = userID
	t.IsActive = true
	t.Name = strings.TrimSpace(t.Name)
	if err := datatypes.Validate(t); err != nil {
		return nil, err
	}
	if len(t.Items) == 0 {
		return nil, datatypes.BadRequest("At least one checklist item is required")
	}
	normalizeItems(t.Items)
	if err := s.repo.ChecklistTemplates.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTemplate returns one template, active or not.
func (s *Service) GetTemplate(ctx context.Context, companyID, id string) (*datatypes.ChecklistTemplate, error) {
	t, err := s.repo.ChecklistTemplates.Get(ctx, companyID, id)
	if err != nil {
		return nil, notFound("Template", err)
	}
	return t, nil
}

// TemplatePatch holds the fields UpdateTemplate may change.
type TemplatePatch struct {
	Name        *string                   `json:"name,omitempty" validate:"omitempty,min=1"`
	Description *string                   `json:"description,omitempty"`
	Category    *string                   `json:"category,omitempty" validate:"omitempty,oneof=onboarding audit maintenance file_review custom"`
	Items       *[]datatypes.TemplateItem `json:"items,omitempty" validate:"omitempty,dive"`
	IsActive    *bool                     `json:"isActive,omitempty"`
}

// UpdateTemplate applies patch. Replacing the items keeps any IDs the
// caller sends back and assigns new ones to added items.
func (s *Service) UpdateTemplate(ctx context.Context, companyID, id string, patch TemplatePatch) (*datatypes.ChecklistTemplate, error) {
	if err := datatypes.Validate(&patch); err != nil {
		return nil, err
	}
	if patch.Items != nil && len(*patch.Items) == 0 {
		return nil, datatypes.BadRequest("At least one checklist item is required")
	}
	t, err := s.repo.ChecklistTemplates.Update(ctx, companyID, id, func(t *datatypes.ChecklistTemplate) error {
		if patch.Name != nil {
			t.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Category != nil {
			t.Category = *patch.Category
		}
		if patch.Items != nil {
			t.Items = append([]datatypes.TemplateItem(nil), (*patch.Items)...)
			normalizeItems(t.Items)
		}
		if patch.IsActive != nil {
			t.IsActive = *patch.IsActive
		}
		return nil
	})
	if err != nil {
		return nil, notFound("Template", err)
	}
	return t, nil
}

// DeleteTemplate deactivates a template. Existing assignments keep their
// copied items.
func (s *Service) DeleteTemplate(ctx context.Context, companyID, id string) error {
	_, err := s.repo.ChecklistTemplates.Update(ctx, companyID, id, func(t *datatypes.ChecklistTemplate) error {
		t.IsActive = false
		return nil
	})
	return notFound("Template", err)
}

// ListTemplates returns active templates sorted by name, optionally
// restricted to one category and a name search.
func (s *Service) ListTemplates(ctx context.Context, companyID, category, search string) ([]*datatypes.ChecklistTemplate, error) {
	q := strings.ToLower(strings.TrimSpace(search))
	out, err := s.repo.ChecklistTemplates.List(ctx, companyID, func(t *datatypes.ChecklistTemplate) bool {
		if !t.IsActive {
			return false
		}
		if category != "" && t.Category != category {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(t.Name), q)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SeedDefaults installs DefaultTemplates for a company, skipping any whose
// name is already taken. It returns the number created.
func (s *Service) SeedDefaults(ctx context.Context, companyID string) (int, error) {
	existing, err := s.repo.ChecklistTemplates.List(ctx, companyID, nil)
	if err != nil {
		return 0, err
	}
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[t.Name] = true
	}

	created := 0
	for _, def := range DefaultTemplates() {
		if taken[def.Name] {
			continue
		}
		def.CompanyID = companyID
		def.CreatedBy = "system"
		def.IsActive = true
		normalizeItems(def.Items)
		if err := s.repo.ChecklistTemplates.Put(ctx, &def); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		slog.Info("Seeded checklist templates", "company_id", companyID, "created", created)
	}
	return created, nil
}

// =============================================================================
// Assignments
// =============================================================================

// AssignRequest is the input to Assign.
type AssignRequest struct {
	TemplateID string            `json:"templateId" validate:"required"`
	AssignedTo datatypes.LinkRef `json:"assignedTo"`
	DueDate    *time.Time        `json:"dueDate,omitempty"`
}

// Assign instantiates a template.
//
// Description:
//
//	Items are copied in template order. An item's due date is the
//	assignment due date minus its daysToComplete, and stays nil unless
//	both are set.
//
// Outputs:
//
//	*datatypes.ChecklistAssignment - The new not_started assignment.
//	error - 404 when the template is missing or inactive, 400 on bad input.
func (s *Service) Assign(ctx context.Context, companyID, userID string, req AssignRequest) (*datatypes.ChecklistAssignment, error) {
	if err := datatypes.Validate(&req); err != nil {
		return nil, err
	}
	tmpl, err := s.repo.ChecklistTemplates.Get(ctx, companyID, req.TemplateID)
	if err != nil {
		return nil, notFound("Template", err)
	}
	if !tmpl.IsActive {
		return nil, datatypes.NotFound("Template")
	}

	templateItems := append([]datatypes.TemplateItem(nil), tmpl.Items...)
	normalizeItems(templateItems)
	items := make([]datatypes.AssignmentItem, 0, len(templateItems))
	for _, ti := range templateItems {
		it := datatypes.AssignmentItem{
			ID:          uuid.NewString(),
			Title:       ti.Title,
			Description: ti.Description,
			Required:    ti.Required,
			Order:       ti.Order,
		}
		if req.DueDate != nil && ti.DaysToComplete > 0 {
			it.DueDate = datatypes.TimePtr(req.DueDate.AddDate(0, 0, -ti.DaysToComplete))
		}
		items = append(items, it)
	}

	a := &datatypes.ChecklistAssignment{
		Base:         datatypes.Base{CompanyID: companyID},
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		AssignedTo:   req.AssignedTo,
		DueDate:      req.DueDate,
		Status:       datatypes.ChecklistNotStarted,
		Items:        items,
		CreatedBy:    userID,
	}
	if err := datatypes.Validate(a); err != nil {
		return nil, err
	}
	if err := s.repo.ChecklistAssignments.Put(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssignment returns one assignment with its progress.
func (s *Service) GetAssignment(ctx context.Context, companyID, id string) (AssignmentView, error) {
	a, err := s.repo.ChecklistAssignments.Get(ctx, companyID, id)
	if err != nil {
		return AssignmentView{}, notFound("Assignment", err)
	}
	return view(a), nil
}

// refresh re-derives status and completedAt from the items.
func refresh(a *datatypes.ChecklistAssignment, now time.Time) {
	a.Status = rules.ChecklistStatus(a.Items)
	if a.Status != datatypes.ChecklistCompleted {
		a.CompletedAt = nil
		return
	}
	if a.CompletedAt == nil {
		a.CompletedAt = datatypes.TimePtr(now)
	}
}

// ToggleItem sets one item's completion. A nil completed flips the
// current state. notes, when non-empty, replaces the item's notes.
func (s *Service) ToggleItem(ctx context.Context, companyID, assignmentID, itemID string, completed *bool, userID, notes string) (*datatypes.ChecklistAssignment, error) {
	now := s.repo.Now()
	a, err := s.repo.ChecklistAssignments.Update(ctx, companyID, assignmentID, func(a *datatypes.ChecklistAssignment) error {
		idx := -1
		for i := range a.Items {
			if a.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return datatypes.NotFound("Item")
		}
		it := &a.Items[idx]
		done := !it.Completed
		if completed != nil {
			done = *completed
		}
		it.Completed = done
		if done {
			it.CompletedAt = datatypes.TimePtr(now)
			it.CompletedBy = userID
		} else {
			it.CompletedAt = nil
			it.CompletedBy = ""
		}
		if notes != "" {
			it.Notes = notes
		}
		refresh(a, now)
		return nil
	})
	if err != nil {
		return nil, notFound("Assignment", err)
	}
	return a, nil
}

// AddNote appends a note to an assignment and returns all its notes.
func (s *Service) AddNote(ctx context.Context, companyID, id, userID, content string) ([]datatypes.Note, error) {
	note := datatypes.Note{Content: strings.TrimSpace(content), CreatedBy: userID, CreatedAt: s.repo.Now()}
	if err := datatypes.Validate(&note); err != nil {
		return nil, err
	}
	a, err := s.repo.ChecklistAssignments.Update(ctx, companyID, id, func(a *datatypes.ChecklistAssignment) error {
		a.Notes = append(a.Notes, note)
		return nil
	})
	if err != nil {
		return nil, notFound("Assignment", err)
	}
	return a.Notes, nil
}

// DeleteAssignment removes an assignment.
func (s *Service) DeleteAssignment(ctx context.Context, companyID, id string) error {
	return notFound("Assignment", s.repo.ChecklistAssignments.Delete(ctx, companyID, id))
}

// AssignmentFilter selects assignments for ListAssignments.
type AssignmentFilter struct {
	Status       string
	AssignedType string
	AssignedID   string
	TemplateID   string
	Page         int
	Limit        int
}

func (f AssignmentFilter) match(a *datatypes.ChecklistAssignment) bool {
	if f.Status != "" && string(a.Status) != f.Status {
		return false
	}
	if f.AssignedType != "" && a.AssignedTo.Type != f.AssignedType {
		return false
	}
	if f.AssignedID != "" && a.AssignedTo.RefID != f.AssignedID {
		return false
	}
	return f.TemplateID == "" || a.TemplateID == f.TemplateID
}

// AssignmentView is an assignment with its computed progress.
type AssignmentView struct {
	*datatypes.ChecklistAssignment
	Progress datatypes.ChecklistProgress `json:"progress"`
}

func view(a *datatypes.ChecklistAssignment) AssignmentView {
	return AssignmentView{ChecklistAssignment: a, Progress: rules.ChecklistProgress(a.Items)}
}

// ListAssignments returns matching assignments, newest first.
func (s *Service) ListAssignments(ctx context.Context, companyID string, f AssignmentFilter) (datatypes.Page[AssignmentView], error) {
	list, err := s.repo.ChecklistAssignments.List(ctx, companyID, f.match)
	if err != nil {
		return datatypes.Page[AssignmentView]{}, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	views := make([]AssignmentView, len(list))
	for i, a := range list {
		views[i] = view(a)
	}
	return storage.Paginate(views, f.Page, f.Limit), nil
}

// AssignmentStats counts assignments by status.
type AssignmentStats struct {
	Total      int `json:"total"`
	NotStarted int `json:"notStarted"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Overdue    int `json:"overdue"`
}

// Stats summarises a company's assignments. Overdue counts open
// assignments whose due date has passed.
func (s *Service) Stats(ctx context.Context, companyID string) (AssignmentStats, error) {
	list, err := s.repo.ChecklistAssignments.List(ctx, companyID, nil)
	if err != nil {
		return AssignmentStats{}, err
	}
	now := s.repo.Now()
	var st AssignmentStats
	for _, a := range list {
		st.Total++
		switch a.Status {
		case datatypes.ChecklistNotStarted:
			st.NotStarted++
		case datatypes.ChecklistInProgress:
			st.InProgress++
		case datatypes.ChecklistCompleted:
			st.Completed++
		}
		if a.Status != datatypes.ChecklistCompleted && a.DueDate != nil && a.DueDate.Before(now) {
			st.Overdue++
		}
	}
	return st, nil
}
