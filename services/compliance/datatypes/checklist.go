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

// ChecklistStatus is the progress state of an assignment.
type ChecklistStatus string

const (
	ChecklistNotStarted ChecklistStatus = "not_started"
	ChecklistInProgress ChecklistStatus = "in_progress"
	ChecklistCompleted  ChecklistStatus = "completed"
)

// TemplateItem is one step in a checklist template.
type TemplateItem struct {
	ID             string `json:"id"`
	Title          string `json:"title" validate:"required"`
	Description    string `json:"description,omitempty"`
	Order          int    `json:"order"`
	Required       bool   `json:"required"`
	DaysToComplete int    `json:"daysToComplete,omitempty" validate:"min=0"`
}

// ChecklistTemplate is a reusable list of steps.
type ChecklistTemplate struct {
	Base
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category" validate:"required,oneof=onboarding audit maintenance file_review custom"`
	Items       []TemplateItem `json:"items" validate:"dive"`
	IsActive    bool           `json:"isActive"`
	CreatedBy   string         `json:"createdBy,omitempty"`
}

// AssignmentItem is a template item instantiated for one assignment.
type AssignmentItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Required    bool       `json:"required"`
	Order       int        `json:"order"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy string     `json:"completedBy,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// ChecklistAssignment is a template applied to a driver, vehicle or
// company.
type ChecklistAssignment struct {
	Base
	TemplateID   string           `json:"templateId" validate:"required"`
	TemplateName string           `json:"templateName"`
	AssignedTo   LinkRef          `json:"assignedTo"`
	DueDate      *time.Time       `json:"dueDate,omitempty"`
	Status       ChecklistStatus  `json:"status"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
	Items        []AssignmentItem `json:"items"`
	Notes        []Note           `json:"notes,omitempty"`
	CreatedBy    string           `json:"createdBy,omitempty"`
}

// ChecklistProgress summarises item completion.
type ChecklistProgress struct {
	Percent           int `json:"percent"`
	RequiredPercent   int `json:"requiredPercent"`
	Total             int `json:"total"`
	Completed         int `json:"completed"`
	RequiredTotal     int `json:"requiredTotal"`
	RequiredCompleted int `json:"requiredCompleted"`
}
