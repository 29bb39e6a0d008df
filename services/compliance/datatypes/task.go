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

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOverdue    TaskStatus = "overdue"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task sources.
const (
	SourceManual         = "manual"
	SourceAutoCompliance = "auto_compliance"
)

// Recurrence re-creates a task after completion.
type Recurrence struct {
	Enabled      bool `json:"enabled"`
	IntervalDays int  `json:"intervalDays,omitempty" validate:"min=0"`
}

// Task is a compliance to-do item.
type Task struct {
	Base
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"dueDate" validate:"required"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	Status      TaskStatus `json:"status" validate:"omitempty,oneof=not_started in_progress completed overdue"`
	Category    string     `json:"category" validate:"omitempty,oneof=general expiring_doc missing_dqf violation maintenance onboarding"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	Source      string     `json:"source" validate:"omitempty,oneof=manual auto_compliance"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	LinkedTo    LinkRef    `json:"linkedTo"`

	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CompletedBy     string     `json:"completedBy,omitempty"`
	CompletionNotes string     `json:"completionNotes,omitempty"`

	Notes        []Note     `json:"notes,omitempty"`
	Recurring    Recurrence `json:"recurring"`
	ParentTaskID string     `json:"parentTaskId,omitempty"`
}
