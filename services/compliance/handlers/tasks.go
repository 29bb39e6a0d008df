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
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/tasks"
)

// NoteRequest is the body of the note endpoints.
type NoteRequest struct {
	Content string `json:"content" validate:"required"`
}

// CompleteRequest carries optional completion notes.
type CompleteRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ListTasks lists tasks by due date. Filters: status, priority, category,
// assignedTo, linkedType, linkedId, search, dueBefore and dueAfter.
func ListTasks(svc *tasks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		before, err := queryDate(c, "dueBefore")
		if err != nil {
			fail(c, err)
			return
		}
		after, err := queryDate(c, "dueAfter")
		if err != nil {
			fail(c, err)
			return
		}
		page, limit := pageParams(c)
		p, err := svc.List(c.Request.Context(), companyID(c), tasks.Filter{
			Status:     c.Query("status"),
			Priority:   c.Query("priority"),
			Category:   c.Query("category"),
			AssignedTo: c.Query("assignedTo"),
			LinkedType: c.Query("linkedType"),
			LinkedID:   c.Query("linkedId"),
			Search:     c.Query("search"),
			DueBefore:  before,
			DueAfter:   after,
			Page:       page,
			Limit:      limit,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageBody("tasks", p))
	}
}

// TaskStats counts tasks by status.
func TaskStats(svc *tasks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"stats": stats})
	}
}

// OverdueTasks lists open tasks past their due date.
func OverdueTasks(svc *tasks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts, err := svc.Overdue(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"tasks": ts, "count": len(ts)})
	}
}

// GetTask returns one task.
func GetTask(svc *tasks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"task": t})
	}
}

// CreateTask stores a manual task.
func CreateTask(svc *tasks.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var t datatypes.Task
		if err := c.ShouldBindJSON(&t); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		created, err := svc.Create(c.Request.Context(), companyID(c), userID(c), &t)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "task", created.ID, map[string]any{"title": created.Title})
		ok(c, http.StatusCreated, gin.H{"task": created})
	}
}

// UpdateTask applies a partial update.
func UpdateTask(svc *tasks.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch tasks.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		t, err := svc.Update(c.Request.Context(), companyID(c), c.Param("id"), patch)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "update", "task", t.ID, nil)
		ok(c, http.StatusOK, gin.H{"task": t})
	}
}

// CompleteTask completes a task. A recurring task returns its next
// instance as "nextTask".
func CompleteTask(svc *tasks.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CompleteRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, datatypes.BadRequest("Invalid request body: %v", err))
				return
			}
		}
		t, next, err := svc.Complete(c.Request.Context(), companyID(c), c.Param("id"), userID(c), req.Notes)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "complete", "task", t.ID, nil)
		body := gin.H{"task": t}
		if next != nil {
			body["nextTask"] = next
		}
		ok(c, http.StatusOK, body)
	}
}

// ReopenTask moves a completed task back to in_progress.
func ReopenTask(svc *tasks.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.Reopen(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "reopen", "task", t.ID, nil)
		ok(c, http.StatusOK, gin.H{"task": t})
	}
}

// AddTaskNote appends a note.
func AddTaskNote(svc *tasks.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req NoteRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		notes, err := svc.AddNote(c.Request.Context(), companyID(c), c.Param("id"), userID(c), req.Content)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"notes": notes})
	}
}

// DeleteTask removes a task.
func DeleteTask(svc *tasks.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.Delete(c.Request.Context(), companyID(c), id); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "delete", "task", id, nil)
		ok(c, http.StatusOK, gin.H{"message": "Task deleted"})
	}
}
