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
	"github.com/AleutianAI/vroomx/services/compliance/checklists"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
)

// ToggleRequest sets or flips one checklist item.
type ToggleRequest struct {
	Completed *bool  `json:"completed,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// =============================================================================
// Templates
// =============================================================================

// ListTemplates lists active templates, filtered by category and search.
func ListTemplates(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ts, err := svc.ListTemplates(c.Request.Context(), companyID(c), c.Query("category"), c.Query("search"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"templates": ts, "count": len(ts)})
	}
}

// GetTemplate returns one template.
func GetTemplate(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.GetTemplate(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"template": t})
	}
}

// CreateTemplate stores a template.
func CreateTemplate(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var t datatypes.ChecklistTemplate
		if err := c.ShouldBindJSON(&t); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		created, err := svc.CreateTemplate(c.Request.Context(), companyID(c), userID(c), &t)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "checklist_template", created.ID, map[string]any{"name": created.Name})
		ok(c, http.StatusCreated, gin.H{"template": created})
	}
}

// UpdateTemplate applies a partial update.
func UpdateTemplate(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch checklists.TemplatePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		t, err := svc.UpdateTemplate(c.Request.Context(), companyID(c), c.Param("id"), patch)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "update", "checklist_template", t.ID, nil)
		ok(c, http.StatusOK, gin.H{"template": t})
	}
}

// DeleteTemplate deactivates a template. Existing assignments keep their
// copied items.
func DeleteTemplate(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.DeleteTemplate(c.Request.Context(), companyID(c), id); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "delete", "checklist_template", id, nil)
		ok(c, http.StatusOK, gin.H{"message": "Template deleted"})
	}
}

// SeedTemplates installs the default templates for the company.
func SeedTemplates(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.SeedDefaults(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "checklist_template", "", map[string]any{"seeded": n})
		ok(c, http.StatusOK, gin.H{"created": n})
	}
}

// =============================================================================
// Assignments
// =============================================================================

// ListAssignments lists assignments newest first, filtered by status,
// assignedType, assignedId and templateId.
func ListAssignments(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		p, err := svc.ListAssignments(c.Request.Context(), companyID(c), checklists.AssignmentFilter{
			Status:       c.Query("status"),
			AssignedType: c.Query("assignedType"),
			AssignedID:   c.Query("assignedId"),
			TemplateID:   c.Query("templateId"),
			Page:         page,
			Limit:        limit,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageBody("assignments", p))
	}
}

// GetAssignment returns one assignment with its progress.
func GetAssignment(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.GetAssignment(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"assignment": a})
	}
}

// AssignChecklist instantiates a template.
func AssignChecklist(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req checklists.AssignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		a, err := svc.Assign(c.Request.Context(), companyID(c), userID(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "create", "checklist_assignment", a.ID, map[string]any{"templateId": a.TemplateID})
		ok(c, http.StatusCreated, gin.H{"assignment": a})
	}
}

// ToggleChecklistItem sets or flips one item and returns the assignment
// with its progress.
func ToggleChecklistItem(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ToggleRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, datatypes.BadRequest("Invalid request body: %v", err))
				return
			}
		}
		a, err := svc.ToggleItem(c.Request.Context(), companyID(c), c.Param("id"), c.Param("itemId"), req.Completed, userID(c), req.Notes)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"assignment": a,
			"progress":   rules.ChecklistProgress(a.Items),
		})
	}
}

// AddAssignmentNote appends a note to an assignment.
func AddAssignmentNote(svc *checklists.Service) gin.HandlerFunc {
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

// DeleteAssignment removes an assignment.
func DeleteAssignment(svc *checklists.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.DeleteAssignment(c.Request.Context(), companyID(c), id); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "delete", "checklist_assignment", id, nil)
		ok(c, http.StatusOK, gin.H{"message": "Assignment deleted"})
	}
}

// ChecklistStats counts assignments by status.
func ChecklistStats(svc *checklists.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"stats": stats})
	}
}
