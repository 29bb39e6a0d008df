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
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
)

// GetMaintenance returns the current maintenance state.
func GetMaintenance(m *middleware.Maintenance) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"maintenance": m.State()})
	}
}

// SetMaintenance writes the maintenance file. The change applies at once
// and survives restarts.
func SetMaintenance(m *middleware.Maintenance, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var state middleware.MaintenanceState
		if err := c.ShouldBindJSON(&state); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		if err := m.Write(state); err != nil {
			fail(c, datatypes.NewAppError(http.StatusConflict, "%v", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "maintenance", "", map[string]any{"enabled": state.Enabled})
		ok(c, http.StatusOK, gin.H{"maintenance": m.State()})
	}
}
