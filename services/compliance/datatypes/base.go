// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the persisted records and request payloads of
// the VroomX compliance service.
//
// Every persisted record embeds Base, which carries the identifier, the
// owning company and the write timestamps. Records serialise to JSON with
// camelCase field names; that JSON is both the wire format of the REST API
// and the value format in BadgerDB.
//
// Enumerated fields are typed strings validated through the shared
// validator instance (see validate.go) with oneof tags.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Base Record
// =============================================================================

// Base holds the fields shared by every stored record.
type Base struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GetID returns the record identifier.
func (b *Base) GetID() string { return b.ID }

// GetCompanyID returns the owning company.
func (b *Base) GetCompanyID() string { return b.CompanyID }

// Touch assigns an ID on first save and maintains the timestamps.
func (b *Base) Touch(now time.Time) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Note is a free-text annotation on a record.
type Note struct {
	Content   string    `json:"content" validate:"required"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryEntry is one step in a record's audit trail.
type HistoryEntry struct {
	Action string    `json:"action"`
	Date   time.Time `json:"date"`
	UserID string    `json:"userId,omitempty"`
	Notes  string    `json:"notes,omitempty"`
}

// LinkRef points from one record to another by type and ID.
type LinkRef struct {
	Type    string `json:"type" validate:"omitempty,oneof=driver vehicle violation document audit company none"`
	RefID   string `json:"refId,omitempty"`
	RefName string `json:"refName,omitempty"`
}

// TimePtr returns a pointer to t. Convenience for optional date fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// Page is a paginated list response.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}
