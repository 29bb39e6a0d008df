// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent is one security- or compliance-relevant action.
//
// Example:
//
//	logger.Log(ctx, AuditEvent{
//	    Action:       "update",
//	    ResourceType: "violation",
//	    ResourceID:   v.ID,
//	    UserID:       user.UserID,
//	    CompanyID:    user.CompanyID,
//	    Metadata:     map[string]any{"dataq_status": "denied"},
//	})
type AuditEvent struct {
	// Action is one of create, update, delete, login, logout,
	// password_change, role_change, invite, export, upload, purge.
	Action string

	// ResourceType is the record kind: driver, vehicle, violation,
	// document, drug_alcohol_test, accident, checklist, task, user,
	// company, clearinghouse_query, retention.
	ResourceType string

	// ResourceID is the specific record (optional).
	ResourceID string

	// UserID identifies who performed the action. "system" for jobs.
	UserID string

	// UserEmail is recorded alongside the ID so the entry stays readable
	// after the user is removed.
	UserEmail string

	// CompanyID scopes the event to a tenant. Empty for system-wide events.
	CompanyID string

	// IPAddress is the client address for request-driven events.
	IPAddress string

	// Timestamp is when the event occurred (UTC). Zero means "now".
	Timestamp time.Time

	// Metadata holds event-specific details.
	Metadata map[string]any
}

// AuditFilter narrows an audit query. Zero fields do not filter.
type AuditFilter struct {
	CompanyID    string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string

	// StartTime is inclusive, EndTime exclusive.
	StartTime time.Time
	EndTime   time.Time

	// Limit caps the result count. Zero uses the implementation default.
	Limit int

	// Offset skips results for pagination.
	Offset int
}

// AuditLogger records and retrieves audit events.
//
// Thread Safety: Implementations must be safe for concurrent use.
type AuditLogger interface {
	// Log records an event. Callers treat failures as non-fatal.
	Log(ctx context.Context, event AuditEvent) error

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists any buffered events. Called on shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
