// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retention purges records past their retention period.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// PurgeError describes a record that could not be removed.
type PurgeError struct {
	Kind      string `json:"kind"`
	CompanyID string `json:"companyId"`
	ID        string `json:"id"`
	Reason    string `json:"reason"`
}

// PurgeResult summarises one purge run.
type PurgeResult struct {
	StartTime      time.Time    `json:"startTime"`
	EndTime        time.Time    `json:"endTime"`
	AuditFound     int          `json:"auditFound"`
	AuditDeleted   int          `json:"auditDeleted"`
	DriversFound   int          `json:"driversFound"`
	DriversDeleted int          `json:"driversDeleted"`
	Errors         []PurgeError `json:"errors,omitempty"`
}

// Duration returns how long the run took.
func (r *PurgeResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Purger deletes expired audit records and archived drivers whose retention
// period has passed.
//
// # Thread Safety
//
// Purger holds no state of its own; concurrent runs may double count
// records found by both but never delete a record twice.
type Purger struct {
	repo    *storage.Repository
	audit   extensions.AuditLogger
	metrics *observability.Metrics
}

// NewPurger creates a Purger. audit and metrics may be nil.
func NewPurger(repo *storage.Repository, auditLog extensions.AuditLogger, metrics *observability.Metrics) *Purger {
	if auditLog == nil {
		auditLog = &extensions.NopAuditLogger{}
	}
	return &Purger{repo: repo, audit: auditLog, metrics: metrics}
}

// Run performs one purge cycle.
//
// Description:
//
//	Audit records older than audit.RetentionDays are removed first, then
//	archived drivers whose retentionExpiresAt has passed. A record that
//	fails to delete is reported in Errors and the run continues. The
//	result is written to the audit log as a purge event.
//
// Outputs:
//
//	PurgeResult - Counts and per-record failures.
//	error - Non-nil only if a collection could not be scanned.
func (p *Purger) Run(ctx context.Context) (PurgeResult, error) {
	now := p.repo.Now()
	result := PurgeResult{StartTime: now, Errors: make([]PurgeError, 0)}

	cutoff := now.AddDate(0, 0, -audit.RetentionDays)
	expired, err := p.repo.AuditRecords.ListAll(ctx, func(r *datatypes.AuditRecord) bool {
		return r.Timestamp.Before(cutoff)
	})
	if err != nil {
		return result, fmt.Errorf("failed to query expired audit records: %w", err)
	}
	result.AuditFound = len(expired)
	for _, r := range expired {
		if err := p.repo.AuditRecords.Delete(ctx, r.CompanyID, r.ID); err != nil {
			result.Errors = append(result.Errors, PurgeError{Kind: "audit", CompanyID: r.CompanyID, ID: r.ID, Reason: err.Error()})
			continue
		}
		result.AuditDeleted++
	}

	drivers, err := p.repo.Drivers.ListAll(ctx, func(d *datatypes.Driver) bool {
		return d.IsArchived && d.RetentionExpiresAt != nil && !d.RetentionExpiresAt.After(now)
	})
	if err != nil {
		return result, fmt.Errorf("failed to query expired drivers: %w", err)
	}
	result.DriversFound = len(drivers)
	for _, d := range drivers {
		if err := p.repo.Drivers.Delete(ctx, d.CompanyID, d.ID); err != nil {
			result.Errors = append(result.Errors, PurgeError{Kind: "driver", CompanyID: d.CompanyID, ID: d.ID, Reason: err.Error()})
			continue
		}
		result.DriversDeleted++
	}

	result.EndTime = p.repo.Now()
	p.metrics.RecordPurged("audit", result.AuditDeleted)
	p.metrics.RecordPurged("driver", result.DriversDeleted)

	if result.AuditFound > 0 || result.DriversFound > 0 {
		slog.Info("Retention purge completed",
			"audit_found", result.AuditFound,
			"audit_deleted", result.AuditDeleted,
			"drivers_found", result.DriversFound,
			"drivers_deleted", result.DriversDeleted,
			"errors", len(result.Errors),
		)
	} else {
		slog.Debug("Retention purge completed (nothing expired)")
	}

	if err := p.audit.Log(ctx, extensions.AuditEvent{
		Action:       "purge",
		ResourceType: "retention",
		UserID:       "system",
		Timestamp:    result.EndTime,
		Metadata: map[string]any{
			"auditFound":     result.AuditFound,
			"auditDeleted":   result.AuditDeleted,
			"driversFound":   result.DriversFound,
			"driversDeleted": result.DriversDeleted,
			"errorCount":     len(result.Errors),
			"durationMs":     result.Duration().Milliseconds(),
		},
	}); err != nil {
		slog.Warn("Failed to audit retention purge", "error", err)
	}
	return result, nil
}

// Purge runs one cycle and discards the result. It lets the scheduler
// drive the purger.
func (p *Purger) Purge(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}
