// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retention

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/audit"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

var now = time.Date(2025, 6, 18, 3, 0, 0, 0, time.UTC)

type recordingAudit struct {
	extensions.NopAuditLogger
	events []extensions.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, e extensions.AuditEvent) error {
	r.events = append(r.events, e)
	return nil
}

func newRepo(t *testing.T) *storage.Repository {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return storage.NewRepository(db, func() time.Time { return now })
}

func TestPurger_Run(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	for i, age := range []int{audit.RetentionDays + 1, audit.RetentionDays + 30, audit.RetentionDays - 1, 10} {
		require.NoError(t, repo.AuditRecords.Put(ctx, &datatypes.AuditRecord{
			Base:      datatypes.Base{CompanyID: "c1"},
			Sequence:  uint64(i + 1),
			Action:    "update",
			Timestamp: now.AddDate(0, 0, -age),
		}))
	}

	past := now.Add(-time.Hour)
	future := now.AddDate(1, 0, 0)
	drivers := []*datatypes.Driver{
		{Base: datatypes.Base{ID: "expired", CompanyID: "c1"}, FirstName: "A", LastName: "A", IsArchived: true, RetentionExpiresAt: &past},
		{Base: datatypes.Base{ID: "expired-2", CompanyID: "c2"}, FirstName: "B", LastName: "B", IsArchived: true, RetentionExpiresAt: &now},
		{Base: datatypes.Base{ID: "retained", CompanyID: "c1"}, FirstName: "C", LastName: "C", IsArchived: true, RetentionExpiresAt: &future},
		{Base: datatypes.Base{ID: "restored", CompanyID: "c1"}, FirstName: "D", LastName: "D", RetentionExpiresAt: &past},
		{Base: datatypes.Base{ID: "active", CompanyID: "c1"}, FirstName: "E", LastName: "E"},
	}
	for _, d := range drivers {
		require.NoError(t, repo.Drivers.Put(ctx, d))
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	rec := &recordingAudit{}

	result, err := NewPurger(repo, rec, metrics).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AuditFound)
	assert.Equal(t, 2, result.AuditDeleted)
	assert.Equal(t, 2, result.DriversFound)
	assert.Equal(t, 2, result.DriversDeleted)
	assert.Empty(t, result.Errors)
	assert.Equal(t, now, result.StartTime)

	left, err := repo.AuditRecords.ListAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, left, 2)

	remaining, err := repo.Drivers.ListAll(ctx, nil)
	require.NoError(t, err)
	ids := make([]string, 0, len(remaining))
	for _, d := range remaining {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"retained", "restored", "active"}, ids)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RetentionPurgedTotal.WithLabelValues("audit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RetentionPurgedTotal.WithLabelValues("driver")))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "purge", rec.events[0].Action)
	assert.Equal(t, "retention", rec.events[0].ResourceType)
	assert.Equal(t, 2, rec.events[0].Metadata["driversDeleted"])
}

func TestPurger_NothingExpired(t *testing.T) {
	repo := newRepo(t)
	result, err := NewPurger(repo, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.AuditFound)
	assert.Zero(t, result.DriversFound)
	assert.Zero(t, result.Duration())
}

func TestPurger_CancelledContext(t *testing.T) {
	repo := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPurger(repo, nil, nil).Run(ctx)
	assert.Error(t, err)
}
