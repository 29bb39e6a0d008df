// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a Metrics instance on an isolated registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestRecordHTTP(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTP("/v1/drivers", "GET", "200", 0.02)
	m.RecordHTTP("/v1/drivers", "GET", "200", 0.03)
	m.RecordHTTP("/v1/drivers", "POST", "400", 0.01)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/v1/drivers", "GET", "200")); got != 2 {
		t.Errorf("GET 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/v1/drivers", "POST", "400")); got != 1 {
		t.Errorf("POST 400 count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.HTTPRequestDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestSetScore(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetScore("c1", 81)
	m.SetScore("c1", 77)

	if got := testutil.ToFloat64(m.ComplianceScore.WithLabelValues("c1")); got != 77 {
		t.Errorf("score gauge = %v, want 77", got)
	}
}

func TestRecordJob(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordJob("retention", 1.5, nil)
	m.RecordJob("retention", 0.5, errors.New("disk full"))

	if got := testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("retention", "success")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("retention", "error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

func TestDomainCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordDataQTransition("denied")
	m.RecordTasksGenerated(4)
	m.RecordTasksGenerated(0)
	m.RecordClearinghouseSync(SyncApplied)
	m.RecordClearinghouseSync(SyncSkippedOlder)
	m.RecordPurged("audit", 12)
	m.RecordPurged("driver", 0)

	if got := testutil.ToFloat64(m.DataQTransitionsTotal.WithLabelValues("denied")); got != 1 {
		t.Errorf("denied transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TasksGeneratedTotal); got != 4 {
		t.Errorf("tasks generated = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.ClearinghouseSyncTotal.WithLabelValues(SyncApplied)); got != 1 {
		t.Errorf("applied syncs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RetentionPurgedTotal.WithLabelValues("audit")); got != 12 {
		t.Errorf("audit purged = %v, want 12", got)
	}
	if n := testutil.CollectAndCount(m.RetentionPurgedTotal); n != 1 {
		t.Errorf("purge series = %d, want 1 (zero adds create no series)", n)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.RecordHTTP("/", "GET", "200", 0)
	m.SetScore("c", 1)
	m.RecordJob("j", 0, nil)
	m.RecordDataQTransition("pending")
	m.RecordTasksGenerated(1)
	m.RecordClearinghouseSync(SyncError)
	m.RecordPurged("audit", 1)
}

func TestInitMetrics_Idempotent(t *testing.T) {
	first := InitMetrics()
	second := InitMetrics()
	if first != second {
		t.Error("InitMetrics must return the same instance")
	}
	if DefaultMetrics != first {
		t.Error("DefaultMetrics not set")
	}
}

func TestMetricNamesUseNamespace(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordTasksGenerated(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "vroomx_tasks_generated_total" {
			found = true
		}
	}
	if !found {
		t.Error("vroomx_tasks_generated_total not registered")
	}
}
