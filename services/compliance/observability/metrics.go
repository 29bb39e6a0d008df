// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the compliance
// service.
//
// # Description
//
// Metrics cover three areas:
//   - HTTP traffic (request counts and latency by route)
//   - Domain events (DataQ transitions, generated tasks, Clearinghouse syncs)
//   - Background work (job runs, retention purges, the company score gauge)
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint through promhttp.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *Metrics, so components built
// without metrics need no guards.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "vroomx"

// Metrics holds every Prometheus collector of the service.
type Metrics struct {
	// HTTPRequestsTotal counts requests.
	// Labels: route (gin full path), method, status (HTTP code)
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration measures handler latency.
	// Labels: route, method
	HTTPRequestDuration *prometheus.HistogramVec

	// ComplianceScore is the latest overall score per company.
	// Labels: company
	ComplianceScore *prometheus.GaugeVec

	// JobRunsTotal counts scheduler runs.
	// Labels: job, status (success, error)
	JobRunsTotal *prometheus.CounterVec

	// JobDuration measures scheduler run time.
	// Labels: job
	JobDuration *prometheus.HistogramVec

	// DataQTransitionsTotal counts challenge status changes.
	// Labels: status (pending, under_review, accepted, denied, withdrawn)
	DataQTransitionsTotal *prometheus.CounterVec

	// TasksGeneratedTotal counts tasks created by the auto generator.
	TasksGeneratedTotal prometheus.Counter

	// ClearinghouseSyncTotal counts driver syncs.
	// Labels: outcome (applied, skipped_older, driver_missing, error)
	ClearinghouseSyncTotal *prometheus.CounterVec

	// RetentionPurgedTotal counts records removed by retention.
	// Labels: kind (audit, driver)
	RetentionPurgedTotal *prometheus.CounterVec
}

// DefaultMetrics is the process-wide instance registered with the default
// Prometheus registry. Initialized by InitMetrics().
var DefaultMetrics *Metrics

var initOnce sync.Once

// InitMetrics registers the collectors with the default registry once and
// returns DefaultMetrics. Later calls return the same instance.
func InitMetrics() *Metrics {
	initOnce.Do(func() {
		DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return DefaultMetrics
}

// NewMetrics creates collectors registered with reg.
//
// # Description
//
// Tests pass a fresh prometheus.NewRegistry() to stay isolated from the
// default registry.
//
// # Limitations
//
//   - Panics if the same registry already holds these collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP handler latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		),

		ComplianceScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "compliance_score",
				Help:      "Latest overall compliance score per company",
			},
			[]string{"company"},
		),

		JobRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "job_runs_total",
				Help:      "Total background job runs by job and status",
			},
			[]string{"job", "status"},
		),

		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "job_duration_seconds",
				Help:      "Background job duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"job"},
		),

		DataQTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dataq_transitions_total",
				Help:      "DataQ challenge status transitions",
			},
			[]string{"status"},
		),

		TasksGeneratedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_generated_total",
				Help:      "Compliance tasks created by the auto generator",
			},
		),

		ClearinghouseSyncTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "clearinghouse_sync_total",
				Help:      "Clearinghouse query to driver syncs by outcome",
			},
			[]string{"outcome"},
		),

		RetentionPurgedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retention_purged_total",
				Help:      "Records removed by the retention purge",
			},
			[]string{"kind"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Clearinghouse sync outcomes.
const (
	SyncApplied       = "applied"
	SyncSkippedOlder  = "skipped_older"
	SyncDriverMissing = "driver_missing"
	SyncError         = "error"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordHTTP records one handled request.
func (m *Metrics) RecordHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// SetScore updates the company score gauge.
func (m *Metrics) SetScore(companyID string, score int) {
	if m == nil {
		return
	}
	m.ComplianceScore.WithLabelValues(companyID).Set(float64(score))
}

// RecordJob records a finished job run.
func (m *Metrics) RecordJob(job string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(seconds)
}

// RecordDataQTransition counts a challenge moving to status.
func (m *Metrics) RecordDataQTransition(status string) {
	if m == nil {
		return
	}
	m.DataQTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordTasksGenerated adds n auto-generated tasks.
func (m *Metrics) RecordTasksGenerated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TasksGeneratedTotal.Add(float64(n))
}

// RecordClearinghouseSync counts one sync by outcome.
func (m *Metrics) RecordClearinghouseSync(outcome string) {
	if m == nil {
		return
	}
	m.ClearinghouseSyncTotal.WithLabelValues(outcome).Inc()
}

// RecordPurged adds n purged records of kind.
func (m *Metrics) RecordPurged(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionPurgedTotal.WithLabelValues(kind).Add(float64(n))
}
