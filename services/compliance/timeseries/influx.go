// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package timeseries publishes compliance scores to InfluxDB.
package timeseries

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// Measurement is the InfluxDB measurement scores are written to.
const Measurement = "compliance_score"

// InfluxSink writes one point per calculated score.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxSink connects to url and writes into org/bucket.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	slog.Info("InfluxDB score sink configured", "influx_url", url, "influx_org", org, "influx_bucket", bucket)
	return &InfluxSink{client: client, writeAPI: client.WriteAPIBlocking(org, bucket)}
}

// NewInfluxSinkWithAPI wraps an existing write API.
func NewInfluxSinkWithAPI(w api.WriteAPIBlocking) *InfluxSink {
	return &InfluxSink{writeAPI: w}
}

// WriteScore implements scoring.Sink.
func (s *InfluxSink) WriteScore(ctx context.Context, score *datatypes.ComplianceScore) error {
	if err := s.writeAPI.WritePoint(ctx, ScorePoint(score)); err != nil {
		return fmt.Errorf("write score point: %w", err)
	}
	return nil
}

// Ping reports whether the server is healthy.
func (s *InfluxSink) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	health, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb unhealthy: %s", msg)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// ScorePoint converts a score into a point tagged by company and trend.
func ScorePoint(score *datatypes.ComplianceScore) *write.Point {
	c := score.Components
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{
			"company_id": score.CompanyID,
			"trend":      score.Trend,
		},
		map[string]interface{}{
			"overall":            score.OverallScore,
			"change":             score.Change,
			"document_status":    c.DocumentStatus.Score,
			"violations":         c.Violations.Score,
			"drug_alcohol":       c.DrugAlcohol.Score,
			"dqf_completeness":   c.DQFCompleteness.Score,
			"vehicle_inspection": c.VehicleInspection.Score,
			"total_drivers":      score.Metrics.TotalDrivers,
			"total_vehicles":     score.Metrics.TotalVehicles,
			"active_violations":  score.Metrics.ActiveViolations,
		},
		score.Date,
	)
}
