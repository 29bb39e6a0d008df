// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package timeseries

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// --- Mock InfluxDB WriteAPI ---

type MockWriteAPI struct {
	WritePointFunc func(ctx context.Context, point ...*write.Point) error
	WrittenPoints  []*write.Point
}

func (m *MockWriteAPI) WritePoint(ctx context.Context, point ...*write.Point) error {
	m.WrittenPoints = append(m.WrittenPoints, point...)
	if m.WritePointFunc != nil {
		return m.WritePointFunc(ctx, point...)
	}
	return nil
}

func (m *MockWriteAPI) WriteRecord(ctx context.Context, line ...string) error { return nil }
func (m *MockWriteAPI) EnableBatching()                                       {}
func (m *MockWriteAPI) Flush(ctx context.Context) error                       { return nil }

func sampleScore() *datatypes.ComplianceScore {
	s := &datatypes.ComplianceScore{
		Date:         time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		OverallScore: 87,
		Change:       -3,
		Trend:        datatypes.TrendDeclining,
		Components: datatypes.ScoreComponents{
			DocumentStatus:    datatypes.ScoreComponent{Score: 90},
			Violations:        datatypes.ScoreComponent{Score: 80},
			DrugAlcohol:       datatypes.ScoreComponent{Score: 100},
			DQFCompleteness:   datatypes.ScoreComponent{Score: 85},
			VehicleInspection: datatypes.ScoreComponent{Score: 75},
		},
		Metrics: datatypes.ScoreMetrics{TotalDrivers: 12, TotalVehicles: 9, ActiveViolations: 2},
	}
	s.CompanyID = "c1"
	return s
}

func TestScorePoint(t *testing.T) {
	p := ScorePoint(sampleScore())

	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"company_id": "c1", "trend": "declining"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, int64(87), fields["overall"])
	assert.Equal(t, int64(-3), fields["change"])
	assert.Equal(t, int64(75), fields["vehicle_inspection"])
	assert.Equal(t, int64(12), fields["total_drivers"])
	assert.Len(t, fields, 10)
}

func TestInfluxSink_WriteScore(t *testing.T) {
	mock := &MockWriteAPI{}
	sink := NewInfluxSinkWithAPI(mock)

	require.NoError(t, sink.WriteScore(context.Background(), sampleScore()))
	require.Len(t, mock.WrittenPoints, 1)
	assert.Equal(t, Measurement, mock.WrittenPoints[0].Name())

	mock.WritePointFunc = func(context.Context, ...*write.Point) error { return errors.New("bucket not found") }
	err := sink.WriteScore(context.Background(), sampleScore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")
}

func TestInfluxSink_HTTP(t *testing.T) {
	var body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/write":
			assert.Equal(t, "vroomx", r.URL.Query().Get("org"))
			assert.Equal(t, "scores", r.URL.Query().Get("bucket"))
			buf := new(strings.Builder)
			_, _ = io.Copy(buf, r.Body)
			body = buf.String()
			w.WriteHeader(http.StatusNoContent)
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"influxdb","status":"pass"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	sink := NewInfluxSink(server.URL, "token", "vroomx", "scores")
	defer sink.Close()

	require.NoError(t, sink.Ping(context.Background()))
	require.NoError(t, sink.WriteScore(context.Background(), sampleScore()))
	assert.True(t, strings.HasPrefix(body, "compliance_score,company_id=c1,trend=declining "), body)
	assert.Contains(t, body, "overall=87i")
}
