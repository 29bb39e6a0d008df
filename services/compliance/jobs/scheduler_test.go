// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AleutianAI/vroomx/services/compliance/observability"
)

var start = time.Date(2025, 6, 18, 5, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestSchedules(t *testing.T) {
	tests := []struct {
		name     string
		schedule Schedule
		after    time.Time
		want     time.Time
	}{
		{"every", Every(6 * time.Hour), start, start.Add(6 * time.Hour)},
		{"daily later today", DailyAt(6, 0), start, time.Date(2025, 6, 18, 6, 0, 0, 0, time.UTC)},
		{"daily tomorrow", DailyAt(3, 0), start, time.Date(2025, 6, 19, 3, 0, 0, 0, time.UTC)},
		{"daily exactly now", DailyAt(5, 30), start, time.Date(2025, 6, 19, 5, 30, 0, 0, time.UTC)},
		{"daily month rollover", DailyAt(6, 15), time.Date(2025, 6, 30, 7, 0, 0, 0, time.UTC), time.Date(2025, 7, 1, 6, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schedule.Next(tt.after))
		})
	}
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(nil, func() time.Time { return start })
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Job{Name: "a", Schedule: DailyAt(6, 0), Run: noop}))
	assert.Error(t, s.Add(Job{Name: "a", Schedule: Every(time.Hour), Run: noop}), "duplicate name")
	assert.Error(t, s.Add(Job{Name: "b", Run: noop}), "missing schedule")
	assert.Error(t, s.Add(Job{Schedule: Every(time.Hour), Run: noop}), "missing name")

	assert.Equal(t, map[string]time.Time{"a": time.Date(2025, 6, 18, 6, 0, 0, 0, time.UTC)}, s.Jobs())
}

func TestScheduler_RunNow(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	s := NewScheduler(metrics, nil)
	boom := errors.New("boom")
	var calls int
	require.NoError(t, s.Add(Job{Name: "ok", Schedule: Every(time.Hour), Run: func(context.Context) error {
		calls++
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "fails", Schedule: Every(time.Hour), Run: func(context.Context) error { return boom }}))

	require.NoError(t, s.RunNow(context.Background(), "ok"))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, s.RunNow(context.Background(), "fails"), boom)
	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrUnknownJob)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("ok", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("fails", "error")))
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{t: start}
	s := NewScheduler(nil, clock.Now).WithTick(5 * time.Millisecond)
	var hourly, daily atomic.Int32
	require.NoError(t, s.Add(Job{Name: "hourly", Schedule: Every(time.Hour), Run: func(context.Context) error {
		hourly.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Job{Name: "daily", Schedule: DailyAt(6, 0), Run: func(context.Context) error {
		daily.Add(1)
		return errors.New("keeps the loop alive")
	}}))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "already running")

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, hourly.Load(), "nothing is due yet")

	clock.Advance(31 * time.Minute)
	assert.Eventually(t, func() bool { return daily.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, hourly.Load())

	clock.Advance(30 * time.Minute)
	assert.Eventually(t, func() bool { return hourly.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), hourly.Load(), "rescheduled after running")
	assert.Equal(t, int32(1), daily.Load())
	assert.Equal(t, start.Add(61*time.Minute+time.Hour), s.Jobs()["hourly"])

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewScheduler(nil, nil).WithTick(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	require.NoError(t, s.Stop())
}

// ============================================================================
// Compliance jobs
// ============================================================================

type counter struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (c *counter) hit(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	if c.fail == name {
		return 0, errors.New(name + " failed")
	}
	return 1, nil
}

func (c *counter) GenerateAll(context.Context) (int, error)     { return c.hit("generate") }
func (c *counter) MarkOverdue(context.Context) (int, error)     { return c.hit("overdue") }
func (c *counter) RefreshStatuses(context.Context) (int, error) { return c.hit("refresh") }
func (c *counter) CalculateAll(context.Context) (int, error)    { return c.hit("scores") }

func (c *counter) Purge(context.Context) error {
	_, err := c.hit("purge")
	return err
}

func (c *counter) Prune(time.Duration) int {
	n, _ := c.hit("prune")
	return n
}

func TestRegister(t *testing.T) {
	c := &counter{}
	s := NewScheduler(nil, func() time.Time { return start })
	deps := Deps{Generator: c, Tasks: c, Documents: c, Scores: c, Retention: c, Limiter: c}
	require.NoError(t, Register(s, deps, DefaultConfig()))

	jobs := s.Jobs()
	assert.Equal(t, time.Date(2025, 6, 18, 6, 0, 0, 0, time.UTC), jobs[JobComplianceTasks])
	assert.Equal(t, start.Add(6*time.Hour), jobs[JobComplianceScores])
	assert.Equal(t, time.Date(2025, 6, 19, 3, 0, 0, 0, time.UTC), jobs[JobRetention])
	assert.Contains(t, jobs, JobLimiterPrune)

	ctx := context.Background()
	for _, name := range []string{JobComplianceTasks, JobComplianceScores, JobRetention, JobLimiterPrune} {
		require.NoError(t, s.RunNow(ctx, name))
	}
	assert.Equal(t, []string{"refresh", "generate", "overdue", "scores", "purge", "prune"}, c.calls)

	assert.Error(t, Register(s, deps, DefaultConfig()), "jobs are registered once")
}

func TestComplianceTasks_ContinuesAfterFailure(t *testing.T) {
	c := &counter{fail: "generate"}
	s := NewScheduler(nil, nil)
	require.NoError(t, Register(s, Deps{Generator: c, Tasks: c, Documents: c}, Config{TaskHour: 6}))

	err := s.RunNow(context.Background(), JobComplianceTasks)
	assert.ErrorContains(t, err, "generate failed")
	assert.Equal(t, []string{"refresh", "generate", "overdue"}, c.calls)
	assert.NotContains(t, s.Jobs(), JobComplianceScores)
}
