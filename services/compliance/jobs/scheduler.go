// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jobs runs the background compliance jobs on a schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/vroomx/services/compliance/observability"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// DefaultTick is how often the scheduler checks for due jobs.
const DefaultTick = 30 * time.Second

// Schedule computes the next run time after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

type every time.Duration

func (e every) Next(after time.Time) time.Time { return after.Add(time.Duration(e)) }

// Every runs a job at a fixed interval.
func Every(d time.Duration) Schedule { return every(d) }

type dailyAt struct {
	hour, minute int
}

func (d dailyAt) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), d.hour, d.minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// DailyAt runs a job once a day at hour:minute in the clock's location.
func DailyAt(hour, minute int) Schedule { return dailyAt{hour: hour, minute: minute} }

// Job is a named unit of background work.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

type entry struct {
	job  Job
	next time.Time
}

// Scheduler runs jobs when they fall due.
//
// # Description
//
// A single goroutine wakes every tick, runs each due job in turn and
// computes its next run time. Each run opens a span and records job
// metrics. A failing job is logged and rescheduled; it never stops the
// loop.
//
// # Thread Safety
//
// Start, Stop and RunNow are safe for concurrent use.
type Scheduler struct {
	metrics *observability.Metrics
	now     func() time.Time
	tick    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates an empty scheduler. metrics and now may be nil.
func NewScheduler(metrics *observability.Metrics, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		metrics: metrics,
		now:     now,
		tick:    DefaultTick,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
}

// WithTick overrides how often due jobs are checked.
func (s *Scheduler) WithTick(d time.Duration) *Scheduler {
	s.tick = d
	return s
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Run == nil {
		return fmt.Errorf("job requires a name, schedule and run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name]; ok {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.entries[job.Name] = &entry{job: job, next: job.Schedule.Next(s.now())}
	return nil
}

// Jobs returns the registered job names with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, e := range s.entries {
		out[name] = e.next
	}
	return out
}

// Start launches the loop. It returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	slog.Info("Job scheduler starting", "jobs", len(s.Jobs()), "tick", s.tick.String())
	s.wg.Add(1)
	go s.runLoop(ctx)
	return nil
}

// Stop ends the loop and waits for a job in progress to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	slog.Info("Job scheduler stopping")
	close(s.done)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// RunNow runs the named job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, e.job)
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Job scheduler stopped (context cancelled)")
			return
		case <-s.done:
			slog.Info("Job scheduler stopped (stop requested)")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })

	for _, e := range due {
		if ctx.Err() != nil {
			return
		}
		_ = s.execute(ctx, e.job)
		s.mu.Lock()
		e.next = e.job.Schedule.Next(s.now())
		s.mu.Unlock()
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	ctx, span := otel.Tracer("vroomx/jobs").Start(ctx, "job."+job.Name)
	defer span.End()
	span.SetAttributes(attribute.String("job.name", job.Name))

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordJob(job.Name, elapsed.Seconds(), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Job failed", "job", job.Name, "duration_ms", elapsed.Milliseconds(), "error", err)
		return err
	}
	slog.Info("Job completed", "job", job.Name, "duration_ms", elapsed.Milliseconds())
	return nil
}
