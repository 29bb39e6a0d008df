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
	"fmt"
	"log/slog"
	"time"
)

// Job names.
const (
	JobComplianceTasks  = "compliance_tasks"
	JobComplianceScores = "compliance_scores"
	JobRetention        = "retention"
	JobLimiterPrune     = "login_limiter_prune"
)

// Config sets the job schedule.
type Config struct {
	TaskHour      int           `yaml:"task_hour"`
	ScoreInterval time.Duration `yaml:"score_interval"`
	RetentionHour int           `yaml:"retention_hour"`
}

// DefaultConfig runs tasks at 06:00, scores every 6 hours and retention at
// 03:00.
func DefaultConfig() Config {
	return Config{TaskHour: 6, ScoreInterval: 6 * time.Hour, RetentionHour: 3}
}

// TaskGenerator creates auto-generated compliance tasks.
type TaskGenerator interface {
	GenerateAll(ctx context.Context) (int, error)
}

// OverdueMarker flips past-due tasks to overdue.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context) (int, error)
}

// StatusRefresher recomputes stored document statuses.
type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (int, error)
}

// ScoreCalculator recalculates every company's score.
type ScoreCalculator interface {
	CalculateAll(ctx context.Context) (int, error)
}

// RetentionPurger runs the retention purge.
type RetentionPurger interface {
	Purge(ctx context.Context) error
}

// LimiterPruner drops idle rate limiter entries.
type LimiterPruner interface {
	Prune(idle time.Duration) int
}

// Deps are the services the compliance jobs drive. Nil members skip their
// job or step.
type Deps struct {
	Generator TaskGenerator
	Tasks     OverdueMarker
	Documents StatusRefresher
	Scores    ScoreCalculator
	Retention RetentionPurger
	Limiter   LimiterPruner
}

// Register adds the compliance jobs to s.
func Register(s *Scheduler, d Deps, cfg Config) error {
	if cfg.ScoreInterval <= 0 {
		cfg.ScoreInterval = DefaultConfig().ScoreInterval
	}
	var jobs []Job
	if d.Generator != nil || d.Tasks != nil || d.Documents != nil {
		jobs = append(jobs, Job{Name: JobComplianceTasks, Schedule: DailyAt(cfg.TaskHour, 0), Run: d.complianceTasks})
	}
	if d.Scores != nil {
		jobs = append(jobs, Job{Name: JobComplianceScores, Schedule: Every(cfg.ScoreInterval), Run: d.complianceScores})
	}
	if d.Retention != nil {
		jobs = append(jobs, Job{Name: JobRetention, Schedule: DailyAt(cfg.RetentionHour, 0), Run: d.Retention.Purge})
	}
	if d.Limiter != nil {
		jobs = append(jobs, Job{Name: JobLimiterPrune, Schedule: Every(10 * time.Minute), Run: d.pruneLimiter})
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}

// complianceTasks refreshes document statuses, generates tasks and marks
// overdue ones. Every step runs even if an earlier one failed.
func (d Deps) complianceTasks(ctx context.Context) error {
	var errs []error
	if d.Documents != nil {
		n, err := d.Documents.RefreshStatuses(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh document statuses: %w", err))
		}
		slog.Info("Document statuses refreshed", "changed", n)
	}
	if d.Generator != nil {
		n, err := d.Generator.GenerateAll(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("generate tasks: %w", err))
		}
		slog.Info("Compliance tasks generated", "created", n)
	}
	if d.Tasks != nil {
		n, err := d.Tasks.MarkOverdue(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark overdue: %w", err))
		}
		slog.Info("Overdue tasks marked", "count", n)
	}
	return errors.Join(errs...)
}

func (d Deps) complianceScores(ctx context.Context) error {
	n, err := d.Scores.CalculateAll(ctx)
	if err != nil {
		return fmt.Errorf("calculate scores: %w", err)
	}
	slog.Info("Compliance scores calculated", "companies", n)
	return nil
}

func (d Deps) pruneLimiter(context.Context) error {
	if n := d.Limiter.Prune(time.Hour); n > 0 {
		slog.Debug("Pruned idle login limiters", "count", n)
	}
	return nil
}
