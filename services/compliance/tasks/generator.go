// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// ExpiryThresholdDays is how far ahead the generator looks.
const ExpiryThresholdDays = 30

// Generator creates auto_compliance tasks for items expiring within
// ExpiryThresholdDays.
//
// # Description
//
// Generation is idempotent: a task is only created when no open
// auto_compliance task with the same title exists for the same linked
// record. Running it daily therefore yields one open task per expiring
// item, and a fresh one after the previous task is completed.
//
// # Thread Safety
//
// Two generators running concurrently for the same company may both create
// a task for the same item. The scheduler runs a single generator.
type Generator struct {
	repo    *storage.Repository
	metrics *observability.Metrics
}

// NewGenerator creates a Generator. metrics may be nil.
func NewGenerator(repo *storage.Repository, metrics *observability.Metrics) *Generator {
	return &Generator{repo: repo, metrics: metrics}
}

// GenerateAll runs GenerateForCompany for every company that is not
// suspended. A failing company is logged and skipped.
func (g *Generator) GenerateAll(ctx context.Context) (int, error) {
	slog.Info("Starting compliance task generation")
	companies, err := g.repo.Companies.ListAll(ctx, func(c *datatypes.Company) bool {
		return c.Status != datatypes.CompanySuspended
	})
	if err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, c := range companies {
		created, err := g.GenerateForCompany(ctx, c.ID)
		total += created
		if err != nil {
			slog.Error("Compliance task generation failed", "company_id", c.ID, "error", err)
			errs = append(errs, fmt.Errorf("company %s: %w", c.ID, err))
		}
	}
	slog.Info("Compliance task generation complete", "created", total, "companies", len(companies))
	return total, errors.Join(errs...)
}

// GenerateForCompany creates missing tasks for one company and returns how
// many were created.
func (g *Generator) GenerateForCompany(ctx context.Context, companyID string) (int, error) {
	now := g.repo.Now()
	threshold := now.AddDate(0, 0, ExpiryThresholdDays)
	due := func(t *time.Time) bool { return t != nil && !t.After(threshold) }

	drivers, err := g.repo.Drivers.List(ctx, companyID, func(d *datatypes.Driver) bool {
		return !d.IsArchived && (d.Status == datatypes.DriverActive || d.Status == datatypes.DriverSuspended)
	})
	if err != nil {
		return 0, err
	}
	vehicles, err := g.repo.Vehicles.List(ctx, companyID, func(v *datatypes.Vehicle) bool {
		return v.Status == datatypes.VehicleActive || v.Status == datatypes.VehicleMaintenance
	})
	if err != nil {
		return 0, err
	}

	var candidates []*datatypes.Task
	for _, d := range drivers {
		name := d.FullName()
		link := datatypes.LinkRef{Type: "driver", RefID: d.ID, RefName: name}

		if exp := d.CDL.ExpiryDate; due(exp) {
			days := rules.DaysUntil(*exp, now)
			candidates = append(candidates, &datatypes.Task{
				Title:       "CDL expiring for " + name,
				Description: fmt.Sprintf("CDL expires %s on %s. Ensure renewal is in progress.", expiresIn(days), exp.Format("1/2/2006")),
				DueDate:     *exp,
				Priority:    priorityWithin(days, 14),
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
		if exp := d.MedicalCard.ExpiryDate; due(exp) {
			days := rules.DaysUntil(*exp, now)
			candidates = append(candidates, &datatypes.Task{
				Title:       "Medical card expiring for " + name,
				Description: fmt.Sprintf("Medical certificate expires %s. Schedule physical exam.", expiresIn(days)),
				DueDate:     *exp,
				Priority:    priorityWithin(days, 7),
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
		if exp := d.Clearinghouse.ExpiryDate; due(exp) {
			candidates = append(candidates, &datatypes.Task{
				Title:       "Clearinghouse query due for " + name,
				Description: "Annual Clearinghouse query is due. Ensure query is submitted.",
				DueDate:     *exp,
				Priority:    datatypes.PriorityMedium,
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
		if exp := d.MVRExpiryDate; due(exp) {
			candidates = append(candidates, &datatypes.Task{
				Title:       "MVR review due for " + name,
				Description: "Annual MVR review is due. Pull and review motor vehicle record.",
				DueDate:     *exp,
				Priority:    datatypes.PriorityMedium,
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
	}

	for _, v := range vehicles {
		name := v.DisplayName()
		link := datatypes.LinkRef{Type: "vehicle", RefID: v.ID, RefName: name}

		if exp := v.AnnualInspection.NextDueDate; due(exp) {
			days := rules.DaysUntil(*exp, now)
			when := fmt.Sprintf("due in %d days", days)
			if days <= 0 {
				when = "is OVERDUE"
			}
			candidates = append(candidates, &datatypes.Task{
				Title:       "Annual inspection due for " + name,
				Description: fmt.Sprintf("Annual DOT inspection %s. Schedule with qualified inspector.", when),
				DueDate:     *exp,
				Priority:    priorityWithin(days, 7),
				Category:    "maintenance",
				LinkedTo:    link,
			})
		}
		if exp := v.Registration.ExpiryDate; due(exp) {
			candidates = append(candidates, &datatypes.Task{
				Title:       "Registration expiring for " + name,
				Description: "Vehicle registration is expiring. Renew before expiry.",
				DueDate:     *exp,
				Priority:    datatypes.PriorityMedium,
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
		if exp := v.Insurance.ExpiryDate; due(exp) {
			candidates = append(candidates, &datatypes.Task{
				Title:       "Insurance expiring for " + name,
				Description: "Vehicle insurance policy is expiring. Contact provider for renewal.",
				DueDate:     *exp,
				Priority:    datatypes.PriorityHigh,
				Category:    "expiring_doc",
				LinkedTo:    link,
			})
		}
		if exp := v.PMSchedule.NextPMDueDate; due(exp) {
			candidates = append(candidates, &datatypes.Task{
				Title:       "Preventive maintenance due for " + name,
				Description: "Scheduled PM service is due. Schedule maintenance appointment.",
				DueDate:     *exp,
				Priority:    datatypes.PriorityMedium,
				Category:    "maintenance",
				LinkedTo:    link,
			})
		}
	}

	created := 0
	for _, t := range candidates {
		ok, err := g.createIfNotExists(ctx, companyID, t, now)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	g.metrics.RecordTasksGenerated(created)
	if created > 0 {
		slog.Info("Compliance tasks created", "company_id", companyID, "created", created)
	}
	return created, nil
}

// createIfNotExists stores t unless an open generated task with the same
// title already exists for the same linked record.
func (g *Generator) createIfNotExists(ctx context.Context, companyID string, t *datatypes.Task, now time.Time) (bool, error) {
	_, err := g.repo.Tasks.FindOne(ctx, companyID, func(existing *datatypes.Task) bool {
		return existing.Source == datatypes.SourceAutoCompliance &&
			existing.Status != datatypes.TaskCompleted &&
			existing.Title == t.Title &&
			existing.LinkedTo.RefID == t.LinkedTo.RefID
	})
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	t.CompanyID = companyID
	t.Source = datatypes.SourceAutoCompliance
	rules.PrepareTask(t, now)
	if err := g.repo.Tasks.Put(ctx, t); err != nil {
		return false, err
	}
	return true, nil
}

func expiresIn(days int) string {
	if days <= 0 {
		return "EXPIRED"
	}
	return fmt.Sprintf("in %d days", days)
}

func priorityWithin(days, highAt int) string {
	if days <= highAt {
		return datatypes.PriorityHigh
	}
	return datatypes.PriorityMedium
}
