// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scoring computes the weighted company compliance score.
//
// # Description
//
// A score is built from five components, each scored 0-100 and weighted:
//
//	documentStatus     25
//	violations         30
//	drugAlcohol        15
//	dqfCompleteness    20
//	vehicleInspection  10
//
// The components read independent collections and are computed
// concurrently. Every calculation is persisted, so the stored history
// doubles as the trend source for the next calculation.
//
// # Thread Safety
//
// Service is safe for concurrent use.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// Component keys as stored on a score.
const (
	KeyDocumentStatus    = "documentStatus"
	KeyViolations        = "violations"
	KeyDrugAlcohol       = "drugAlcohol"
	KeyDQFCompleteness   = "dqfCompleteness"
	KeyVehicleInspection = "vehicleInspection"
)

// Weights sum to 100.
var Weights = map[string]int{
	KeyDocumentStatus:    25,
	KeyViolations:        30,
	KeyDrugAlcohol:       15,
	KeyDQFCompleteness:   20,
	KeyVehicleInspection: 10,
}

var componentNames = map[string]string{
	KeyDocumentStatus:    "Document Status",
	KeyViolations:        "Violations",
	KeyDrugAlcohol:       "Drug & Alcohol",
	KeyDQFCompleteness:   "DQF Completeness",
	KeyVehicleInspection: "Vehicle Inspection",
}

const (
	// RecommendBelow is the component score under which a recommendation
	// is produced.
	RecommendBelow = 70

	// trendThreshold is the change in points that counts as a trend.
	trendThreshold = 2

	violationWindowYears = 2
	dqfCompliantAt       = 90
	randomDrugRate       = 0.5
	randomAlcoholRate    = 0.1
	defaultHistoryDays   = 30
)

// Sink receives every calculated score. Implementations must not block for
// long; failures are logged by the caller and never fail a calculation.
type Sink interface {
	WriteScore(ctx context.Context, score *datatypes.ComplianceScore) error
}

// Service calculates and stores compliance scores.
type Service struct {
	repo    *storage.Repository
	metrics *observability.Metrics
	sink    Sink
}

// NewService creates a Service. metrics and sink may be nil.
func NewService(repo *storage.Repository, metrics *observability.Metrics, sink Sink) *Service {
	return &Service{repo: repo, metrics: metrics, sink: sink}
}

// component is one calculated component with the counts it contributes to
// ScoreMetrics.
type component struct {
	score     int
	breakdown map[string]any
}

// =============================================================================
// Calculation
// =============================================================================

// Calculate computes, stores and publishes a fresh score for companyID.
//
// Description:
//
//	The five components are computed concurrently. The latest stored score
//	supplies previousScore, change and trend. After the record is stored the
//	compliance_score gauge is set and the score is pushed to the sink.
//
// Outputs:
//
//	*datatypes.ComplianceScore - The stored score.
//	error - Non-nil if a component query or the store write failed.
func (s *Service) Calculate(ctx context.Context, companyID string) (*datatypes.ComplianceScore, error) {
	now := s.repo.Now()

	var (
		docs, viols, drug, dqf, veh component
		metrics                     datatypes.ScoreMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		docs, metrics.TotalDocuments, err = s.documentScore(gctx, companyID, now)
		return err
	})
	g.Go(func() (err error) {
		viols, metrics.ActiveViolations, err = s.violationScore(gctx, companyID, now)
		return err
	})
	g.Go(func() (err error) {
		drug, err = s.drugAlcoholScore(gctx, companyID, now)
		return err
	})
	g.Go(func() (err error) {
		dqf, metrics.TotalDrivers, err = s.dqfScore(gctx, companyID, now)
		return err
	})
	g.Go(func() (err error) {
		veh, metrics.TotalVehicles, err = s.vehicleScore(gctx, companyID, now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("calculate score components: %w", err)
	}

	score := &datatypes.ComplianceScore{
		Date: now,
		Components: datatypes.ScoreComponents{
			DocumentStatus:    weighted(KeyDocumentStatus, docs),
			Violations:        weighted(KeyViolations, viols),
			DrugAlcohol:       weighted(KeyDrugAlcohol, drug),
			DQFCompleteness:   weighted(KeyDQFCompleteness, dqf),
			VehicleInspection: weighted(KeyVehicleInspection, veh),
		},
		Metrics: metrics,
	}
	score.CompanyID = companyID
	score.OverallScore = Overall(score.Components)

	previous, err := s.latest(ctx, companyID, time.Time{})
	if err != nil {
		return nil, err
	}
	score.Trend = datatypes.TrendStable
	if previous != nil {
		prev := previous.OverallScore
		score.PreviousScore = &prev
		score.Change = score.OverallScore - prev
		score.Trend = Trend(score.Change)
	}

	if err := s.repo.Scores.Put(ctx, score); err != nil {
		return nil, err
	}
	s.metrics.SetScore(companyID, score.OverallScore)
	if s.sink != nil {
		if err := s.sink.WriteScore(ctx, score); err != nil {
			slog.Warn("Failed to publish compliance score", "company_id", companyID, "error", err)
		}
	}
	slog.Info("Compliance score calculated",
		"company_id", companyID,
		"score", score.OverallScore,
		"trend", score.Trend)
	return score, nil
}

// CalculateAll scores every company that is not suspended. A failing
// company is logged and skipped; the joined failures are returned with the
// number of companies scored.
func (s *Service) CalculateAll(ctx context.Context) (int, error) {
	companies, err := s.repo.Companies.ListAll(ctx, func(c *datatypes.Company) bool {
		return c.Status != datatypes.CompanySuspended
	})
	if err != nil {
		return 0, err
	}
	var errs []error
	scored := 0
	for _, c := range companies {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.Calculate(ctx, c.ID); err != nil {
			slog.Error("Score calculation failed", "company_id", c.ID, "error", err)
			errs = append(errs, fmt.Errorf("company %s: %w", c.ID, err))
			continue
		}
		scored++
	}
	return scored, errors.Join(errs...)
}

// Overall is round(Σ score×weight / 100).
func Overall(c datatypes.ScoreComponents) int {
	sum := c.DocumentStatus.Score*c.DocumentStatus.Weight +
		c.Violations.Score*c.Violations.Weight +
		c.DrugAlcohol.Score*c.DrugAlcohol.Weight +
		c.DQFCompleteness.Score*c.DQFCompleteness.Weight +
		c.VehicleInspection.Score*c.VehicleInspection.Weight
	return int(math.Round(float64(sum) / 100))
}

// Trend classifies a score change.
func Trend(change int) string {
	switch {
	case change > trendThreshold:
		return datatypes.TrendImproving
	case change < -trendThreshold:
		return datatypes.TrendDeclining
	default:
		return datatypes.TrendStable
	}
}

func weighted(key string, c component) datatypes.ScoreComponent {
	return datatypes.ScoreComponent{Score: c.score, Weight: Weights[key], Breakdown: c.breakdown}
}

func pct(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

// documentScore is 100 − expired%×0.5 − missing%×0.3 − dueSoon%×0.2 over
// non-deleted documents, with status derived at now.
func (s *Service) documentScore(ctx context.Context, companyID string, now time.Time) (component, int, error) {
	docs, err := s.repo.Documents.List(ctx, companyID, func(d *datatypes.Document) bool { return !d.IsDeleted })
	if err != nil {
		return component{}, 0, err
	}
	if len(docs) == 0 {
		return component{score: 100, breakdown: map[string]any{"message": "No documents tracked"}}, 0, nil
	}

	counts := map[datatypes.ItemStatus]int{}
	for _, d := range docs {
		rules.PrepareDocument(d, now)
		counts[d.Status]++
	}
	total := len(docs)
	raw := 100 -
		pct(counts[datatypes.StatusExpired], total)*0.5 -
		pct(counts[datatypes.StatusMissing], total)*0.3 -
		pct(counts[datatypes.StatusDueSoon], total)*0.2
	return component{
		score: max(0, int(math.Round(raw))),
		breakdown: map[string]any{
			"total":   total,
			"valid":   counts[datatypes.StatusValid],
			"expired": counts[datatypes.StatusExpired],
			"dueSoon": counts[datatypes.StatusDueSoon],
			"missing": counts[datatypes.StatusMissing],
		},
	}, total, nil
}

// violationScore subtracts half the time-weighted severity of the last two
// years of violations.
func (s *Service) violationScore(ctx context.Context, companyID string, now time.Time) (component, int, error) {
	since := now.AddDate(-violationWindowYears, 0, 0)
	viols, err := s.repo.Violations.List(ctx, companyID, func(v *datatypes.Violation) bool {
		return !v.ViolationDate.Before(since)
	})
	if err != nil {
		return component{}, 0, err
	}
	weightedSeverity, open := 0, 0
	for _, v := range viols {
		weightedSeverity += rules.WeightedSeverity(v, now)
		if v.Status == datatypes.ViolationOpen {
			open++
		}
	}
	return component{
		score: max(0, int(math.Round(100-float64(weightedSeverity)/2))),
		breakdown: map[string]any{
			"totalViolations":      len(viols),
			"openViolations":       open,
			"timeWeightedSeverity": weightedSeverity,
		},
	}, open, nil
}

// drugAlcoholScore compares this calendar year's random tests with the 50%
// drug and 10% alcohol minimum rates.
func (s *Service) drugAlcoholScore(ctx context.Context, companyID string, now time.Time) (component, error) {
	active, err := s.repo.Drivers.Count(ctx, companyID, isActiveDriver)
	if err != nil {
		return component{}, err
	}
	if active == 0 {
		return component{score: 100, breakdown: map[string]any{"message": "No active drivers"}}, nil
	}

	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	tests, err := s.repo.DrugAlcoholTests.List(ctx, companyID, func(t *datatypes.DrugAlcoholTest) bool {
		return t.TestType == datatypes.TestRandom && !t.TestDate.Before(yearStart)
	})
	if err != nil {
		return component{}, err
	}
	drugDone, alcoholDone := 0, 0
	for _, t := range tests {
		if t.DrugTest.Performed {
			drugDone++
		}
		if t.AlcoholTest.Performed {
			alcoholDone++
		}
	}

	drugRequired := int(math.Ceil(float64(active) * randomDrugRate))
	alcoholRequired := int(math.Ceil(float64(active) * randomAlcoholRate))
	drugRate, alcoholRate := 1.0, 1.0
	if drugRequired > 0 {
		drugRate = float64(drugDone) / float64(drugRequired)
	}
	if alcoholRequired > 0 {
		alcoholRate = float64(alcoholDone) / float64(alcoholRequired)
	}
	return component{
		score: int(math.Round(math.Min(100, (drugRate+alcoholRate)/2*100))),
		breakdown: map[string]any{
			"activeDrivers":         active,
			"requiredDrugTests":     drugRequired,
			"completedDrugTests":    drugDone,
			"drugRate":              int(math.Round(drugRate * 100)),
			"requiredAlcoholTests":  alcoholRequired,
			"completedAlcoholTests": alcoholDone,
			"alcoholRate":           int(math.Round(alcoholRate * 100)),
		},
	}, nil
}

// dqfScore is the average qualification-file completeness of active drivers.
func (s *Service) dqfScore(ctx context.Context, companyID string, now time.Time) (component, int, error) {
	drivers, err := s.repo.Drivers.List(ctx, companyID, isActiveDriver)
	if err != nil {
		return component{}, 0, err
	}
	if len(drivers) == 0 {
		return component{score: 100, breakdown: map[string]any{"message": "No active drivers"}}, 0, nil
	}
	total, compliant := 0, 0
	for _, d := range drivers {
		c := rules.DriverDQFCompleteness(d, now)
		total += c
		if c >= dqfCompliantAt {
			compliant++
		}
	}
	return component{
		score: int(math.Round(float64(total) / float64(len(drivers)))),
		breakdown: map[string]any{
			"totalDrivers":        len(drivers),
			"compliantDrivers":    compliant,
			"nonCompliantDrivers": len(drivers) - compliant,
		},
	}, len(drivers), nil
}

// vehicleScore is the share of active vehicles whose annual inspection is
// not yet due.
func (s *Service) vehicleScore(ctx context.Context, companyID string, now time.Time) (component, int, error) {
	vehicles, err := s.repo.Vehicles.List(ctx, companyID, func(v *datatypes.Vehicle) bool {
		return v.Status == datatypes.VehicleActive
	})
	if err != nil {
		return component{}, 0, err
	}
	if len(vehicles) == 0 {
		return component{score: 100, breakdown: map[string]any{"message": "No active vehicles"}}, 0, nil
	}
	current := 0
	for _, v := range vehicles {
		if due := v.AnnualInspection.NextDueDate; due != nil && due.After(now) {
			current++
		}
	}
	return component{
		score: int(math.Round(pct(current, len(vehicles)))),
		breakdown: map[string]any{
			"totalVehicles":     len(vehicles),
			"currentInspection": current,
			"overdueInspection": len(vehicles) - current,
		},
	}, len(vehicles), nil
}

func isActiveDriver(d *datatypes.Driver) bool {
	return d.Status == datatypes.DriverActive && !d.IsArchived
}

// =============================================================================
// Reads
// =============================================================================

// latest returns the newest stored score dated on or after since, or nil.
func (s *Service) latest(ctx context.Context, companyID string, since time.Time) (*datatypes.ComplianceScore, error) {
	scores, err := s.repo.Scores.List(ctx, companyID, func(sc *datatypes.ComplianceScore) bool {
		return !sc.Date.Before(since)
	})
	if err != nil {
		return nil, err
	}
	var newest *datatypes.ComplianceScore
	for _, sc := range scores {
		if newest == nil || sc.Date.After(newest.Date) {
			newest = sc
		}
	}
	return newest, nil
}

// Get returns today's score, calculating one when none exists yet.
func (s *Service) Get(ctx context.Context, companyID string) (*datatypes.ComplianceScore, error) {
	now := s.repo.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	score, err := s.latest(ctx, companyID, today)
	if err != nil {
		return nil, err
	}
	if score != nil {
		return score, nil
	}
	return s.Calculate(ctx, companyID)
}

// Latest returns the newest stored score without calculating, or nil.
func (s *Service) Latest(ctx context.Context, companyID string) (*datatypes.ComplianceScore, error) {
	return s.latest(ctx, companyID, time.Time{})
}

// History returns the scores of the last days days, oldest first. days
// below 1 falls back to 30.
func (s *Service) History(ctx context.Context, companyID string, days int) ([]*datatypes.ComplianceScore, error) {
	if days < 1 {
		days = defaultHistoryDays
	}
	since := s.repo.Now().AddDate(0, 0, -days)
	scores, err := s.repo.Scores.List(ctx, companyID, func(sc *datatypes.ComplianceScore) bool {
		return !sc.Date.Before(since)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Date.Before(scores[j].Date) })
	return scores, nil
}

// Breakdown returns today's score with its components sorted weakest first
// and a recommendation for each component under RecommendBelow.
func (s *Service) Breakdown(ctx context.Context, companyID string) (*datatypes.ScoreBreakdown, error) {
	score, err := s.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return BuildBreakdown(score), nil
}

// BuildBreakdown derives the sorted component list and recommendations.
func BuildBreakdown(score *datatypes.ComplianceScore) *datatypes.ScoreBreakdown {
	entries := []datatypes.ComponentEntry{
		{Key: KeyDocumentStatus, ScoreComponent: score.Components.DocumentStatus},
		{Key: KeyViolations, ScoreComponent: score.Components.Violations},
		{Key: KeyDrugAlcohol, ScoreComponent: score.Components.DrugAlcohol},
		{Key: KeyDQFCompleteness, ScoreComponent: score.Components.DQFCompleteness},
		{Key: KeyVehicleInspection, ScoreComponent: score.Components.VehicleInspection},
	}
	for i := range entries {
		entries[i].Name = componentNames[entries[i].Key]
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score < entries[j].Score })

	recs := []string{}
	for _, e := range entries {
		if e.Score < RecommendBelow {
			recs = append(recs, Recommendation(e.Key, e.Breakdown))
		}
	}
	return &datatypes.ScoreBreakdown{ComplianceScore: score, ComponentsList: entries, Recommendations: recs}
}

// Recommendation returns the advice for a weak component.
func Recommendation(key string, breakdown map[string]any) string {
	n := func(k string) int {
		v, _ := count(breakdown, k)
		return v
	}
	switch key {
	case KeyDocumentStatus:
		if n("expired") > 0 {
			return fmt.Sprintf("Renew %d expired document(s) to improve score", n("expired"))
		}
		if n("dueSoon") > 0 {
			return fmt.Sprintf("Address %d document(s) expiring soon", n("dueSoon"))
		}
		return "Keep documents up to date"
	case KeyViolations:
		if n("openViolations") > 0 {
			return fmt.Sprintf("Resolve %d open violation(s)", n("openViolations"))
		}
		return "Continue safe operations to reduce violation severity over time"
	case KeyDrugAlcohol:
		if rate, ok := count(breakdown, "drugRate"); ok && rate < 100 {
			return fmt.Sprintf("Complete %d more drug test(s)", n("requiredDrugTests")-n("completedDrugTests"))
		}
		if rate, ok := count(breakdown, "alcoholRate"); ok && rate < 100 {
			return fmt.Sprintf("Complete %d more alcohol test(s)", n("requiredAlcoholTests")-n("completedAlcoholTests"))
		}
		return "Maintain random testing schedule"
	case KeyDQFCompleteness:
		if n("nonCompliantDrivers") > 0 {
			return fmt.Sprintf("%d driver(s) have incomplete DQF - update their files", n("nonCompliantDrivers"))
		}
		return "Keep driver qualification files current"
	case KeyVehicleInspection:
		if n("overdueInspection") > 0 {
			return fmt.Sprintf("Schedule annual inspections for %d vehicle(s)", n("overdueInspection"))
		}
		return "Maintain annual inspection schedule"
	default:
		return "Review this compliance area"
	}
}

// count reads a numeric breakdown value. Stored scores come back from JSON
// with float64 numbers.
func count(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
