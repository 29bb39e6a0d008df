// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clearinghouse records FMCSA Drug & Alcohol Clearinghouse queries
// and keeps the denormalised query state on each driver in step with them.
//
// # Description
//
// Every persisted query is followed by SyncDriver, which copies the query
// outcome onto driver.clearinghouse when the query is at least as recent as
// the one already recorded. The sync is best-effort: its failures are logged
// and counted, never returned to the caller that saved the query.
//
// # Thread Safety
//
// Service is safe for concurrent use. Concurrent syncs for one driver are
// serialised by the store transaction and the last committed write wins.
package clearinghouse

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/observability"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// errOlderQuery aborts a driver update when the query predates the driver's
// recorded one.
var errOlderQuery = errors.New("query older than recorded query")

// reportBusinessDays is the deadline for reporting a violation.
const reportBusinessDays = 3

// Service implements the Clearinghouse operations.
type Service struct {
	repo    *storage.Repository
	metrics *observability.Metrics
}

// NewService creates a Service. metrics may be nil.
func NewService(repo *storage.Repository, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, metrics: metrics}
}

// =============================================================================
// Queries
// =============================================================================

// RecordQuery persists a new query and syncs the driver.
//
// Description:
//
//	The driver must belong to companyID. The sync runs after the query is
//	stored and cannot fail the call.
//
// Outputs:
//
//	*datatypes.ClearinghouseQuery - The stored query.
//	error - 404 AppError for a foreign driver, *ValidationError, or storage error.
func (s *Service) RecordQuery(ctx context.Context, companyID, userID string, q *datatypes.ClearinghouseQuery) (*datatypes.ClearinghouseQuery, error) {
	if q.DriverID != "" {
		if _, err := s.repo.Drivers.Get(ctx, companyID, q.DriverID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, datatypes.NotFound("Driver")
			}
			return nil, err
		}
	}
	if err := datatypes.Validate(q); err != nil {
		return nil, err
	}

	q.ID = ""
	q.CompanyID = companyID
	q.CreatedBy = userID
	if err := s.repo.ClearinghouseQueries.Put(ctx, q); err != nil {
		return nil, err
	}
	s.SyncDriver(ctx, q)
	return q, nil
}

// QueryPatch holds the fields a query may change after creation.
type QueryPatch struct {
	Result             *string            `json:"result,omitempty" validate:"omitempty,oneof=clear violation_found pending"`
	ConfirmationNumber *string            `json:"confirmationNumber,omitempty"`
	ResultDocumentURL  *string            `json:"resultDocumentUrl,omitempty"`
	Notes              *string            `json:"notes,omitempty"`
	Consent            *datatypes.Consent `json:"consent,omitempty"`
}

// UpdateQuery applies patch to a stored query and syncs the driver again.
func (s *Service) UpdateQuery(ctx context.Context, companyID, id string, patch QueryPatch) (*datatypes.ClearinghouseQuery, error) {
	if err := datatypes.Validate(&patch); err != nil {
		return nil, err
	}
	q, err := s.repo.ClearinghouseQueries.Update(ctx, companyID, id, func(q *datatypes.ClearinghouseQuery) error {
		if patch.Result != nil {
			q.Result = *patch.Result
		}
		if patch.ConfirmationNumber != nil {
			q.ConfirmationNumber = *patch.ConfirmationNumber
		}
		if patch.ResultDocumentURL != nil {
			q.ResultDocumentURL = *patch.ResultDocumentURL
		}
		if patch.Notes != nil {
			q.Notes = *patch.Notes
		}
		if patch.Consent != nil {
			q.Consent = *patch.Consent
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("Query record")
	}
	if err != nil {
		return nil, err
	}
	s.SyncDriver(ctx, q)
	return q, nil
}

// GetQuery returns one query.
func (s *Service) GetQuery(ctx context.Context, companyID, id string) (*datatypes.ClearinghouseQuery, error) {
	q, err := s.repo.ClearinghouseQueries.Get(ctx, companyID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("Query record")
	}
	return q, err
}

// QueryFilter narrows ListQueries. Zero values match everything.
type QueryFilter struct {
	DriverID     string
	QueryType    string
	QueryPurpose string
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

// ListQueries returns matching queries newest first.
func (s *Service) ListQueries(ctx context.Context, companyID string, f QueryFilter) (datatypes.Page[*datatypes.ClearinghouseQuery], error) {
	qs, err := s.repo.ClearinghouseQueries.List(ctx, companyID, func(q *datatypes.ClearinghouseQuery) bool {
		switch {
		case f.DriverID != "" && q.DriverID != f.DriverID:
			return false
		case f.QueryType != "" && q.QueryType != f.QueryType:
			return false
		case f.QueryPurpose != "" && q.QueryPurpose != f.QueryPurpose:
			return false
		case f.From != nil && q.QueryDate.Before(*f.From):
			return false
		case f.To != nil && q.QueryDate.After(*f.To):
			return false
		}
		return true
	})
	if err != nil {
		return datatypes.Page[*datatypes.ClearinghouseQuery]{}, err
	}
	sortNewestFirst(qs)
	return storage.Paginate(qs, f.Page, f.Limit), nil
}

func sortNewestFirst(qs []*datatypes.ClearinghouseQuery) {
	sort.SliceStable(qs, func(i, j int) bool {
		return qs[i].QueryDate.After(qs[j].QueryDate)
	})
}

// =============================================================================
// Driver Sync
// =============================================================================

// SyncDriver copies q onto its driver's clearinghouse state.
//
// Description:
//
//	The driver is updated when it has no recorded query or when
//	q.QueryDate is on or after the recorded date. Equal dates apply, so
//	re-saving the latest query refreshes the driver. Consent falls back to
//	the existing consent date when q carries none. The expiry is one year
//	after the query date. Compliance status is recomputed before saving.
//
//	Errors are logged and counted, never returned.
func (s *Service) SyncDriver(ctx context.Context, q *datatypes.ClearinghouseQuery) {
	now := s.repo.Now()
	_, err := s.repo.Drivers.Update(ctx, q.CompanyID, q.DriverID, func(d *datatypes.Driver) error {
		last := d.Clearinghouse.LastQueryDate
		if last != nil && q.QueryDate.Before(*last) {
			return errOlderQuery
		}
		consent := d.Clearinghouse.ConsentDate
		if q.Consent.ConsentDate != nil {
			consent = q.Consent.ConsentDate
		}
		d.Clearinghouse = datatypes.DriverClearinghouse{
			LastQueryDate: datatypes.TimePtr(q.QueryDate),
			QueryType:     q.QueryType,
			Status:        q.Result,
			ConsentDate:   consent,
			ExpiryDate:    datatypes.TimePtr(q.QueryDate.AddDate(1, 0, 0)),
		}
		rules.PrepareDriver(d, now)
		return nil
	})
	switch {
	case err == nil:
		s.metrics.RecordClearinghouseSync(observability.SyncApplied)
	case errors.Is(err, errOlderQuery):
		s.metrics.RecordClearinghouseSync(observability.SyncSkippedOlder)
	case errors.Is(err, storage.ErrNotFound):
		s.metrics.RecordClearinghouseSync(observability.SyncDriverMissing)
	default:
		s.metrics.RecordClearinghouseSync(observability.SyncError)
		slog.Error("Clearinghouse driver sync failed",
			"driver_id", q.DriverID,
			"query_id", q.ID,
			"error", err)
	}
}

// =============================================================================
// Dashboard
// =============================================================================

// Dashboard is the company-wide Clearinghouse summary.
type Dashboard struct {
	TotalActiveDrivers      int                             `json:"totalActiveDrivers"`
	QueriesCurrent          int                             `json:"queriesCurrent"`
	QueriesDue              int                             `json:"queriesDue"`
	QueriesOverdue          int                             `json:"queriesOverdue"`
	QueriesMissing          int                             `json:"queriesMissing"`
	ViolationsPendingReport int                             `json:"violationsPendingReport"`
	RTDInProgress           int                             `json:"rtdInProgress"`
	QueriesThisYear         int                             `json:"queriesThisYear"`
	ComplianceRate          int                             `json:"complianceRate"`
	RecentQueries           []RecentQuery                   `json:"recentQueries"`
}

// RecentQuery is a query with the identifying fields of its driver. Driver
// is nil when the driver record no longer exists.
type RecentQuery struct {
	*datatypes.ClearinghouseQuery
	Driver *QueryDriver `json:"driver,omitempty"`
}

// QueryDriver names the driver a query was run for.
type QueryDriver struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	EmployeeID string `json:"employeeId,omitempty"`
}

// Dashboard aggregates driver query status, open reports and recent queries.
func (s *Service) Dashboard(ctx context.Context, companyID string) (*Dashboard, error) {
	now := s.repo.Now()
	out := &Dashboard{}

	drivers, err := s.repo.Drivers.List(ctx, companyID, isActiveDriver)
	if err != nil {
		return nil, err
	}
	out.TotalActiveDrivers = len(drivers)
	for _, d := range drivers {
		switch d.ComplianceStatus.ClearinghouseStatus {
		case datatypes.StatusCurrent:
			out.QueriesCurrent++
		case datatypes.StatusDue:
			out.QueriesDue++
		case datatypes.StatusOverdue:
			out.QueriesOverdue++
		case datatypes.StatusMissing:
			out.QueriesMissing++
		}
	}

	tests, err := s.repo.DrugAlcoholTests.List(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		if t.IsViolation() && !t.Clearinghouse.Reported {
			out.ViolationsPendingReport++
		}
		if t.ReturnToDuty.SAPReferralDate != nil && !t.ReturnToDuty.ClearedForDuty {
			out.RTDInProgress++
		}
	}

	queries, err := s.repo.ClearinghouseQueries.List(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	startOfYear := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	for _, q := range queries {
		if !q.QueryDate.Before(startOfYear) {
			out.QueriesThisYear++
		}
	}
	sortNewestFirst(queries)
	if len(queries) > 5 {
		queries = queries[:5]
	}
	out.RecentQueries = make([]RecentQuery, 0, len(queries))
	for _, q := range queries {
		rq := RecentQuery{ClearinghouseQuery: q}
		d, err := s.repo.Drivers.Get(ctx, companyID, q.DriverID)
		switch {
		case err == nil:
			rq.Driver = &QueryDriver{ID: d.ID, FirstName: d.FirstName, LastName: d.LastName, EmployeeID: d.EmployeeID}
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
		out.RecentQueries = append(out.RecentQueries, rq)
	}

	if out.TotalActiveDrivers > 0 {
		out.ComplianceRate = int(math.Round(float64(out.QueriesCurrent) / float64(out.TotalActiveDrivers) * 100))
	}
	return out, nil
}

func isActiveDriver(d *datatypes.Driver) bool {
	return d.Status == datatypes.DriverActive && !d.IsArchived
}

// DriverQueryStatus is a driver row enriched with query timing.
type DriverQueryStatus struct {
	DriverID            string                        `json:"driverId"`
	FirstName           string                        `json:"firstName"`
	LastName            string                        `json:"lastName"`
	EmployeeID          string                        `json:"employeeId,omitempty"`
	Clearinghouse       datatypes.DriverClearinghouse `json:"clearinghouse"`
	ClearinghouseStatus datatypes.ItemStatus          `json:"clearinghouseStatus"`
	DaysSinceLastQuery  *int                          `json:"daysSinceLastQuery"`
	DaysUntilDue        *int                          `json:"daysUntilDue"`
}

// DriverStatuses lists active drivers with their query timing.
//
// Description:
//
//	status filters on the derived clearinghouse status. search matches
//	first name, last name or employee ID case-insensitively. Rows are
//	sorted by last name.
func (s *Service) DriverStatuses(ctx context.Context, companyID, status, search string, page, limit int) (datatypes.Page[DriverQueryStatus], error) {
	now := s.repo.Now()
	search = strings.ToLower(strings.TrimSpace(search))

	drivers, err := s.repo.Drivers.List(ctx, companyID, func(d *datatypes.Driver) bool {
		if !isActiveDriver(d) {
			return false
		}
		if status != "" && string(d.ComplianceStatus.ClearinghouseStatus) != status {
			return false
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(d.FirstName), search) &&
			!strings.Contains(strings.ToLower(d.LastName), search) &&
			!strings.Contains(strings.ToLower(d.EmployeeID), search) {
			return false
		}
		return true
	})
	if err != nil {
		return datatypes.Page[DriverQueryStatus]{}, err
	}
	sort.SliceStable(drivers, func(i, j int) bool { return drivers[i].LastName < drivers[j].LastName })

	rows := make([]DriverQueryStatus, 0, len(drivers))
	for _, d := range drivers {
		row := DriverQueryStatus{
			DriverID:            d.ID,
			FirstName:           d.FirstName,
			LastName:            d.LastName,
			EmployeeID:          d.EmployeeID,
			Clearinghouse:       d.Clearinghouse,
			ClearinghouseStatus: d.ComplianceStatus.ClearinghouseStatus,
		}
		if last := d.Clearinghouse.LastQueryDate; last != nil {
			since := rules.DaysSince(*last, now)
			until := rules.ReviewOverdueDays - since
			row.DaysSinceLastQuery = &since
			row.DaysUntilDue = &until
		}
		rows = append(rows, row)
	}
	return storage.Paginate(rows, page, limit), nil
}

// =============================================================================
// Violation Reporting
// =============================================================================

// PendingReport is a positive or refused test with its reporting deadline.
type PendingReport struct {
	Test           *datatypes.DrugAlcoholTest `json:"test"`
	ReportDeadline time.Time                  `json:"reportDeadline"`
	DaysOverdue    int                        `json:"daysOverdue"`
	IsOverdue      bool                       `json:"isOverdue"`
}

// Reports splits violation tests into pending and reported.
type Reports struct {
	Pending  []PendingReport `json:"pending"`
	Reported []PendingReport `json:"reported"`
}

// ViolationReports lists tests that must be reported to the Clearinghouse.
// The deadline is three business days after the test. Pending entries are
// sorted most overdue first.
func (s *Service) ViolationReports(ctx context.Context, companyID string) (*Reports, error) {
	now := s.repo.Now()
	tests, err := s.repo.DrugAlcoholTests.List(ctx, companyID, func(t *datatypes.DrugAlcoholTest) bool {
		return t.IsViolation()
	})
	if err != nil {
		return nil, err
	}

	out := &Reports{Pending: []PendingReport{}, Reported: []PendingReport{}}
	for _, t := range tests {
		deadline := AddBusinessDays(t.TestDate, reportBusinessDays)
		r := PendingReport{Test: t, ReportDeadline: deadline}
		if t.Clearinghouse.Reported {
			out.Reported = append(out.Reported, r)
			continue
		}
		r.IsOverdue = now.After(deadline)
		if r.IsOverdue {
			r.DaysOverdue = rules.DaysSince(deadline, now)
		}
		out.Pending = append(out.Pending, r)
	}
	sort.SliceStable(out.Pending, func(i, j int) bool {
		return out.Pending[i].DaysOverdue > out.Pending[j].DaysOverdue
	})
	return out, nil
}

// AddBusinessDays adds n weekdays to t.
func AddBusinessDays(t time.Time, n int) time.Time {
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return t
}
