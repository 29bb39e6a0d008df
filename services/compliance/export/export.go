// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes company records as CSV reports.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// DateLayout formats every date column.
const DateLayout = "2006-01-02"

// Report kinds.
const (
	KindDrivers    = "drivers"
	KindVehicles   = "vehicles"
	KindViolations = "violations"
	KindTasks      = "tasks"
	KindAudit      = "audit"
)

// Kinds lists the supported report kinds.
var Kinds = []string{KindDrivers, KindVehicles, KindViolations, KindTasks, KindAudit}

// ErrUnknownKind is returned for a report kind that is not in Kinds.
var ErrUnknownKind = errors.New("unknown export kind")

// Filename returns {kind}-{yyyy-MM-dd-HHmm}.{ext}.
func Filename(kind, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", kind, now.Format("2006-01-02-1504"), strings.TrimPrefix(ext, "."))
}

type table[T any] struct {
	header []string
	row    func(T) []string
}

func (t table[T]) write(w io.Writer, items []T) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	for _, it := range items {
		if err := cw.Write(t.row(it)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func money(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }

var drivers = table[*datatypes.Driver]{
	header: []string{"First Name", "Last Name", "Employee ID", "Status", "CDL Number", "CDL State", "CDL Class", "CDL Expiry", "Medical Card Expiry", "Hire Date", "Compliance"},
	row: func(d *datatypes.Driver) []string {
		return []string{
			d.FirstName,
			d.LastName,
			d.EmployeeID,
			string(d.Status),
			d.CDL.Number,
			d.CDL.State,
			d.CDL.Class,
			date(d.CDL.ExpiryDate),
			date(d.MedicalCard.ExpiryDate),
			date(d.HireDate),
			string(d.ComplianceStatus.Overall),
		}
	},
}

var vehicles = table[*datatypes.Vehicle]{
	header: []string{"Unit Number", "VIN", "Type", "Make", "Model", "Year", "Status", "Plate", "Plate State", "Inspection Due", "Registration Expiry", "Insurance Expiry"},
	row: func(v *datatypes.Vehicle) []string {
		year := ""
		if v.Year > 0 {
			year = strconv.Itoa(v.Year)
		}
		return []string{
			v.UnitNumber,
			v.VIN,
			v.VehicleType,
			v.Make,
			v.Model,
			year,
			string(v.Status),
			v.LicensePlate.Number,
			v.LicensePlate.State,
			date(v.AnnualInspection.NextDueDate),
			date(v.Registration.ExpiryDate),
			date(v.Insurance.ExpiryDate),
		}
	},
}

var violations = table[*datatypes.Violation]{
	header: []string{"Date", "Inspection Number", "Code", "BASIC", "Description", "Severity", "Out Of Service", "Fine", "Status", "Driver ID", "Vehicle ID"},
	row: func(v *datatypes.Violation) []string {
		return []string{
			date(&v.ViolationDate),
			v.InspectionNumber,
			v.ViolationCode,
			string(v.Basic),
			v.Description,
			strconv.Itoa(v.SeverityWeight),
			strconv.FormatBool(v.OutOfService),
			money(v.FineAmount),
			string(v.Status),
			v.DriverID,
			v.VehicleID,
		}
	},
}

var tasks = table[*datatypes.Task]{
	header: []string{"Title", "Category", "Priority", "Status", "Due Date", "Assigned To", "Source", "Completed At"},
	row: func(t *datatypes.Task) []string {
		return []string{
			t.Title,
			t.Category,
			t.Priority,
			string(t.Status),
			date(&t.DueDate),
			t.AssignedTo,
			t.Source,
			date(t.CompletedAt),
		}
	},
}

var auditRecords = table[*datatypes.AuditRecord]{
	header: []string{"Sequence", "Timestamp", "User ID", "User Email", "Action", "Resource", "Resource ID", "IP Address", "Entry Hash"},
	row: func(r *datatypes.AuditRecord) []string {
		return []string{
			strconv.FormatUint(r.Sequence, 10),
			r.Timestamp.UTC().Format(time.RFC3339),
			r.UserID,
			r.UserEmail,
			r.Action,
			r.Resource,
			r.ResourceID,
			r.IPAddress,
			r.EntryHash,
		}
	},
}

// WriteDrivers writes drivers as CSV.
func WriteDrivers(w io.Writer, ds []*datatypes.Driver) error { return drivers.write(w, ds) }

// WriteVehicles writes vehicles as CSV.
func WriteVehicles(w io.Writer, vs []*datatypes.Vehicle) error { return vehicles.write(w, vs) }

// WriteViolations writes violations as CSV.
func WriteViolations(w io.Writer, vs []*datatypes.Violation) error { return violations.write(w, vs) }

// WriteTasks writes tasks as CSV.
func WriteTasks(w io.Writer, ts []*datatypes.Task) error { return tasks.write(w, ts) }

// WriteAudit writes audit records as CSV.
func WriteAudit(w io.Writer, rs []*datatypes.AuditRecord) error { return auditRecords.write(w, rs) }

// Exporter loads a company's records and writes them as CSV.
type Exporter struct {
	repo *storage.Repository
}

// NewExporter creates an Exporter.
func NewExporter(repo *storage.Repository) *Exporter {
	return &Exporter{repo: repo}
}

// Export writes the kind report for companyID to w and returns the number
// of rows.
//
// Description:
//
//	Drivers exclude archived records. Violations are newest first, tasks
//	by due date and audit records newest first. Other kinds keep storage
//	order.
func (e *Exporter) Export(ctx context.Context, w io.Writer, companyID, kind string) (int, error) {
	switch kind {
	case KindDrivers:
		ds, err := e.repo.Drivers.List(ctx, companyID, func(d *datatypes.Driver) bool { return !d.IsArchived })
		if err != nil {
			return 0, err
		}
		sort.Slice(ds, func(i, j int) bool { return ds[i].LastName+ds[i].FirstName < ds[j].LastName+ds[j].FirstName })
		return len(ds), WriteDrivers(w, ds)
	case KindVehicles:
		vs, err := e.repo.Vehicles.List(ctx, companyID, nil)
		if err != nil {
			return 0, err
		}
		sort.Slice(vs, func(i, j int) bool { return vs[i].UnitNumber < vs[j].UnitNumber })
		return len(vs), WriteVehicles(w, vs)
	case KindViolations:
		vs, err := e.repo.Violations.List(ctx, companyID, nil)
		if err != nil {
			return 0, err
		}
		sort.Slice(vs, func(i, j int) bool { return vs[i].ViolationDate.After(vs[j].ViolationDate) })
		return len(vs), WriteViolations(w, vs)
	case KindTasks:
		ts, err := e.repo.Tasks.List(ctx, companyID, nil)
		if err != nil {
			return 0, err
		}
		sort.Slice(ts, func(i, j int) bool { return ts[i].DueDate.Before(ts[j].DueDate) })
		return len(ts), WriteTasks(w, ts)
	case KindAudit:
		rs, err := e.repo.AuditRecords.List(ctx, companyID, nil)
		if err != nil {
			return 0, err
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].Sequence > rs[j].Sequence })
		return len(rs), WriteAudit(w, rs)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}
