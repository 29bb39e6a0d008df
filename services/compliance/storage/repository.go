// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// Collection names. These are the first key segment and must never change
// once data exists.
const (
	companiesCollection     = "companies"
	usersCollection         = "users"
	driversCollection       = "drivers"
	vehiclesCollection      = "vehicles"
	violationsCollection    = "violations"
	accidentsCollection     = "accidents"
	queriesCollection       = "clearinghouse_queries"
	documentsCollection     = "documents"
	drugAlcoholCollection   = "drug_alcohol_tests"
	tasksCollection         = "tasks"
	templatesCollection     = "checklist_templates"
	assignmentsCollection   = "checklist_assignments"
	scoresCollection        = "compliance_scores"
	auditCollection         = "audit_records"
	usersByEmailIndexPrefix = "users_by_email/"
)

// Repository bundles one collection per record type.
type Repository struct {
	db  *DB
	now func() time.Time

	Companies            *Collection[datatypes.Company, *datatypes.Company]
	Users                *Collection[datatypes.User, *datatypes.User]
	Drivers              *Collection[datatypes.Driver, *datatypes.Driver]
	Vehicles             *Collection[datatypes.Vehicle, *datatypes.Vehicle]
	Violations           *Collection[datatypes.Violation, *datatypes.Violation]
	Accidents            *Collection[datatypes.Accident, *datatypes.Accident]
	ClearinghouseQueries *Collection[datatypes.ClearinghouseQuery, *datatypes.ClearinghouseQuery]
	Documents            *Collection[datatypes.Document, *datatypes.Document]
	DrugAlcoholTests     *Collection[datatypes.DrugAlcoholTest, *datatypes.DrugAlcoholTest]
	Tasks                *Collection[datatypes.Task, *datatypes.Task]
	ChecklistTemplates   *Collection[datatypes.ChecklistTemplate, *datatypes.ChecklistTemplate]
	ChecklistAssignments *Collection[datatypes.ChecklistAssignment, *datatypes.ChecklistAssignment]
	Scores               *Collection[datatypes.ComplianceScore, *datatypes.ComplianceScore]
	AuditRecords         *Collection[datatypes.AuditRecord, *datatypes.AuditRecord]
}

// NewRepository builds the collections over db. now defaults to time.Now
// and is used for record timestamps.
func NewRepository(db *DB, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{
		db:                   db,
		now:                  now,
		Companies:            NewCollection[datatypes.Company](db, companiesCollection, now),
		Users:                NewCollection[datatypes.User](db, usersCollection, now),
		Drivers:              NewCollection[datatypes.Driver](db, driversCollection, now),
		Vehicles:             NewCollection[datatypes.Vehicle](db, vehiclesCollection, now),
		Violations:           NewCollection[datatypes.Violation](db, violationsCollection, now),
		Accidents:            NewCollection[datatypes.Accident](db, accidentsCollection, now),
		ClearinghouseQueries: NewCollection[datatypes.ClearinghouseQuery](db, queriesCollection, now),
		Documents:            NewCollection[datatypes.Document](db, documentsCollection, now),
		DrugAlcoholTests:     NewCollection[datatypes.DrugAlcoholTest](db, drugAlcoholCollection, now),
		Tasks:                NewCollection[datatypes.Task](db, tasksCollection, now),
		ChecklistTemplates:   NewCollection[datatypes.ChecklistTemplate](db, templatesCollection, now),
		ChecklistAssignments: NewCollection[datatypes.ChecklistAssignment](db, assignmentsCollection, now),
		Scores:               NewCollection[datatypes.ComplianceScore](db, scoresCollection, now),
		AuditRecords:         NewCollection[datatypes.AuditRecord](db, auditCollection, now),
	}
}

// Now returns the repository clock.
func (r *Repository) Now() time.Time { return r.now() }

// DB returns the underlying store.
func (r *Repository) DB() *DB { return r.db }

// =============================================================================
// Users and the email index
// =============================================================================

func emailKey(email string) []byte {
	return []byte(usersByEmailIndexPrefix + strings.ToLower(strings.TrimSpace(email)))
}

// CreateUser stores a new user and claims its email in the unique index.
// Returns ErrDuplicate when the email is already registered.
func (r *Repository) CreateUser(ctx context.Context, u *datatypes.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := emailKey(u.Email)
		_, err := txn.Get(key)
		if err == nil {
			return ErrDuplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check email index: %w", err)
		}
		if err := r.Users.PutTxn(txn, u); err != nil {
			return err
		}
		return txn.Set(key, []byte(u.CompanyID+"/"+u.ID))
	})
}

// UserByEmail resolves a user through the email index.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*datatypes.User, error) {
	var user *datatypes.User
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		ref, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		companyID, id, ok := strings.Cut(string(ref), "/")
		if !ok {
			return fmt.Errorf("malformed email index entry %q", ref)
		}
		user, err = r.Users.GetTxn(txn, companyID, id)
		return err
	})
	return user, err
}

// =============================================================================
// Pagination
// =============================================================================

// Default and maximum page sizes.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate slices items into the requested page. page is 1-based; values
// below 1 are clamped, and limit falls back to DefaultPageSize.
func Paginate[T any](items []T, page, limit int) datatypes.Page[T] {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	total := len(items)
	pages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	return datatypes.Page[T]{Items: out, Total: total, Page: page, Pages: pages}
}
