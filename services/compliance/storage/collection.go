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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key does not exist in the collection.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique index already holds the value.
var ErrDuplicate = errors.New("duplicate record")

// systemCompany is the key segment for records without a company.
const systemCompany = "_system"

// Record is implemented by every stored type through datatypes.Base.
type Record interface {
	GetID() string
	GetCompanyID() string
	Touch(now time.Time)
}

// storedForm lets a record serialise differently in storage than on the
// wire. datatypes.User uses it to keep its password hash.
type storedForm interface {
	ToStored() any
	FromStored(decode func(v any) error) error
}

// Collection is a typed view over one key prefix.
//
// T is the record struct and P its pointer type; the pointer carries the
// Record methods.
type Collection[T any, P interface {
	*T
	Record
}] struct {
	db   *DB
	name string
	now  func() time.Time
}

// NewCollection returns a collection stored under name.
func NewCollection[T any, P interface {
	*T
	Record
}](db *DB, name string, now func() time.Time) *Collection[T, P] {
	if now == nil {
		now = time.Now
	}
	return &Collection[T, P]{db: db, name: name, now: now}
}

// Name returns the collection's key prefix.
func (c *Collection[T, P]) Name() string { return c.name }

func (c *Collection[T, P]) key(companyID, id string) []byte {
	if companyID == "" {
		companyID = systemCompany
	}
	return []byte(c.name + "/" + companyID + "/" + id)
}

func (c *Collection[T, P]) companyPrefix(companyID string) []byte {
	if companyID == "" {
		companyID = systemCompany
	}
	return []byte(c.name + "/" + companyID + "/")
}

func (c *Collection[T, P]) encode(rec P) ([]byte, error) {
	var v any = rec
	if sf, ok := any(rec).(storedForm); ok {
		v = sf.ToStored()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return data, nil
}

func (c *Collection[T, P]) decode(data []byte) (P, error) {
	rec := P(new(T))
	var err error
	if sf, ok := any(rec).(storedForm); ok {
		err = sf.FromStored(func(v any) error { return json.Unmarshal(data, v) })
	} else {
		err = json.Unmarshal(data, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.name, err)
	}
	return rec, nil
}

// =============================================================================
// Transaction-scoped operations
// =============================================================================

// GetTxn reads a record inside an existing transaction.
func (c *Collection[T, P]) GetTxn(txn *badger.Txn, companyID, id string) (P, error) {
	item, err := txn.Get(c.key(companyID, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c.name, id, err)
	}
	var rec P
	err = item.Value(func(val []byte) error {
		var derr error
		rec, derr = c.decode(val)
		return derr
	})
	return rec, err
}

// PutTxn writes a record inside an existing transaction.
func (c *Collection[T, P]) PutTxn(txn *badger.Txn, rec P) error {
	rec.Touch(c.now())
	data, err := c.encode(rec)
	if err != nil {
		return err
	}
	if err := txn.Set(c.key(rec.GetCompanyID(), rec.GetID()), data); err != nil {
		return fmt.Errorf("put %s/%s: %w", c.name, rec.GetID(), err)
	}
	return nil
}

func (c *Collection[T, P]) scan(txn *badger.Txn, prefix []byte, filter func(P) bool) ([]P, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []P
	for it.Rewind(); it.Valid(); it.Next() {
		var rec P
		err := it.Item().Value(func(val []byte) error {
			var derr error
			rec, derr = c.decode(val)
			return derr
		})
		if err != nil {
			return nil, err
		}
		if filter == nil || filter(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// =============================================================================
// Public operations
// =============================================================================

// Get returns the record or ErrNotFound.
func (c *Collection[T, P]) Get(ctx context.Context, companyID, id string) (P, error) {
	var rec P
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = c.GetTxn(txn, companyID, id)
		return err
	})
	return rec, err
}

// Put creates or replaces a record. It assigns an ID on first save and
// maintains the timestamps.
func (c *Collection[T, P]) Put(ctx context.Context, rec P) error {
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return c.PutTxn(txn, rec)
	})
}

// Delete removes a record. Missing records return ErrNotFound.
func (c *Collection[T, P]) Delete(ctx context.Context, companyID, id string) error {
	return c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := c.key(companyID, id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Update loads a record, applies fn and writes it back in one transaction.
//
// Description:
//
//	fn may be called more than once when the commit conflicts with a
//	concurrent writer, so it must only mutate the record it is given.
//	Returning an error from fn aborts without writing.
//
// Outputs:
//
//	P - The record as written.
//	error - ErrNotFound, fn's error, or a storage error.
func (c *Collection[T, P]) Update(ctx context.Context, companyID, id string, fn func(P) error) (P, error) {
	var out P
	err := c.db.WithTxn(ctx, func(txn *badger.Txn) error {
		rec, err := c.GetTxn(txn, companyID, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := c.PutTxn(txn, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns a company's records accepted by filter, in key order.
// A nil filter accepts everything.
func (c *Collection[T, P]) List(ctx context.Context, companyID string, filter func(P) bool) ([]P, error) {
	var out []P
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = c.scan(txn, c.companyPrefix(companyID), filter)
		return err
	})
	return out, err
}

// ListAll returns matching records across every company.
func (c *Collection[T, P]) ListAll(ctx context.Context, filter func(P) bool) ([]P, error) {
	var out []P
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		out, err = c.scan(txn, []byte(c.name+"/"), filter)
		return err
	})
	return out, err
}

// Count returns the number of matching records for a company.
func (c *Collection[T, P]) Count(ctx context.Context, companyID string, filter func(P) bool) (int, error) {
	recs, err := c.List(ctx, companyID, filter)
	return len(recs), err
}

// FindOne returns the first matching record or ErrNotFound.
func (c *Collection[T, P]) FindOne(ctx context.Context, companyID string, filter func(P) bool) (P, error) {
	var found P
	err := c.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = c.companyPrefix(companyID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec P
			err := it.Item().Value(func(val []byte) error {
				var derr error
				rec, derr = c.decode(val)
				return derr
			})
			if err != nil {
				return err
			}
			if filter == nil || filter(rec) {
				found = rec
				return nil
			}
		}
		return ErrNotFound
	})
	return found, err
}

// DeleteWhere removes every record across companies accepted by filter and
// returns how many were deleted.
func (c *Collection[T, P]) DeleteWhere(ctx context.Context, filter func(P) bool) (int, error) {
	recs, err := c.ListAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, rec := range recs {
		if err := c.Delete(ctx, rec.GetCompanyID(), rec.GetID()); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
