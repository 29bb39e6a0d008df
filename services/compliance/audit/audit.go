// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit implements the tamper-evident audit log.
//
// # Description
//
// Every event is persisted as a datatypes.AuditRecord linked to its
// predecessor by hash, and mirrored as a JSON line to a dedicated file.
// Altering or removing a stored record breaks the chain at that point,
// which Verify reports.
//
// # Thread Safety
//
// Logger is safe for concurrent use. Writes are serialised so sequence
// numbers and hash links stay consistent.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// GenesisHash is the prevHash of the first record in the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// RetentionDays is how long audit records are kept.
const RetentionDays = 730

// DefaultQueryLimit caps Query results when the filter sets no limit.
const DefaultQueryLimit = 100

// fileMode keeps the mirror file readable by the service account only.
const fileMode = 0o600

// Logger persists hash-chained audit records.
type Logger struct {
	repo *storage.Repository

	mu       sync.Mutex
	file     *os.File
	path     string
	sequence uint64
	prevHash string

	sinks []extensions.AuditLogger
}

// AddSink forwards every event stored from now on to sink. Sink failures
// are logged and never fail the stored record.
func (l *Logger) AddSink(sink extensions.AuditLogger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// NewLogger creates a Logger and resumes the chain from the newest stored
// record. path is the JSON lines mirror; empty disables the mirror.
//
// Outputs:
//
//	*Logger - Ready to use logger. Close it on shutdown.
//	error - Non-nil if the file cannot be opened or the chain state read.
func NewLogger(ctx context.Context, repo *storage.Repository, path string) (*Logger, error) {
	l := &Logger{repo: repo, path: path, prevHash: GenesisHash}
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		l.file = f
	}

	records, err := repo.AuditRecords.ListAll(ctx, nil)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to initialize chain state: %w", err)
	}
	for _, r := range records {
		if r.Sequence > l.sequence {
			l.sequence = r.Sequence
			l.prevHash = r.EntryHash
		}
	}

	slog.Info("Audit logger initialized", "log_path", path, "starting_sequence", l.sequence)
	return l, nil
}

// Log implements extensions.AuditLogger.
//
// Description:
//
//	The record is stored first and the chain advanced only once the store
//	succeeds. A failed mirror write is returned but the record stays in
//	the chain.
func (l *Logger) Log(ctx context.Context, event extensions.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := event.Timestamp
	if ts.IsZero() {
		ts = l.repo.Now()
	}
	rec := &datatypes.AuditRecord{
		Base:       datatypes.Base{ID: recordID(l.sequence + 1), CompanyID: event.CompanyID},
		Sequence:   l.sequence + 1,
		Action:     event.Action,
		Resource:   event.ResourceType,
		ResourceID: event.ResourceID,
		UserID:     event.UserID,
		UserEmail:  event.UserEmail,
		Details:    event.Metadata,
		IPAddress:  event.IPAddress,
		Timestamp:  ts.UTC(),
		PrevHash:   l.prevHash,
	}
	hash, err := EntryHash(rec)
	if err != nil {
		return err
	}
	rec.EntryHash = hash

	if err := l.repo.AuditRecords.Put(ctx, rec); err != nil {
		slog.Error("Failed to store audit record", "action", rec.Action, "error", err)
		return fmt.Errorf("store audit record: %w", err)
	}
	l.sequence = rec.Sequence
	l.prevHash = rec.EntryHash

	if l.file != nil {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			slog.Warn("Failed to mirror audit record", "sequence", rec.Sequence, "error", err)
			return fmt.Errorf("write audit record: %w", err)
		}
	}
	for _, sink := range l.sinks {
		if err := sink.Log(ctx, event); err != nil {
			slog.Warn("Audit sink rejected event", "action", event.Action, "error", err)
		}
	}
	slog.Debug("audit.logged",
		"sequence", rec.Sequence,
		"action", rec.Action,
		"resource", rec.Resource,
		"company_id", rec.CompanyID,
	)
	return nil
}

// List returns the records matching filter newest first, and the total
// before Offset and Limit are applied. An empty CompanyID searches every
// company.
func (l *Logger) List(ctx context.Context, filter extensions.AuditFilter) ([]*datatypes.AuditRecord, int, error) {
	match := func(r *datatypes.AuditRecord) bool {
		switch {
		case filter.UserID != "" && r.UserID != filter.UserID:
			return false
		case filter.Action != "" && r.Action != filter.Action:
			return false
		case filter.ResourceType != "" && r.Resource != filter.ResourceType:
			return false
		case filter.ResourceID != "" && r.ResourceID != filter.ResourceID:
			return false
		case !filter.StartTime.IsZero() && r.Timestamp.Before(filter.StartTime):
			return false
		case !filter.EndTime.IsZero() && !r.Timestamp.Before(filter.EndTime):
			return false
		}
		return true
	}

	var (
		records []*datatypes.AuditRecord
		err     error
	)
	if filter.CompanyID == "" {
		records, err = l.repo.AuditRecords.ListAll(ctx, match)
	} else {
		records, err = l.repo.AuditRecords.List(ctx, filter.CompanyID, match)
	}
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Sequence > records[j].Sequence })

	total := len(records)
	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return []*datatypes.AuditRecord{}, total, nil
		}
		records = records[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, total, nil
}

// Query implements extensions.AuditLogger.
func (l *Logger) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	records, _, err := l.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	events := make([]extensions.AuditEvent, 0, len(records))
	for _, r := range records {
		events = append(events, extensions.AuditEvent{
			Action:       r.Action,
			ResourceType: r.Resource,
			ResourceID:   r.ResourceID,
			UserID:       r.UserID,
			UserEmail:    r.UserEmail,
			CompanyID:    r.CompanyID,
			IPAddress:    r.IPAddress,
			Timestamp:    r.Timestamp,
			Metadata:     r.Details,
		})
	}
	return events, nil
}

// Flush implements extensions.AuditLogger by syncing the mirror file.
func (l *Logger) Flush(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Sync()
}

// Close syncs and closes the mirror file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := errors.Join(l.file.Sync(), l.file.Close())
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close audit log file: %w", err)
	}
	return nil
}

// VerifyResult reports the outcome of a chain check.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Checked int    `json:"checked"`
	BrokeAt uint64 `json:"brokeAt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Verify checks that records form an unbroken chain.
//
// Description:
//
//	records are ordered by sequence before checking. Sequences must be
//	contiguous, every entry hash must match its content and every prevHash
//	must equal the previous entry hash. Sequence 1 must link to
//	GenesisHash; a chain whose head was purged by retention is anchored at
//	its oldest surviving record.
func Verify(records []*datatypes.AuditRecord) VerifyResult {
	sorted := make([]*datatypes.AuditRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })

	res := VerifyResult{Valid: true}
	fail := func(seq uint64, reason string) VerifyResult {
		res.Valid = false
		res.BrokeAt = seq
		res.Reason = reason
		return res
	}
	for i, r := range sorted {
		if i == 0 {
			if r.Sequence == 1 && r.PrevHash != GenesisHash {
				return fail(r.Sequence, "first record does not link to genesis")
			}
		} else {
			prev := sorted[i-1]
			if r.Sequence != prev.Sequence+1 {
				return fail(r.Sequence, "sequence gap")
			}
			if r.PrevHash != prev.EntryHash {
				return fail(r.Sequence, "previous hash mismatch")
			}
		}
		hash, err := EntryHash(r)
		if err != nil || hash != r.EntryHash {
			return fail(r.Sequence, "entry hash mismatch")
		}
		res.Checked++
	}
	return res
}

// VerifyAll loads every stored record and verifies the chain.
func (l *Logger) VerifyAll(ctx context.Context) (VerifyResult, error) {
	records, err := l.repo.AuditRecords.ListAll(ctx, nil)
	if err != nil {
		return VerifyResult{}, err
	}
	return Verify(records), nil
}

// EntryHash computes the sha256 over a record's canonical fields, every
// field except EntryHash and the storage timestamps.
func EntryHash(r *datatypes.AuditRecord) (string, error) {
	details := []byte("null")
	if len(r.Details) > 0 {
		var err error
		if details, err = json.Marshal(r.Details); err != nil {
			return "", fmt.Errorf("marshal audit details: %w", err)
		}
	}
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		r.Sequence,
		r.ID,
		r.CompanyID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Action,
		r.Resource,
		r.ResourceID,
		r.UserID,
		r.UserEmail,
		r.IPAddress,
		details,
		r.PrevHash,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:]), nil
}

func recordID(seq uint64) string {
	return fmt.Sprintf("%012d", seq)
}

var _ extensions.AuditLogger = (*Logger)(nil)
