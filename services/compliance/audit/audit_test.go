// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

var now = time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo  *storage.Repository
	path  string
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f := &fixture{clock: now, path: filepath.Join(t.TempDir(), "audit.log")}
	f.repo = storage.NewRepository(db, func() time.Time { return f.clock })
	return f
}

func (f *fixture) logger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(context.Background(), f.repo, f.path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func (f *fixture) log(t *testing.T, l *Logger, cid, action, resource string) {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, l.Log(context.Background(), extensions.AuditEvent{
		Action:       action,
		ResourceType: resource,
		ResourceID:   resource + "-1",
		UserID:       "u1",
		UserEmail:    "owner@acme.test",
		CompanyID:    cid,
		Metadata:     map[string]any{"count": 3},
	}))
}

func TestNewLogger_FilePermissions(t *testing.T) {
	f := newFixture(t)
	f.logger(t)

	info, err := os.Stat(f.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLog_ChainsRecords(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	ctx := context.Background()

	f.log(t, l, "c1", "create", "driver")
	f.log(t, l, "c2", "login", "user")
	f.log(t, l, "c1", "delete", "vehicle")

	records, err := f.repo.AuditRecords.ListAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	res := Verify(records)
	assert.True(t, res.Valid, res.Reason)
	assert.Equal(t, 3, res.Checked)

	first, err := f.repo.AuditRecords.Get(ctx, "c1", recordID(1))
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.True(t, first.Timestamp.Equal(now.Add(time.Minute)))

	file, err := os.Open(f.path)
	require.NoError(t, err)
	defer file.Close()
	var lines []datatypes.AuditRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var r datatypes.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, lines[0].EntryHash, lines[1].PrevHash)
	assert.Equal(t, lines[1].EntryHash, lines[2].PrevHash)
}

func TestNewLogger_ResumesChain(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	f.log(t, l, "c1", "create", "driver")
	f.log(t, l, "c1", "update", "driver")
	require.NoError(t, l.Close())

	resumed := f.logger(t)
	f.log(t, resumed, "c1", "delete", "driver")

	res, err := resumed.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Reason)
	assert.Equal(t, 3, res.Checked)
}

func TestVerify_DetectsTampering(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		f.log(t, l, "c1", "update", "driver")
	}

	tests := []struct {
		name    string
		mutate  func([]*datatypes.AuditRecord) []*datatypes.AuditRecord
		brokeAt uint64
		reason  string
	}{
		{
			name: "edited action",
			mutate: func(rs []*datatypes.AuditRecord) []*datatypes.AuditRecord {
				rs[1].Action = "delete"
				return rs
			},
			brokeAt: 2,
			reason:  "entry hash mismatch",
		},
		{
			name: "removed record",
			mutate: func(rs []*datatypes.AuditRecord) []*datatypes.AuditRecord {
				return append(rs[:2:2], rs[3:]...)
			},
			brokeAt: 4,
			reason:  "sequence gap",
		},
		{
			name: "relinked record",
			mutate: func(rs []*datatypes.AuditRecord) []*datatypes.AuditRecord {
				rs[2].PrevHash = GenesisHash
				rs[2].EntryHash, _ = EntryHash(rs[2])
				return rs
			},
			brokeAt: 3,
			reason:  "previous hash mismatch",
		},
		{
			name: "forged genesis",
			mutate: func(rs []*datatypes.AuditRecord) []*datatypes.AuditRecord {
				rs[0].PrevHash = rs[3].EntryHash
				return rs
			},
			brokeAt: 1,
			reason:  "first record does not link to genesis",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := f.repo.AuditRecords.ListAll(ctx, nil)
			require.NoError(t, err)
			res := Verify(tt.mutate(records))
			assert.False(t, res.Valid)
			assert.Equal(t, tt.brokeAt, res.BrokeAt)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}

	records, err := f.repo.AuditRecords.ListAll(ctx, nil)
	require.NoError(t, err)
	res := Verify(records[2:])
	assert.True(t, res.Valid, "a purged head anchors at the oldest surviving record")
	assert.True(t, Verify(nil).Valid)
}

func TestListAndQuery(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	ctx := context.Background()

	f.log(t, l, "c1", "create", "driver")
	f.log(t, l, "c1", "login", "user")
	f.log(t, l, "c2", "create", "driver")
	f.log(t, l, "c1", "delete", "driver")

	records, total, err := l.List(ctx, extensions.AuditFilter{CompanyID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, records, 3)
	assert.Equal(t, "delete", records[0].Action, "newest first")

	records, total, err = l.List(ctx, extensions.AuditFilter{CompanyID: "c1", ResourceType: "driver", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, records, 1)
	assert.Equal(t, "create", records[0].Action)

	records, _, err = l.List(ctx, extensions.AuditFilter{CompanyID: "c1", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, records)

	records, _, err = l.List(ctx, extensions.AuditFilter{
		StartTime: now.Add(2 * time.Minute),
		EndTime:   now.Add(4 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c2", records[0].CompanyID)

	events, err := l.Query(ctx, extensions.AuditFilter{CompanyID: "c1", Action: "login"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "user", events[0].ResourceType)
	assert.Equal(t, "owner@acme.test", events[0].UserEmail)
	assert.EqualValues(t, 3, events[0].Metadata["count"])
}

func TestLog_Concurrent(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log(ctx, extensions.AuditEvent{Action: "update", ResourceType: "task", CompanyID: "c1"})
		}()
	}
	wg.Wait()
	require.NoError(t, l.Flush(ctx))

	res, err := l.VerifyAll(ctx)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Reason)
	assert.Equal(t, 20, res.Checked)
}

func TestNewLogger_NoMirror(t *testing.T) {
	f := newFixture(t)
	l, err := NewLogger(context.Background(), f.repo, "")
	require.NoError(t, err)
	require.NoError(t, l.Log(context.Background(), extensions.AuditEvent{Action: "purge", ResourceType: "retention"}))
	assert.NoError(t, l.Flush(context.Background()))
	assert.NoError(t, l.Close())

	_, err = NewLogger(context.Background(), f.repo, filepath.Join(t.TempDir(), "missing", "audit.log"))
	assert.Error(t, err)
}

type recordingSink struct {
	extensions.NopAuditLogger
	events []extensions.AuditEvent
	err    error
}

func (s *recordingSink) Log(_ context.Context, e extensions.AuditEvent) error {
	s.events = append(s.events, e)
	return s.err
}

func TestAddSink_ForwardsStoredEvents(t *testing.T) {
	f := newFixture(t)
	l := f.logger(t)
	ok := &recordingSink{}
	failing := &recordingSink{err: assert.AnError}
	l.AddSink(ok)
	l.AddSink(failing)

	f.log(t, l, "c1", "create", "driver")

	require.Len(t, ok.events, 1)
	assert.Equal(t, "create", ok.events[0].Action)
	assert.Len(t, failing.events, 1)

	res, err := l.VerifyAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Checked)
}
