// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package blobs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// ============================================================================
// Keys
// ============================================================================

func TestNewKey(t *testing.T) {
	key := NewKey("c1", "insurance", ".PDF")
	assert.Regexp(t, regexp.MustCompile(`^c1/insurance/[0-9a-f-]{36}\.pdf$`), key)
	assert.True(t, validKey(key))

	assert.NotEqual(t, key, NewKey("c1", "insurance", "pdf"))

	noExt := NewKey("c1", "other", "")
	assert.Regexp(t, regexp.MustCompile(`^c1/other/[0-9a-f-]{36}$`), noExt)

	escaped := NewKey("../c2", "a/b", "png")
	assert.True(t, strings.HasPrefix(escaped, "__c2/a_b/"), escaped)
	assert.True(t, validKey(escaped))
}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"c1/driver/x.pdf", true},
		{"", false},
		{"/etc/passwd", false},
		{"c1/../c2/x.pdf", false},
		{"c1//x.pdf", false},
		{"c1\\x.pdf", false},
		{"./x.pdf", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, validKey(tt.key), tt.key)
	}
}

// ============================================================================
// LocalStore
// ============================================================================

func TestLocalStore_RoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blobs")
	s, err := NewLocalStore(root)
	require.NoError(t, err)
	ctx := context.Background()
	key := NewKey("c1", "driver", "pdf")

	require.NoError(t, s.Put(ctx, key, strings.NewReader("%PDF-1.4 cdl"), "application/pdf"))

	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())
	dirInfo, err := os.Stat(filepath.Join(root, "c1", "driver"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(dirPerm), dirInfo.Mode().Perm())

	r, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, r.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 cdl", string(data))

	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("v2")), ""))
	r, err = s.Get(ctx, key)
	require.NoError(t, err)
	data, _ = io.ReadAll(r)
	r.Close()
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "c1", "driver"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, key), ErrNotFound)
}

func TestLocalStore_RejectsBadKeys(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "../escape.txt", strings.NewReader("x"), ""))
	_, err = s.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
	assert.Error(t, s.Delete(ctx, "a/../../b"))
}

func TestLocalStore_CancelledContext(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "c1/x/y.pdf", strings.NewReader("x"), ""), context.Canceled)
	_, err = s.Get(ctx, "c1/x/y.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalStore_EmptyRoot(t *testing.T) {
	_, err := NewLocalStore("")
	assert.Error(t, err)
}

// ============================================================================
// GCSStore
// ============================================================================

func TestNewGCSStore_NonExistentSAKeyPath(t *testing.T) {
	_, err := NewGCSStore(context.Background(), "test-bucket", "/nonexistent/path/to/key.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")
	assert.Contains(t, err.Error(), "/nonexistent/path/to/key.json")
}

func TestNewGCSStore_EmptyBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), "", "")
	assert.Error(t, err)
}

func TestNewGCSStore_InvalidCredentialsFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "invalid_key.json")
	require.NoError(t, os.WriteFile(keyPath, []byte("not valid json"), 0o600))

	_, err := NewGCSStore(context.Background(), "test-bucket", keyPath)
	assert.Error(t, err)
}

func TestGCSStore_RejectsBadKeys(t *testing.T) {
	s, err := NewGCSStore(context.Background(), "test-bucket", "", option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "../escape.txt", strings.NewReader("x"), ""))
	_, err = s.Get(ctx, "")
	assert.Error(t, err)
	assert.Error(t, s.Delete(ctx, "/abs"))
}
