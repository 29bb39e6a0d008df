// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package blobs stores uploaded document content.
//
// # Description
//
// Store is implemented by LocalStore for single-node installs and by
// GCSStore for deployments backed by a Google Cloud Storage bucket. Keys
// are slash separated and produced by NewKey, so they never contain path
// traversal segments.
//
// # Thread Safety
//
// Both implementations are safe for concurrent use.
package blobs

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Delete for a key that does not exist.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes blobs by key.
type Store interface {
	// Put writes r under key, replacing any existing content.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get opens the blob. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob.
	Delete(ctx context.Context, key string) error
}

// NewKey builds a fresh key of the form {companyID}/{category}/{uuid}.{ext}.
func NewKey(companyID, category, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	return path.Join(safe(companyID), safe(category), name)
}

// safe strips separators so one segment cannot escape its directory.
func safe(segment string) string {
	segment = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(segment)
	if segment == "" {
		return "_"
	}
	return segment
}

// validKey rejects keys that are empty, absolute or contain "..".
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
