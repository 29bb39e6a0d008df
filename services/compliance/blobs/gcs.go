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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps blobs as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucketName string
}

// NewGCSStore connects to bucketName.
//
// Description:
//
//	When saKeyPath is set the service account key file is used, otherwise
//	the client falls back to Application Default Credentials. Extra
//	options are passed to storage.NewClient after the credentials, which
//	lets callers point the client at an emulator.
//
// Outputs:
//
//	*GCSStore - The connected store.
//	error - The key file is missing or the client could not be built.
func NewGCSStore(ctx context.Context, bucketName, saKeyPath string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	var clientOpts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(saKeyPath))
	}
	clientOpts = append(clientOpts, opts...)

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucketName: bucketName}, nil
}

func (s *GCSStore) object(key string) (*storage.ObjectHandle, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("invalid blob key %q", key)
	}
	return s.client.Bucket(s.bucketName).Object(key), nil
}

// Put uploads r to the object named key.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentType
	if writer.ContentType == "" {
		writer.ContentType = "application/octet-stream"
	}
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		writer.Close()
		return fmt.Errorf("failed to copy blob to GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

// Get opens a reader on the object.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", key, err)
	}
	return r, nil
}

// Delete removes the object.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	err = obj.Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
