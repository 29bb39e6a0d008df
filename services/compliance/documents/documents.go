// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package documents manages uploaded compliance documents: the record in
// the repository and the file content in a blobs.Store.
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/vroomx/services/compliance/blobs"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// MaxUploadBytes is the largest accepted upload.
const MaxUploadBytes int64 = 10 << 20

const defaultExpiringDays = 30

// contentTypes maps every accepted extension to the type stored with the
// blob.
var contentTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Service implements the document lifecycle.
type Service struct {
	repo  *storage.Repository
	blobs blobs.Store
}

// NewService creates a Service.
func NewService(repo *storage.Repository, store blobs.Store) *Service {
	return &Service{repo: repo, blobs: store}
}

var errDeleted = datatypes.NotFound("Document")

func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.NotFound("Document")
	}
	return err
}

// fileType returns the lower-case extension of filename when it is one of
// the accepted types.
func fileType(filename string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if _, ok := contentTypes[ext]; !ok {
		return "", datatypes.BadRequest("File type not allowed. Allowed types: .pdf, .jpg, .jpeg, .png, .doc, .docx, .xls, .xlsx")
	}
	return ext, nil
}

// countingReader counts bytes and fails once more than limit pass through.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, errTooLarge
	}
	return n, err
}

var errTooLarge = datatypes.NewAppError(http.StatusRequestEntityTooLarge, "File exceeds the %d MB limit", MaxUploadBytes>>20)

// storeBlob validates and writes one upload, returning its key, type and
// size. Nothing is left in the store when it fails.
func (s *Service) storeBlob(ctx context.Context, companyID, category, filename string, r io.Reader, size int64) (string, string, int64, error) {
	ext, err := fileType(filename)
	if err != nil {
		return "", "", 0, err
	}
	if size > MaxUploadBytes {
		return "", "", 0, errTooLarge
	}
	key := blobs.NewKey(companyID, category, ext)
	cr := &countingReader{r: r, limit: MaxUploadBytes}
	if err := s.blobs.Put(ctx, key, cr, contentTypes[ext]); err != nil {
		_ = s.blobs.Delete(ctx, key)
		if errors.Is(err, errTooLarge) {
			return "", "", 0, errTooLarge
		}
		return "", "", 0, fmt.Errorf("store upload: %w", err)
	}
	return key, ext, cr.n, nil
}

// checkType rejects a documentType that is not in the category's catalogue.
func checkType(category, documentType string) error {
	if documentType == "" {
		return nil
	}
	for _, t := range datatypes.DocumentTypes[category] {
		if t.Value == documentType {
			return nil
		}
	}
	return datatypes.BadRequest("Unknown document type %q for category %q", documentType, category)
}

// UploadMeta describes a new document.
type UploadMeta struct {
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	DocumentType string     `json:"documentType,omitempty"`
	IssueDate    *time.Time `json:"issueDate,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	DriverID     string     `json:"driverId,omitempty"`
	VehicleID    string     `json:"vehicleId,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

// Upload stores a new document.
//
// Description:
//
//	The file must carry an accepted extension and be no larger than
//	MaxUploadBytes. size is the declared length, or -1 when unknown; the
//	limit is also enforced while streaming. The record starts at version 1
//	and its status is derived from the expiry date.
//
// Outputs:
//
//	*datatypes.Document - The stored record.
//	error - 400/413 AppError, *datatypes.ValidationError or storage error.
func (s *Service) Upload(ctx context.Context, companyID, userID string, meta UploadMeta, filename string, r io.Reader, size int64) (*datatypes.Document, error) {
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = filepath.Base(filename)
	}
	doc := &datatypes.Document{
		Base:         datatypes.Base{CompanyID: companyID},
		Name:         name,
		Category:     meta.Category,
		DocumentType: meta.DocumentType,
		IssueDate:    meta.IssueDate,
		ExpiryDate:   meta.ExpiryDate,
		DriverID:     meta.DriverID,
		VehicleID:    meta.VehicleID,
		Notes:        meta.Notes,
		UploadedBy:   userID,
	}
	if err := datatypes.Validate(doc); err != nil {
		return nil, err
	}
	if err := checkType(doc.Category, doc.DocumentType); err != nil {
		return nil, err
	}

	key, ext, n, err := s.storeBlob(ctx, companyID, doc.Category, filename, r, size)
	if err != nil {
		return nil, err
	}
	doc.StorageKey = key
	doc.FileType = ext
	doc.ContentType = contentTypes[ext]
	doc.FileSize = n
	rules.PrepareDocument(doc, s.repo.Now())

	if err := s.repo.Documents.Put(ctx, doc); err != nil {
		_ = s.blobs.Delete(ctx, key)
		return nil, err
	}
	slog.Info("Document uploaded", "company_id", companyID, "document_id", doc.ID, "category", doc.Category, "size", n)
	return doc, nil
}

// Get returns a live document.
func (s *Service) Get(ctx context.Context, companyID, id string) (*datatypes.Document, error) {
	doc, err := s.repo.Documents.Get(ctx, companyID, id)
	if err != nil {
		return nil, notFound(err)
	}
	if doc.IsDeleted {
		return nil, errDeleted
	}
	return doc, nil
}

// update applies fn to a live document and re-derives its status.
func (s *Service) update(ctx context.Context, companyID, id string, fn func(*datatypes.Document) error) (*datatypes.Document, error) {
	now := s.repo.Now()
	doc, err := s.repo.Documents.Update(ctx, companyID, id, func(d *datatypes.Document) error {
		if d.IsDeleted {
			return errDeleted
		}
		if err := fn(d); err != nil {
			return err
		}
		rules.PrepareDocument(d, now)
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return doc, nil
}

// Replace uploads a new version of a document. The previous blob is kept
// and listed in PreviousVersions; verification is reset.
func (s *Service) Replace(ctx context.Context, companyID, id, userID, filename string, r io.Reader, size int64, expiryDate *time.Time) (*datatypes.Document, error) {
	current, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	key, ext, n, err := s.storeBlob(ctx, companyID, current.Category, filename, r, size)
	if err != nil {
		return nil, err
	}
	now := s.repo.Now()
	doc, err := s.update(ctx, companyID, id, func(d *datatypes.Document) error {
		d.PreviousVersions = append(d.PreviousVersions, datatypes.DocumentVersion{
			StorageKey: d.StorageKey,
			Version:    d.Version,
			ReplacedAt: now,
		})
		d.Version++
		d.StorageKey = key
		d.FileType = ext
		d.ContentType = contentTypes[ext]
		d.FileSize = n
		d.UploadedBy = userID
		d.Verified = false
		d.VerifiedBy = ""
		d.VerifiedAt = nil
		if expiryDate != nil {
			d.ExpiryDate = expiryDate
		}
		return nil
	})
	if err != nil {
		_ = s.blobs.Delete(ctx, key)
		return nil, err
	}
	slog.Info("Document replaced", "company_id", companyID, "document_id", id, "version", doc.Version)
	return doc, nil
}

// Verify marks a document as reviewed.
func (s *Service) Verify(ctx context.Context, companyID, id, userID string) (*datatypes.Document, error) {
	now := s.repo.Now()
	return s.update(ctx, companyID, id, func(d *datatypes.Document) error {
		d.Verified = true
		d.VerifiedBy = userID
		d.VerifiedAt = datatypes.TimePtr(now)
		return nil
	})
}

// Patch holds the fields Update may change.
type Patch struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,min=1"`
	DocumentType *string    `json:"documentType,omitempty"`
	IssueDate    *time.Time `json:"issueDate,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	DriverID     *string    `json:"driverId,omitempty"`
	VehicleID    *string    `json:"vehicleId,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
}

// Update applies patch and re-derives the status.
func (s *Service) Update(ctx context.Context, companyID, id string, patch Patch) (*datatypes.Document, error) {
	if err := datatypes.Validate(&patch); err != nil {
		return nil, err
	}
	return s.update(ctx, companyID, id, func(d *datatypes.Document) error {
		if patch.DocumentType != nil {
			if err := checkType(d.Category, *patch.DocumentType); err != nil {
				return err
			}
			d.DocumentType = *patch.DocumentType
		}
		if patch.Name != nil {
			d.Name = *patch.Name
		}
		if patch.IssueDate != nil {
			d.IssueDate = patch.IssueDate
		}
		if patch.ExpiryDate != nil {
			d.ExpiryDate = patch.ExpiryDate
		}
		if patch.DriverID != nil {
			d.DriverID = *patch.DriverID
		}
		if patch.VehicleID != nil {
			d.VehicleID = *patch.VehicleID
		}
		if patch.Notes != nil {
			d.Notes = *patch.Notes
		}
		return nil
	})
}

// SoftDelete hides a document. Its blobs stay in the store until the
// retention purge removes the record.
func (s *Service) SoftDelete(ctx context.Context, companyID, id string) error {
	now := s.repo.Now()
	_, err := s.repo.Documents.Update(ctx, companyID, id, func(d *datatypes.Document) error {
		if d.IsDeleted {
			return errDeleted
		}
		d.IsDeleted = true
		d.DeletedAt = datatypes.TimePtr(now)
		return nil
	})
	return notFound(err)
}

// Download opens the current blob of a live document. The caller must
// close the reader.
func (s *Service) Download(ctx context.Context, companyID, id string) (io.ReadCloser, *datatypes.Document, error) {
	doc, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, doc.StorageKey)
	if errors.Is(err, blobs.ErrNotFound) {
		return nil, nil, datatypes.NotFound("File")
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

// Filter selects documents for List.
type Filter struct {
	Category     string
	DocumentType string
	Status       string
	DriverID     string
	VehicleID    string
	Search       string
	Page         int
	Limit        int
}

func (f Filter) match(d *datatypes.Document) bool {
	if d.IsDeleted {
		return false
	}
	if f.Category != "" && d.Category != f.Category {
		return false
	}
	if f.DocumentType != "" && d.DocumentType != f.DocumentType {
		return false
	}
	if f.Status != "" && string(d.Status) != f.Status {
		return false
	}
	if f.DriverID != "" && d.DriverID != f.DriverID {
		return false
	}
	if f.VehicleID != "" && d.VehicleID != f.VehicleID {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(d.Name), q) && !strings.Contains(strings.ToLower(d.Notes), q) {
			return false
		}
	}
	return true
}

// List returns live documents, newest first.
func (s *Service) List(ctx context.Context, companyID string, f Filter) (datatypes.Page[*datatypes.Document], error) {
	docs, err := s.repo.Documents.List(ctx, companyID, f.match)
	if err != nil {
		return datatypes.Page[*datatypes.Document]{}, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return storage.Paginate(docs, f.Page, f.Limit), nil
}

// Expiring splits live documents with an expiry date into those expiring
// within days and those already expired, each sorted by expiry.
type Expiring struct {
	Expiring []*datatypes.Document `json:"expiring"`
	Expired  []*datatypes.Document `json:"expired"`
}

// Expiring looks days ahead; days < 1 means 30.
func (s *Service) Expiring(ctx context.Context, companyID string, days int) (Expiring, error) {
	if days < 1 {
		days = defaultExpiringDays
	}
	now := s.repo.Now()
	horizon := now.AddDate(0, 0, days)
	docs, err := s.repo.Documents.List(ctx, companyID, func(d *datatypes.Document) bool {
		return !d.IsDeleted && d.ExpiryDate != nil && !d.ExpiryDate.After(horizon)
	})
	if err != nil {
		return Expiring{}, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ExpiryDate.Before(*docs[j].ExpiryDate) })
	out := Expiring{Expiring: []*datatypes.Document{}, Expired: []*datatypes.Document{}}
	for _, d := range docs {
		if d.ExpiryDate.Before(now) {
			out.Expired = append(out.Expired, d)
		} else {
			out.Expiring = append(out.Expiring, d)
		}
	}
	return out, nil
}

// StatusCounts tallies documents by status.
type StatusCounts struct {
	Total         int `json:"total"`
	Valid         int `json:"valid"`
	DueSoon       int `json:"dueSoon"`
	Expired       int `json:"expired"`
	Missing       int `json:"missing"`
	PendingReview int `json:"pendingReview"`
}

func (c *StatusCounts) add(status datatypes.ItemStatus) {
	c.Total++
	switch status {
	case datatypes.StatusValid:
		c.Valid++
	case datatypes.StatusDueSoon:
		c.DueSoon++
	case datatypes.StatusExpired:
		c.Expired++
	case datatypes.StatusMissing:
		c.Missing++
	case datatypes.StatusPendingReview:
		c.PendingReview++
	}
}

// CategoryCounts is StatusCounts for one category.
type CategoryCounts struct {
	Category string `json:"category"`
	StatusCounts
}

// Stats is the document summary.
type Stats struct {
	Totals     StatusCounts     `json:"totals"`
	ByCategory []CategoryCounts `json:"byCategory"`
}

// Stats counts live documents overall and per category.
func (s *Service) Stats(ctx context.Context, companyID string) (Stats, error) {
	docs, err := s.repo.Documents.List(ctx, companyID, func(d *datatypes.Document) bool { return !d.IsDeleted })
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByCategory: []CategoryCounts{}}
	byCat := map[string]*StatusCounts{}
	for _, d := range docs {
		st.Totals.add(d.Status)
		c, ok := byCat[d.Category]
		if !ok {
			c = &StatusCounts{}
			byCat[d.Category] = c
		}
		c.add(d.Status)
	}
	for cat, c := range byCat {
		st.ByCategory = append(st.ByCategory, CategoryCounts{Category: cat, StatusCounts: *c})
	}
	sort.Slice(st.ByCategory, func(i, j int) bool { return st.ByCategory[i].Category < st.ByCategory[j].Category })
	return st, nil
}

// Types returns the document type catalogue.
func (s *Service) Types() map[string][]datatypes.DocumentType {
	return datatypes.DocumentTypes
}

// RefreshStatuses re-derives the status of every live document with an
// expiry date and returns how many changed.
func (s *Service) RefreshStatuses(ctx context.Context) (int, error) {
	now := s.repo.Now()
	stale, err := s.repo.Documents.ListAll(ctx, func(d *datatypes.Document) bool {
		if d.IsDeleted || d.ExpiryDate == nil {
			return false
		}
		return rules.DocumentStatus(d.ExpiryDate, now) != d.Status
	})
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, d := range stale {
		_, err := s.repo.Documents.Update(ctx, d.CompanyID, d.ID, func(d *datatypes.Document) error {
			rules.PrepareDocument(d, now)
			return nil
		})
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	if changed > 0 {
		slog.Info("Document statuses refreshed", "count", changed)
	}
	return changed, nil
}
