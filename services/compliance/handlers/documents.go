// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/documents"
)

// uploadField is the multipart field carrying the file.
const uploadField = "file"

// formDate parses an optional yyyy-mm-dd or RFC3339 form value.
func formDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.PostForm(key)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, datatypes.BadRequest("Invalid %s date: %s", key, v)
}

type uploadedFile struct {
	multipart.File
	name string
	size int64
}

// openUpload returns the uploaded file part. The body is capped at
// MaxUploadBytes plus 1 MB for form overhead; the exact file limit is
// enforced by the documents service.
func openUpload(c *gin.Context) (*uploadedFile, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, documents.MaxUploadBytes+1<<20)
	fh, err := c.FormFile(uploadField)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, datatypes.NewAppError(http.StatusRequestEntityTooLarge, "File exceeds the %d MB limit", documents.MaxUploadBytes>>20)
	}
	if err != nil {
		return nil, datatypes.BadRequest("No file uploaded")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, datatypes.BadRequest("Unreadable upload: %v", err)
	}
	return &uploadedFile{File: f, name: fh.Filename, size: fh.Size}, nil
}

// ListDocuments lists live documents filtered by category, documentType,
// status, driverId, vehicleId and search.
func ListDocuments(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		p, err := svc.List(c.Request.Context(), companyID(c), documents.Filter{
			Category:     c.Query("category"),
			DocumentType: c.Query("documentType"),
			Status:       c.Query("status"),
			DriverID:     c.Query("driverId"),
			VehicleID:    c.Query("vehicleId"),
			Search:       c.Query("search"),
			Page:         page,
			Limit:        limit,
		})
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, pageBody("documents", p))
	}
}

// GetDocument returns one live document.
func GetDocument(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svc.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"document": doc})
	}
}

// UploadDocument stores a multipart upload with its metadata form fields.
func UploadDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		up, err := openUpload(c)
		if err != nil {
			fail(c, err)
			return
		}
		defer up.Close()

		issue, err := formDate(c, "issueDate")
		if err != nil {
			fail(c, err)
			return
		}
		expiry, err := formDate(c, "expiryDate")
		if err != nil {
			fail(c, err)
			return
		}
		meta := documents.UploadMeta{
			Name:         c.PostForm("name"),
			Category:     c.PostForm("category"),
			DocumentType: c.PostForm("documentType"),
			IssueDate:    issue,
			ExpiryDate:   expiry,
			DriverID:     c.PostForm("driverId"),
			VehicleID:    c.PostForm("vehicleId"),
			Notes:        c.PostForm("notes"),
		}
		doc, err := svc.Upload(c.Request.Context(), companyID(c), userID(c), meta, up.name, up, up.size)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "upload", "document", doc.ID, map[string]any{
			"name":     doc.Name,
			"category": doc.Category,
		})
		ok(c, http.StatusCreated, gin.H{"document": doc})
	}
}

// ReplaceDocument uploads a new version of a document.
func ReplaceDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		up, err := openUpload(c)
		if err != nil {
			fail(c, err)
			return
		}
		defer up.Close()

		expiry, err := formDate(c, "expiryDate")
		if err != nil {
			fail(c, err)
			return
		}
		doc, err := svc.Replace(c.Request.Context(), companyID(c), c.Param("id"), userID(c), up.name, up, up.size, expiry)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "update", "document", doc.ID, map[string]any{"version": doc.Version})
		ok(c, http.StatusOK, gin.H{"document": doc})
	}
}

// UpdateDocument changes document metadata.
func UpdateDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch documents.Patch
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		doc, err := svc.Update(c.Request.Context(), companyID(c), c.Param("id"), patch)
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "update", "document", doc.ID, nil)
		ok(c, http.StatusOK, gin.H{"document": doc})
	}
}

// VerifyDocument marks a document as verified by the caller.
func VerifyDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := svc.Verify(c.Request.Context(), companyID(c), c.Param("id"), userID(c))
		if err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "verify", "document", doc.ID, nil)
		ok(c, http.StatusOK, gin.H{"document": doc})
	}
}

// DeleteDocument soft-deletes a document.
func DeleteDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.SoftDelete(c.Request.Context(), companyID(c), id); err != nil {
			fail(c, err)
			return
		}
		record(c.Request.Context(), audit, c, "delete", "document", id, nil)
		ok(c, http.StatusOK, gin.H{"message": "Document deleted"})
	}
}

// DownloadDocument streams the current file of a document.
func DownloadDocument(svc *documents.Service, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, doc, err := svc.Download(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		defer rc.Close()

		record(c.Request.Context(), audit, c, "download", "document", doc.ID, nil)
		contentType := doc.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		filename := doc.Name
		if doc.FileType != "" {
			filename = fmt.Sprintf("%s.%s", doc.Name, doc.FileType)
		}
		c.DataFromReader(http.StatusOK, doc.FileSize, contentType, rc, map[string]string{
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
		})
	}
}

// ExpiringDocuments lists documents expiring within ?days= (default 30)
// and those already expired.
func ExpiringDocuments(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		e, err := svc.Expiring(c.Request.Context(), companyID(c), queryInt(c, "days", 0))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"expiring": e.Expiring,
			"expired":  e.Expired,
		})
	}
}

// DocumentStats counts documents by status and category.
func DocumentStats(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Stats(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"stats": stats})
	}
}

// DocumentTypes returns the document type catalogue.
func DocumentTypes(svc *documents.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok(c, http.StatusOK, gin.H{"types": svc.Types()})
	}
}
