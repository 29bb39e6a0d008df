// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// ErrorHandler renders the last error handlers attached with c.Error.
//
// Description:
//
//	The response is {"success": false, "error": msg}. Validation failures
//	add the per-field "errors" list. Unclassified errors become 500; with
//	hideInternal their message is replaced so storage details never reach
//	clients. Nothing is written if the handler already wrote a response.
func ErrorHandler(hideInternal bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status, body := Render(err, hideInternal)
		if status >= http.StatusInternalServerError {
			slog.Error("Request failed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", err,
			)
		}
		c.JSON(status, body)
	}
}

// Render maps err onto a status and the error envelope.
func Render(err error, hideInternal bool) (int, gin.H) {
	var (
		appErr  *datatypes.AppError
		valErr  *datatypes.ValidationError
		valErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &appErr):
		return appErr.Status, gin.H{"success": false, "error": appErr.Message}
	case errors.As(err, &valErr):
		return http.StatusBadRequest, gin.H{"success": false, "error": valErr.Error(), "errors": valErr.Fields}
	case errors.As(err, &valErrs):
		return http.StatusBadRequest, gin.H{"success": false, "error": valErrs.Error()}
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, gin.H{"success": false, "error": "Resource not found"}
	case errors.Is(err, extensions.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"success": false, "error": "Not authorized"}
	case errors.Is(err, extensions.ErrForbidden):
		return http.StatusForbidden, gin.H{"success": false, "error": "Forbidden"}
	}
	msg := err.Error()
	if hideInternal {
		msg = "Internal server error"
	}
	return http.StatusInternalServerError, gin.H{"success": false, "error": msg}
}
