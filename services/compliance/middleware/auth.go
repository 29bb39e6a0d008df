// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gin middleware of the compliance API:
// authentication, company scoping, permissions, error rendering, login
// rate limiting, maintenance mode and request metrics.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
)

// authInfoKey is the gin context key for the authenticated user.
const authInfoKey = "vroomx_auth_info"

// SetAuthInfo stores the authenticated user in the gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user, or nil.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// abort writes the standard error envelope and stops the chain.
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// AuthMiddleware validates the bearer token with provider and stores the
// resulting AuthInfo in the context.
//
// # Description
//
// A missing or malformed Authorization header is passed to the provider
// as an empty token so providers that accept anonymous requests still
// work. Any provider error aborts with 401.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				abort(c, http.StatusUnauthorized, "Not authorized, token invalid")
				return
			}
			slog.Warn("Authentication failed", "error", err)
			abort(c, http.StatusUnauthorized, "Authentication failed")
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// CompanyScope rejects authenticated users without a company.
func CompanyScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info == nil {
			abort(c, http.StatusUnauthorized, "Not authorized")
			return
		}
		if info.CompanyID == "" {
			abort(c, http.StatusForbidden, "No company associated with this account")
			return
		}
		c.Next()
	}
}

// RequirePermission aborts with 403 unless authz allows action on
// resource for the current user.
func RequirePermission(authz extensions.AuthzProvider, resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info == nil {
			abort(c, http.StatusUnauthorized, "Not authorized")
			return
		}
		err := authz.Authorize(c.Request.Context(), extensions.AuthzRequest{
			User:         info,
			Action:       action,
			ResourceType: resource,
			ResourceID:   c.Param("id"),
		})
		if err != nil {
			abort(c, http.StatusForbidden, fmt.Sprintf("You do not have permission to %s %s", action, resource))
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the user holds one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := GetAuthInfo(c)
		if info == nil {
			abort(c, http.StatusUnauthorized, "Not authorized")
			return
		}
		if !info.HasRole(roles...) {
			abort(c, http.StatusForbidden, fmt.Sprintf("Role %s is not authorized to access this route", info.Role))
			return
		}
		c.Next()
	}
}

// extractBearerToken gets the token from the Authorization header.
// Returns an empty string if the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
