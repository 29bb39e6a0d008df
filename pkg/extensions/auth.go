// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication fails.
// Implementations should wrap this error with additional context.
//
// Example:
//
//	if claims.Expiry.Time().Before(now) {
//	    return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned by an AuthzProvider when an authenticated user
// lacks the permission for an action.
var ErrForbidden = errors.New("forbidden")

// AuthInfo contains identity information returned after successful authentication.
//
// Every VroomX user belongs to exactly one company and holds one role inside
// it. CompanyID scopes every data access; Role drives the permission matrix.
//
// Example:
//
//	info := &AuthInfo{
//	    UserID:    "7b1c...",
//	    Email:     "safety@acme-freight.com",
//	    CompanyID: "c2a9...",
//	    Role:      "safety_manager",
//	}
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty.
	UserID string

	// Email is the user's login email.
	Email string

	// Name is the display name used in history entries and audit records.
	Name string

	// CompanyID is the tenant the user acts for. Empty means the user is not
	// attached to a company and every company-scoped route rejects them.
	CompanyID string

	// Role is one of owner, admin, safety_manager, dispatcher, driver, viewer.
	Role string
}

// HasRole reports whether the user holds any of the given roles.
func (a *AuthInfo) HasRole(roles ...string) bool {
	if a == nil {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// The built-in implementation validates HS256 session tokens issued at
// login. Deployments behind an identity proxy can supply their own.
//
// Thread Safety: Implementations must be safe for concurrent use.
type AuthProvider interface {
	// Validate checks if the token is valid and returns the user's identity.
	//
	// Returns ErrUnauthorized (or a wrapped form) for invalid, expired or
	// missing tokens, and other errors for infrastructure failures.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an authorization check.
type AuthzRequest struct {
	// User is the authenticated user making the request.
	User *AuthInfo

	// Action is the operation being attempted: view, edit, delete, upload, export.
	Action string

	// ResourceType is the permission resource: drivers, vehicles, violations,
	// accidents, drugAlcohol, documents, reports.
	ResourceType string

	// ResourceID is the specific record (optional).
	ResourceID string
}

// AuthzProvider decides whether a user may perform an action.
//
// Thread Safety: Implementations must be safe for concurrent use.
type AuthzProvider interface {
	// Authorize returns nil when the action is permitted and ErrForbidden
	// (or a wrapped form) when it is not.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NopAuthProvider accepts every token as a local owner. It is intended for
// tests and single-user local runs only.
type NopAuthProvider struct{}

// Validate always returns the local owner identity.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID:    "local-user",
		Name:      "Local User",
		CompanyID: "local-company",
		Role:      "owner",
	}, nil
}

// NopAuthzProvider allows every action.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
