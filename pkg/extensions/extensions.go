// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the pluggable boundaries of the VroomX service:
// authentication, authorization and audit logging.
//
// The compliance service wires its built-in implementations (session
// tokens, the role permission matrix, the hash-chained audit log) into a
// ServiceOptions value. Callers embedding the service may replace any of
// them, for example with an SSO-backed AuthProvider.
//
// Usage:
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(sessionAuth).
//	    WithAudit(chainLogger)
//	svc, err := compliance.New(cfg, &opts)
package extensions

// ServiceOptions groups the pluggable implementations.
//
// Fields left nil are filled by the service with its built-in
// implementations.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	AuthProvider AuthProvider

	// AuthzProvider checks role permissions.
	AuthzProvider AuthzProvider

	// AuditLogger records compliance-relevant events.
	AuditLogger AuditLogger
}

// DefaultOptions returns no-op implementations for every extension point.
// Useful for tests that exercise routes without authentication.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// WithAuth returns a copy with the AuthProvider replaced.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy with the AuthzProvider replaced.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy with the AuditLogger replaced.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
