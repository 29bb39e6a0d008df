// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// AuditRecord is one persisted, hash-chained audit entry.
//
// EntryHash covers every other field including PrevHash, so altering or
// removing an entry breaks the chain at that point.
type AuditRecord struct {
	Base
	Sequence   uint64         `json:"sequence"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resourceId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	UserEmail  string         `json:"userEmail,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	IPAddress  string         `json:"ipAddress,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	PrevHash   string         `json:"prevHash"`
	EntryHash  string         `json:"entryHash"`
}
