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

// Clearinghouse query results.
const (
	QueryResultClear          = "clear"
	QueryResultViolationFound = "violation_found"
	QueryResultPending        = "pending"
)

// Consent is the driver's consent to a Clearinghouse query.
type Consent struct {
	ConsentDate   *time.Time `json:"consentDate,omitempty"`
	ConsentMethod string     `json:"consentMethod,omitempty" validate:"omitempty,oneof=electronic paper"`
}

// ClearinghouseQuery is one query against the FMCSA Drug & Alcohol
// Clearinghouse. Persisting a query syncs its outcome onto the driver.
type ClearinghouseQuery struct {
	Base
	DriverID           string    `json:"driverId" validate:"required"`
	QueryType          string    `json:"queryType" validate:"required,oneof=full limited"`
	QueryDate          time.Time `json:"queryDate" validate:"required"`
	QueryPurpose       string    `json:"queryPurpose" validate:"required,oneof=pre_employment annual other"`
	Result             string    `json:"result" validate:"required,oneof=clear violation_found pending"`
	Consent            Consent   `json:"consent"`
	ConfirmationNumber string    `json:"confirmationNumber,omitempty"`
	ResultDocumentURL  string    `json:"resultDocumentUrl,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	CreatedBy          string    `json:"createdBy,omitempty"`
}
