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

// Test types (49 CFR 382).
const (
	TestPreEmployment       = "pre_employment"
	TestRandom              = "random"
	TestPostAccident        = "post_accident"
	TestReasonableSuspicion = "reasonable_suspicion"
	TestReturnToDuty        = "return_to_duty"
	TestFollowUp            = "follow_up"
)

// Overall test results.
const (
	ResultNegative  = "negative"
	ResultPositive  = "positive"
	ResultRefused   = "refused"
	ResultCancelled = "cancelled"
	ResultPending   = "pending"
)

// TestPanel is the drug or alcohol half of a test event.
type TestPanel struct {
	Performed bool   `json:"performed"`
	Result    string `json:"result,omitempty"`
}

// ClearinghouseReport records reporting a violation to the Clearinghouse.
type ClearinghouseReport struct {
	Reported           bool       `json:"reported"`
	ReportDate         *time.Time `json:"reportDate,omitempty"`
	ReportType         string     `json:"reportType,omitempty"`
	ConfirmationNumber string     `json:"confirmationNumber,omitempty"`
}

// ReturnToDuty tracks the SAP process after a violation.
type ReturnToDuty struct {
	SAPReferralDate *time.Time `json:"sapReferralDate,omitempty"`
	ClearedForDuty  bool       `json:"clearedForDuty"`
	ClearedDate     *time.Time `json:"clearedDate,omitempty"`
}

// DrugAlcoholTest is one testing event for a driver.
type DrugAlcoholTest struct {
	Base
	DriverID      string              `json:"driverId" validate:"required"`
	TestType      string              `json:"testType" validate:"required,oneof=pre_employment random post_accident reasonable_suspicion return_to_duty follow_up"`
	TestDate      time.Time           `json:"testDate" validate:"required"`
	OverallResult string              `json:"overallResult" validate:"omitempty,oneof=negative positive refused cancelled pending"`
	Status        string              `json:"status" validate:"omitempty,oneof=scheduled completed no_show cancelled"`
	DrugTest      TestPanel           `json:"drugTest"`
	AlcoholTest   TestPanel           `json:"alcoholTest"`
	Clearinghouse ClearinghouseReport `json:"clearinghouse"`
	ReturnToDuty  ReturnToDuty        `json:"returnToDuty"`
	Notes         string              `json:"notes,omitempty"`
}

// IsViolation reports whether the result must be reported to the
// Clearinghouse.
func (t *DrugAlcoholTest) IsViolation() bool {
	return t.OverallResult == ResultPositive || t.OverallResult == ResultRefused
}
