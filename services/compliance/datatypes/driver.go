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

// DriverStatus is the employment state of a driver.
type DriverStatus string

const (
	DriverActive     DriverStatus = "active"
	DriverInactive   DriverStatus = "inactive"
	DriverTerminated DriverStatus = "terminated"
	DriverSuspended  DriverStatus = "suspended"
)

// ItemStatus is the derived state of a single compliance item (CDL,
// medical card, MVR review, Clearinghouse query) or of a document.
type ItemStatus string

const (
	StatusValid         ItemStatus = "valid"
	StatusDueSoon       ItemStatus = "due_soon"
	StatusExpired       ItemStatus = "expired"
	StatusMissing       ItemStatus = "missing"
	StatusPendingReview ItemStatus = "pending_review"
	StatusCurrent       ItemStatus = "current"
	StatusDue           ItemStatus = "due"
	StatusOverdue       ItemStatus = "overdue"
)

// OverallStatus summarises a driver's compliance items.
type OverallStatus string

const (
	OverallCompliant    OverallStatus = "compliant"
	OverallWarning      OverallStatus = "warning"
	OverallNonCompliant OverallStatus = "non_compliant"
)

// Address is a postal address.
type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zipCode,omitempty"`
}

// CDL is the driver's commercial license.
type CDL struct {
	Number       string     `json:"number,omitempty"`
	State        string     `json:"state,omitempty"`
	Class        string     `json:"class,omitempty" validate:"omitempty,oneof=A B C"`
	Endorsements []string   `json:"endorsements,omitempty" validate:"dive,oneof=H N P S T X"`
	Restrictions []string   `json:"restrictions,omitempty"`
	IssueDate    *time.Time `json:"issueDate,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
}

// MedicalCard is the DOT medical examiner's certificate.
type MedicalCard struct {
	ExaminerName      string     `json:"examinerName,omitempty"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	CertificationType string     `json:"certificationType,omitempty"`
}

// EmploymentApplication records receipt of the signed application.
type EmploymentApplication struct {
	Complete     bool       `json:"complete"`
	DateReceived *time.Time `json:"dateReceived,omitempty"`
}

// EmploymentVerification is one previous-employer check.
type EmploymentVerification struct {
	EmployerName string     `json:"employerName"`
	VerifiedDate *time.Time `json:"verifiedDate,omitempty"`
}

// RoadTest is the road test certificate or its waiver.
type RoadTest struct {
	Date         *time.Time `json:"date,omitempty"`
	Waived       bool       `json:"waived"`
	ExaminerName string     `json:"examinerName,omitempty"`
}

// MVRReview is one annual motor vehicle record review.
type MVRReview struct {
	ReviewDate      time.Time `json:"reviewDate"`
	ReviewerName    string    `json:"reviewerName,omitempty"`
	ViolationsFound bool      `json:"violationsFound"`
	Notes           string    `json:"notes,omitempty"`
}

// DriverDocuments is the driver qualification file content.
type DriverDocuments struct {
	EmploymentApplication  EmploymentApplication    `json:"employmentApplication"`
	EmploymentVerification []EmploymentVerification `json:"employmentVerification,omitempty"`
	RoadTest               RoadTest                 `json:"roadTest"`
	MVRReviews             []MVRReview              `json:"mvrReviews,omitempty"`
}

// DriverClearinghouse is the denormalised Clearinghouse state on a driver.
// It is written by the Clearinghouse sync, never directly by clients.
type DriverClearinghouse struct {
	LastQueryDate *time.Time `json:"lastQueryDate,omitempty"`
	QueryType     string     `json:"queryType,omitempty"`
	Status        string     `json:"status,omitempty"`
	ConsentDate   *time.Time `json:"consentDate,omitempty"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
}

// ComplianceStatus is derived on every driver write.
type ComplianceStatus struct {
	Overall             OverallStatus `json:"overall"`
	CDLStatus           ItemStatus    `json:"cdlStatus"`
	MedicalStatus       ItemStatus    `json:"medicalStatus"`
	MVRStatus           ItemStatus    `json:"mvrStatus"`
	ClearinghouseStatus ItemStatus    `json:"clearinghouseStatus"`
}

// Driver is a CDL holder employed or contracted by the company.
type Driver struct {
	Base
	FirstName       string       `json:"firstName" validate:"required"`
	LastName        string       `json:"lastName" validate:"required"`
	DateOfBirth     *time.Time   `json:"dateOfBirth,omitempty"`
	Email           string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string       `json:"phone,omitempty"`
	Address         Address      `json:"address"`
	EmployeeID      string       `json:"employeeId,omitempty"`
	HireDate        *time.Time   `json:"hireDate,omitempty"`
	TerminationDate *time.Time   `json:"terminationDate,omitempty"`
	Status          DriverStatus `json:"status" validate:"omitempty,oneof=active inactive terminated suspended"`
	DriverType      string       `json:"driverType,omitempty" validate:"omitempty,oneof=company_driver owner_operator"`

	CDL           CDL                 `json:"cdl"`
	MedicalCard   MedicalCard         `json:"medicalCard"`
	Documents     DriverDocuments     `json:"documents"`
	Clearinghouse DriverClearinghouse `json:"clearinghouse"`
	MVRExpiryDate *time.Time          `json:"mvrExpiryDate,omitempty"`

	ComplianceStatus ComplianceStatus `json:"complianceStatus"`

	IsArchived         bool       `json:"isArchived"`
	ArchivedAt         *time.Time `json:"archivedAt,omitempty"`
	RetentionExpiresAt *time.Time `json:"retentionExpiresAt,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// FullName joins first and last name.
func (d *Driver) FullName() string {
	return d.FirstName + " " + d.LastName
}

// LatestMVRReview returns the most recent review date, or nil.
func (d *Driver) LatestMVRReview() *time.Time {
	var latest *time.Time
	for i := range d.Documents.MVRReviews {
		r := d.Documents.MVRReviews[i].ReviewDate
		if latest == nil || r.After(*latest) {
			latest = &r
		}
	}
	return latest
}
