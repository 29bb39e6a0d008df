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

// DocumentVersion is a superseded upload of the same document.
type DocumentVersion struct {
	StorageKey string    `json:"storageKey"`
	Version    int       `json:"version"`
	ReplacedAt time.Time `json:"replacedAt"`
}

// Document is an uploaded compliance document. The file content lives in
// the blob store under StorageKey.
type Document struct {
	Base
	Name         string     `json:"name" validate:"required"`
	Category     string     `json:"category" validate:"required,oneof=company insurance registration permit driver vehicle drug_alcohol violation accident training other"`
	DocumentType string     `json:"documentType,omitempty"`
	FileType     string     `json:"fileType,omitempty" validate:"omitempty,oneof=pdf jpg jpeg png doc docx xls xlsx"`
	StorageKey   string     `json:"storageKey,omitempty"`
	FileSize     int64      `json:"fileSize,omitempty"`
	ContentType  string     `json:"contentType,omitempty"`
	IssueDate    *time.Time `json:"issueDate,omitempty"`
	ExpiryDate   *time.Time `json:"expiryDate,omitempty"`
	Status       ItemStatus `json:"status" validate:"omitempty,oneof=valid expired due_soon missing pending_review"`
	DriverID     string     `json:"driverId,omitempty"`
	VehicleID    string     `json:"vehicleId,omitempty"`
	UploadedBy   string     `json:"uploadedBy,omitempty"`

	Version          int               `json:"version"`
	PreviousVersions []DocumentVersion `json:"previousVersions,omitempty"`

	Verified   bool       `json:"verified"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`

	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	Notes string `json:"notes,omitempty"`
}

// DocumentType is one catalogue entry.
type DocumentType struct {
	Value     string `json:"value"`
	Label     string `json:"label"`
	HasExpiry bool   `json:"hasExpiry"`
}

// DocumentTypes is the catalogue of document types per category.
var DocumentTypes = map[string][]DocumentType{
	"company": {
		{"mcs_150", "MCS-150 Biennial Update", true},
		{"ucr", "UCR Registration", true},
		{"operating_authority", "Operating Authority (MC)", false},
		{"boc_3", "BOC-3 Process Agent", false},
		{"ein_letter", "EIN Letter", false},
		{"articles_of_incorporation", "Articles of Incorporation", false},
	},
	"insurance": {
		{"liability", "Liability Insurance", true},
		{"cargo", "Cargo Insurance", true},
		{"physical_damage", "Physical Damage", true},
		{"workers_comp", "Workers Compensation", true},
		{"umbrella", "Umbrella Policy", true},
	},
	"registration": {
		{"irp", "IRP Registration", true},
		{"ifta", "IFTA License", true},
		{"cab_card", "IRP Cab Card", true},
		{"ifta_decal", "IFTA Decal", true},
	},
	"permit": {
		{"oversize", "Oversize Permit", true},
		{"overweight", "Overweight Permit", true},
		{"hazmat", "Hazmat Permit", true},
		{"state_permit", "State Specific Permit", true},
		{"port_permit", "Port/Terminal Permit", true},
	},
	"driver": {
		{"cdl", "Commercial Driver License", true},
		{"medical_card", "Medical Examiner Certificate", true},
		{"mvr", "Motor Vehicle Record", true},
		{"employment_app", "Employment Application", false},
		{"road_test", "Road Test Certificate", false},
		{"clearinghouse", "Clearinghouse Query", true},
		{"eldt", "ELDT Certificate", false},
	},
	"vehicle": {
		{"annual_inspection", "Annual DOT Inspection", true},
		{"registration", "Vehicle Registration", true},
		{"title", "Vehicle Title", false},
		{"lease_agreement", "Lease Agreement", true},
		{"maintenance_record", "Maintenance Record", false},
	},
	"drug_alcohol": {
		{"test_result", "Test Result", false},
		{"consent_form", "Consent Form", false},
		{"ccf", "Chain of Custody Form", false},
		{"sap_report", "SAP Report", false},
		{"policy", "D&A Policy", false},
	},
	"violation": {
		{"inspection_report", "Inspection Report", false},
		{"citation", "Citation", false},
		{"dataq_request", "DataQ Request", false},
		{"dataq_response", "DataQ Response", false},
	},
	"accident": {
		{"accident_report", "Accident Report", false},
		{"police_report", "Police Report", false},
		{"photos", "Accident Photos", false},
		{"witness_statement", "Witness Statement", false},
	},
	"training": {
		{"hazmat_training", "Hazmat Training", true},
		{"safety_training", "Safety Training", true},
		{"defensive_driving", "Defensive Driving", true},
	},
	"other": {
		{"other", "Other Document", false},
	},
}
