// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checklists

import "github.com/AleutianAI/vroomx/services/compliance/datatypes"

// item keeps the default tables below on one line per step.
func item(order int, required bool, title, description string) datatypes.TemplateItem {
	return datatypes.TemplateItem{Title: title, Description: description, Order: order, Required: required}
}

// DefaultTemplates returns the built-in templates SeedDefaults installs.
// A fresh slice is built on every call.
func DefaultTemplates() []datatypes.ChecklistTemplate {
	return []datatypes.ChecklistTemplate{
		{
			Name:        "New Hire Driver Compliance",
			Description: "Complete checklist for onboarding new CDL drivers per FMCSA requirements",
			Category:    "onboarding",
			Items: []datatypes.TemplateItem{
				item(1, true, "Employment Application (49 CFR 391.21)", "Complete driver employment application"),
				item(2, true, "CDL Copy & Verification", "Copy of valid CDL and verify with issuing state"),
				item(3, true, "Medical Certificate", "Current medical examiner certificate"),
				item(4, true, "MVR Review", "Motor Vehicle Record from each state driven in past 3 years"),
				item(5, true, "Road Test or Certificate", "Road test certification or equivalent experience"),
				item(6, true, "Pre-Employment Drug Test", "Negative pre-employment drug screen"),
				item(7, true, "Clearinghouse Query", "FMCSA Drug & Alcohol Clearinghouse query"),
				item(8, true, "Previous Employer Inquiry", "Safety performance history from previous employers (3 years)"),
				item(9, true, "Annual Certification of Violations", "Driver certification of violations (49 CFR 391.27)"),
				item(10, true, "Receipt of Regulations", "Acknowledgment of receiving FMCSR regulations"),
			},
		},
		{
			Name:        "Annual Driver File Review",
			Description: "Yearly review of driver qualification file for compliance",
			Category:    "file_review",
			Items: []datatypes.TemplateItem{
				item(1, true, "CDL Expiration Check", "Verify CDL is current and not expired"),
				item(2, true, "Medical Certificate Expiration", "Verify medical certificate is current"),
				item(3, true, "Annual MVR Review", "Pull and review current MVR"),
				item(4, true, "Annual Certification of Violations", "Obtain new annual certification"),
				item(5, true, "Clearinghouse Annual Query", "Perform annual Clearinghouse query"),
				item(6, false, "Training Records Review", "Verify required training is current"),
				item(7, false, "Performance Evaluation", "Document driver safety performance review"),
			},
		},
		{
			Name:        "Vehicle Inspection File Setup",
			Description: "Required documentation for new vehicles",
			Category:    "maintenance",
			Items: []datatypes.TemplateItem{
				item(1, true, "Title/Registration", "Copy of vehicle title or registration"),
				item(2, true, "Annual DOT Inspection", "Current annual inspection sticker and certificate"),
				item(3, true, "Insurance Card", "Proof of insurance in vehicle"),
				item(4, false, "IFTA Decals", "Current IFTA decals if applicable"),
				item(5, false, "IRP Cab Card", "International Registration Plan cab card"),
				item(6, true, "Preventive Maintenance Schedule", "Establish PM schedule and document"),
				item(7, true, "Emergency Equipment Check", "Fire extinguisher, triangles, spare fuses"),
			},
		},
		{
			Name:        "Audit Readiness - Entry Level",
			Description: "Prepare for FMCSA new entrant or compliance audit",
			Category:    "audit",
			Items: []datatypes.TemplateItem{
				item(1, true, "Driver Qualification Files Complete", "All DQ files have required documents"),
				item(2, true, "Vehicle Maintenance Records", "Maintenance records for all vehicles"),
				item(3, true, "Hours of Service Records", "ELD or paper logs available for 6 months"),
				item(4, true, "Drug & Alcohol Program", "D&A policy, testing records, Clearinghouse compliance"),
				item(5, true, "Accident Register", "Complete accident register for 3 years"),
				item(6, true, "DVIR Records", "Driver Vehicle Inspection Reports available"),
				item(7, true, "Insurance Documentation", "Proof of required insurance levels"),
				item(8, true, "Operating Authority", "MC authority and USDOT number current"),
			},
		},
	}
}
