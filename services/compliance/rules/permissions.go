// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import "github.com/AleutianAI/vroomx/services/compliance/datatypes"

// Resources guarded by the permission matrix.
const (
	ResourceDrivers     = "drivers"
	ResourceVehicles    = "vehicles"
	ResourceViolations  = "violations"
	ResourceAccidents   = "accidents"
	ResourceDrugAlcohol = "drugAlcohol"
	ResourceDocuments   = "documents"
	ResourceReports     = "reports"
)

// Actions on guarded resources.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionUpload = "upload"
	ActionExport = "export"
)

// Permissions maps resource → action → allowed.
type Permissions map[string]map[string]bool

func record(view, edit, del bool) map[string]bool {
	return map[string]bool{ActionView: view, ActionEdit: edit, ActionDelete: del}
}

func docs(view, upload, del bool) map[string]bool {
	return map[string]bool{ActionView: view, ActionUpload: upload, ActionDelete: del}
}

func reports(view, export bool) map[string]bool {
	return map[string]bool{ActionView: view, ActionExport: export}
}

// DefaultPermissions returns the permission set for role. Unknown roles
// get viewer permissions.
func DefaultPermissions(role datatypes.Role) Permissions {
	switch role {
	case datatypes.RoleOwner, datatypes.RoleAdmin:
		return Permissions{
			ResourceDrivers:     record(true, true, true),
			ResourceVehicles:    record(true, true, true),
			ResourceViolations:  record(true, true, true),
			ResourceAccidents:   record(true, true, true),
			ResourceDrugAlcohol: record(true, true, true),
			ResourceDocuments:   docs(true, true, true),
			ResourceReports:     reports(true, true),
		}
	case datatypes.RoleSafetyManager:
		return Permissions{
			ResourceDrivers:     record(true, true, false),
			ResourceVehicles:    record(true, true, false),
			ResourceViolations:  record(true, true, false),
			ResourceAccidents:   record(true, true, false),
			ResourceDrugAlcohol: record(true, true, false),
			ResourceDocuments:   docs(true, true, false),
			ResourceReports:     reports(true, true),
		}
	case datatypes.RoleDispatcher:
		return Permissions{
			ResourceDrivers:     record(true, false, false),
			ResourceVehicles:    record(true, false, false),
			ResourceViolations:  record(true, false, false),
			ResourceAccidents:   record(true, false, false),
			ResourceDrugAlcohol: record(false, false, false),
			ResourceDocuments:   docs(true, false, false),
			ResourceReports:     reports(true, false),
		}
	case datatypes.RoleDriver:
		return Permissions{
			ResourceDrivers:     record(false, false, false),
			ResourceVehicles:    record(true, false, false),
			ResourceViolations:  record(false, false, false),
			ResourceAccidents:   record(false, false, false),
			ResourceDrugAlcohol: record(false, false, false),
			ResourceDocuments:   docs(false, false, false),
			ResourceReports:     reports(false, false),
		}
	default:
		return Permissions{
			ResourceDrivers:     record(true, false, false),
			ResourceVehicles:    record(true, false, false),
			ResourceViolations:  record(true, false, false),
			ResourceAccidents:   record(true, false, false),
			ResourceDrugAlcohol: record(false, false, false),
			ResourceDocuments:   docs(true, false, false),
			ResourceReports:     reports(true, false),
		}
	}
}

// Can reports whether role may perform action on resource. Owners and
// admins always pass; unknown resources and actions are denied.
func Can(role datatypes.Role, resource, action string) bool {
	if role == datatypes.RoleOwner || role == datatypes.RoleAdmin {
		return true
	}
	actions, ok := DefaultPermissions(role)[resource]
	if !ok {
		return false
	}
	return actions[action]
}
