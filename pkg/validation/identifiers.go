// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks the regulatory identifiers carried on fleet
// records.
//
// The identifiers end up in CSV exports, DataQ letters and InfluxDB tags, so
// anything outside the expected alphabet is rejected rather than escaped.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// dotPattern matches a USDOT number: 1-8 digits.
var dotPattern = regexp.MustCompile(`^[0-9]{1,8}$`)

// mcPattern matches an MC docket number with an optional MC prefix.
// Allows: "123456", "MC123456", "MC-123456", "MC 123456"
var mcPattern = regexp.MustCompile(`^(?:MC[-\s]?)?([0-9]{1,7})$`)

// vinPattern matches 16 or 17 alphanumeric characters. Pre-1981 vehicles
// may carry 16 character numbers.
var vinPattern = regexp.MustCompile(`^[A-Za-z0-9]{16,17}$`)

// ValidateDOTNumber validates a USDOT number.
//
// Example:
//
//	if err := validation.ValidateDOTNumber(dot); err != nil {
//	    return fmt.Errorf("invalid carrier: %w", err)
//	}
func ValidateDOTNumber(dot string) error {
	if dot == "" {
		return fmt.Errorf("USDOT number cannot be empty")
	}
	if !dotPattern.MatchString(dot) {
		return fmt.Errorf("invalid USDOT number: %q (must be 1-8 digits)", dot)
	}
	return nil
}

// NormalizeMCNumber validates an MC docket number and returns it in the
// canonical "MC-123456" form.
//
// Use this when you need both validation and normalization:
//
//	mc, err := validation.NormalizeMCNumber(userInput)
//	if err != nil {
//	    return err
//	}
func NormalizeMCNumber(mc string) (string, error) {
	m := mcPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(mc)))
	if m == nil {
		return "", fmt.Errorf("invalid MC number: %q (must be up to 7 digits, optionally prefixed with MC)", mc)
	}
	return "MC-" + m[1], nil
}

// ValidateVIN validates a vehicle identification number.
func ValidateVIN(vin string) error {
	if !vinPattern.MatchString(vin) {
		return fmt.Errorf("invalid VIN: %q (must be 16-17 alphanumeric chars)", vin)
	}
	return nil
}
