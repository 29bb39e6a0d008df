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

import (
	"math"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// ChecklistStatus derives assignment status from its items.
func ChecklistStatus(items []datatypes.AssignmentItem) datatypes.ChecklistStatus {
	done := 0
	for _, it := range items {
		if it.Completed {
			done++
		}
	}
	switch {
	case done == 0:
		return datatypes.ChecklistNotStarted
	case done == len(items):
		return datatypes.ChecklistCompleted
	default:
		return datatypes.ChecklistInProgress
	}
}

// ChecklistProgress counts completed items overall and among required ones.
// Percentages are 0 when there are no items in the group.
func ChecklistProgress(items []datatypes.AssignmentItem) datatypes.ChecklistProgress {
	var p datatypes.ChecklistProgress
	for _, it := range items {
		p.Total++
		if it.Completed {
			p.Completed++
		}
		if it.Required {
			p.RequiredTotal++
			if it.Completed {
				p.RequiredCompleted++
			}
		}
	}
	p.Percent = percent(p.Completed, p.Total)
	p.RequiredPercent = percent(p.RequiredCompleted, p.RequiredTotal)
	return p
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}
