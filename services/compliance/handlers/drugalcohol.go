// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// Minimum annual random testing rates (49 CFR 382.305), in percent.
const (
	RandomDrugRate    = 50
	RandomAlcoholRate = 10
)

// ListDrugAlcoholTests lists tests newest first, filtered by driverId,
// testType, result and a startDate/endDate range.
func ListDrugAlcoholTests(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := queryDate(c, "startDate")
		if err != nil {
			fail(c, err)
			return
		}
		to, err := queryDate(c, "endDate")
		if err != nil {
			fail(c, err)
			return
		}
		driverID, testType, result := c.Query("driverId"), c.Query("testType"), c.Query("result")

		ts, err := repo.DrugAlcoholTests.List(c.Request.Context(), companyID(c), func(t *datatypes.DrugAlcoholTest) bool {
			switch {
			case driverID != "" && t.DriverID != driverID:
				return false
			case testType != "" && t.TestType != testType:
				return false
			case result != "" && t.OverallResult != result:
				return false
			case from != nil && t.TestDate.Before(*from):
				return false
			case to != nil && t.TestDate.After(*to):
				return false
			}
			return true
		})
		if err != nil {
			fail(c, err)
			return
		}
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].TestDate.After(ts[j].TestDate) })
		page, limit := pageParams(c)
		ok(c, http.StatusOK, pageBody("tests", storage.Paginate(ts, page, limit)))
	}
}

// GetDrugAlcoholTest returns one test.
func GetDrugAlcoholTest(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := repo.DrugAlcoholTests.Get(c.Request.Context(), companyID(c), c.Param("id"))
		if err != nil {
			fail(c, notFound("Test record", err))
			return
		}
		ok(c, http.StatusOK, gin.H{"test": t})
	}
}

func prepareTest(t *datatypes.DrugAlcoholTest) {
	if t.Status == "" {
		t.Status = "scheduled"
	}
	if t.OverallResult == "" {
		t.OverallResult = datatypes.ResultPending
	}
}

// CreateDrugAlcoholTest records a test for a driver of the company.
func CreateDrugAlcoholTest(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var t datatypes.DrugAlcoholTest
		if err := bind(c, &t); err != nil {
			fail(c, err)
			return
		}
		ctx, cid := c.Request.Context(), companyID(c)
		if _, err := repo.Drivers.Get(ctx, cid, t.DriverID); err != nil {
			fail(c, notFound("Driver", err))
			return
		}
		t.Base = datatypes.Base{CompanyID: cid}
		t.Clearinghouse = datatypes.ClearinghouseReport{}
		prepareTest(&t)
		if err := repo.DrugAlcoholTests.Put(ctx, &t); err != nil {
			fail(c, err)
			return
		}
		record(ctx, audit, c, "create", "drug_alcohol_test", t.ID, map[string]any{"testType": t.TestType})
		ok(c, http.StatusCreated, gin.H{"test": &t})
	}
}

// UpdateDrugAlcoholTest merges the body over the stored test. The
// Clearinghouse report is only changed by MarkReported.
func UpdateDrugAlcoholTest(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.GetRawData()
		if err != nil {
			fail(c, datatypes.BadRequest("Invalid request body"))
			return
		}
		t, err := repo.DrugAlcoholTests.Update(c.Request.Context(), companyID(c), c.Param("id"), func(t *datatypes.DrugAlcoholTest) error {
			orig := *t
			if err := mergeBody(raw, t); err != nil {
				return err
			}
			keepBase(&t.Base, orig.Base)
			t.DriverID, t.Clearinghouse = orig.DriverID, orig.Clearinghouse
			if err := datatypes.Validate(t); err != nil {
				return err
			}
			prepareTest(t)
			return nil
		})
		if err != nil {
			fail(c, notFound("Test record", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "drug_alcohol_test", t.ID, nil)
		ok(c, http.StatusOK, gin.H{"test": t})
	}
}

// ReportRequest records a Clearinghouse report.
type ReportRequest struct {
	ReportType         string `json:"reportType" validate:"required,oneof=positive refusal rtu_negative"`
	ConfirmationNumber string `json:"confirmationNumber,omitempty"`
}

// MarkReported records that the test was reported to the Clearinghouse.
func MarkReported(repo *storage.Repository, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReportRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		now := repo.Now()
		t, err := repo.DrugAlcoholTests.Update(c.Request.Context(), companyID(c), c.Param("id"), func(t *datatypes.DrugAlcoholTest) error {
			t.Clearinghouse = datatypes.ClearinghouseReport{
				Reported:           true,
				ReportDate:         datatypes.TimePtr(now),
				ReportType:         req.ReportType,
				ConfirmationNumber: req.ConfirmationNumber,
			}
			return nil
		})
		if err != nil {
			fail(c, notFound("Test record", err))
			return
		}
		record(c.Request.Context(), audit, c, "update", "drug_alcohol_test", t.ID, map[string]any{"summary": "Clearinghouse report recorded"})
		ok(c, http.StatusOK, gin.H{"message": "Clearinghouse report recorded", "test": t})
	}
}

// TestTypeStats counts completed tests of one type this year.
type TestTypeStats struct {
	Total    int `json:"total"`
	Negative int `json:"negative"`
	Positive int `json:"positive"`
	Refused  int `json:"refused"`
}

// RandomCompliance compares this year's random tests with the required
// minimum for the pool size.
type RandomCompliance struct {
	DrugTestsRequired     int `json:"drugTestsRequired"`
	AlcoholTestsRequired  int `json:"alcoholTestsRequired"`
	DrugTestsCompleted    int `json:"drugTestsCompleted"`
	AlcoholTestsCompleted int `json:"alcoholTestsCompleted"`
	ComplianceRate        int `json:"complianceRate"`
}

// DrugAlcoholStats reports the testing pool, this year's completed tests
// by type, random testing compliance and drivers due a Clearinghouse query.
func DrugAlcoholStats(repo *storage.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cid := c.Request.Context(), companyID(c)
		now := repo.Now()
		startOfYear := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())

		drivers, err := repo.Drivers.List(ctx, cid, func(d *datatypes.Driver) bool {
			return d.Status == datatypes.DriverActive && !d.IsArchived
		})
		if err != nil {
			fail(c, err)
			return
		}
		tests, err := repo.DrugAlcoholTests.List(ctx, cid, func(t *datatypes.DrugAlcoholTest) bool {
			return !t.TestDate.Before(startOfYear)
		})
		if err != nil {
			fail(c, err)
			return
		}

		byType := map[string]*TestTypeStats{}
		var random RandomCompliance
		for _, t := range tests {
			if t.TestType == datatypes.TestRandom {
				if t.DrugTest.Performed {
					random.DrugTestsCompleted++
				}
				if t.AlcoholTest.Performed {
					random.AlcoholTestsCompleted++
				}
			}
			if t.Status != "completed" {
				continue
			}
			s := byType[t.TestType]
			if s == nil {
				s = &TestTypeStats{}
				byType[t.TestType] = s
			}
			s.Total++
			switch t.OverallResult {
			case datatypes.ResultNegative:
				s.Negative++
			case datatypes.ResultPositive:
				s.Positive++
			case datatypes.ResultRefused:
				s.Refused++
			}
		}

		pool := len(drivers)
		random.DrugTestsRequired = int(math.Ceil(float64(pool) * RandomDrugRate / 100))
		random.AlcoholTestsRequired = int(math.Ceil(float64(pool) * RandomAlcoholRate / 100))
		random.ComplianceRate = 100
		if random.DrugTestsRequired > 0 {
			random.ComplianceRate = int(math.Round(float64(random.DrugTestsCompleted) / float64(random.DrugTestsRequired) * 100))
		}

		needingQuery := 0
		for _, d := range drivers {
			last := d.Clearinghouse.LastQueryDate
			if last == nil || rules.DaysSince(*last, now) > rules.ReviewOverdueDays {
				needingQuery++
			}
		}

		ok(c, http.StatusOK, gin.H{"stats": gin.H{
			"activeDriversInPool":              pool,
			"testsByType":                      byType,
			"randomTestingCompliance":          random,
			"driversNeedingClearinghouseQuery": needingQuery,
		}})
	}
}
