// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/vroomx/pkg/ux"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/scoring"
)

// scoreBarWidth is the width of the score bars in styled output.
const scoreBarWidth = 30

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Compliance task maintenance",
	}

	var companyID string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create tasks for expiring credentials and mark past-due tasks overdue",
		Long: `Runs the same steps as the daily compliance job: document statuses are
refreshed, missing auto-generated tasks are created and open tasks past their
due date are marked overdue. With --company only that company's tasks are
generated; refresh and overdue marking always cover every company.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			refreshed, err := c.Documents.RefreshStatuses(ctx)
			if err != nil {
				return fmt.Errorf("refresh document statuses: %w", err)
			}
			var created int
			if companyID != "" {
				if _, err := c.Repo.Companies.Get(ctx, companyID, companyID); err != nil {
					return fmt.Errorf("company %s: %w", companyID, err)
				}
				created, err = c.Generator.GenerateForCompany(ctx, companyID)
			} else {
				created, err = c.Generator.GenerateAll(ctx)
			}
			if err != nil {
				return fmt.Errorf("generate tasks: %w", err)
			}
			overdue, err := c.Tasks.MarkOverdue(ctx)
			if err != nil {
				return fmt.Errorf("mark overdue: %w", err)
			}

			out := a.out()
			out.Title("Compliance tasks")
			out.Fields("", []ux.KV{
				{Key: "Documents refreshed", Value: refreshed},
				{Key: "Tasks created", Value: created},
				{Key: "Tasks overdue", Value: overdue},
			})
			return nil
		},
	}
	generate.Flags().StringVar(&companyID, "company", "", "limit generation to one company ID")
	cmd.AddCommand(generate)
	return cmd
}

func newScoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compliance score commands",
	}

	var companyID string
	calculate := &cobra.Command{
		Use:   "calculate",
		Short: "Recalculate today's compliance score",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			out := a.out()

			if companyID == "" {
				n, err := c.Scoring.CalculateAll(ctx)
				if err != nil {
					return err
				}
				out.Success("calculated %d company scores", n)
				return nil
			}

			if _, err := c.Repo.Companies.Get(ctx, companyID, companyID); err != nil {
				return fmt.Errorf("company %s: %w", companyID, err)
			}
			sc, err := c.Scoring.Calculate(ctx, companyID)
			if err != nil {
				return err
			}
			printScore(out, sc)
			return nil
		},
	}
	calculate.Flags().StringVar(&companyID, "company", "", "score one company ID (default: every company)")
	cmd.AddCommand(calculate)
	return cmd
}

func printScore(out *ux.Printer, sc *datatypes.ComplianceScore) {
	b := scoring.BuildBreakdown(sc)
	out.Title("Compliance score")
	out.Fields("", []ux.KV{
		{Key: "Company", Value: sc.CompanyID},
		{Key: "Overall", Value: out.ScoreBar(sc.OverallScore, scoreBarWidth)},
		{Key: "Change", Value: fmt.Sprintf("%+d (%s)", sc.Change, sc.Trend)},
	})
	rows := make([][]string, 0, len(b.ComponentsList))
	for _, comp := range b.ComponentsList {
		rows = append(rows, []string{comp.Name, strconv.Itoa(comp.Score), strconv.Itoa(comp.Weight) + "%"})
	}
	out.Table([]string{"Component", "Score", "Weight"}, rows)
	for _, r := range b.Recommendations {
		out.Info("%s %s", ux.IconBullet, r)
	}
}

func newRetentionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Record retention commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Purge audit records and archived drivers past their retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Purger.Run(ctx)
			out := a.out()
			out.Title("Retention purge")
			out.Fields("", []ux.KV{
				{Key: "Audit records", Value: fmt.Sprintf("%d/%d deleted", res.AuditDeleted, res.AuditFound)},
				{Key: "Archived drivers", Value: fmt.Sprintf("%d/%d deleted", res.DriversDeleted, res.DriversFound)},
				{Key: "Duration", Value: res.Duration().String()},
			})
			for _, e := range res.Errors {
				out.Warning("%s %s/%s: %s", e.Kind, e.CompanyID, e.ID, e.Reason)
			}
			return err
		},
	})
	return cmd
}

func newChecklistsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checklists",
		Short: "Checklist template commands",
	}
	var companyID string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Install the default checklist templates for a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID == "" {
				return errors.New("--company is required")
			}
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.Repo.Companies.Get(ctx, companyID, companyID); err != nil {
				return fmt.Errorf("company %s: %w", companyID, err)
			}
			n, err := c.Checklists.SeedDefaults(ctx, companyID)
			if err != nil {
				return err
			}
			a.out().Success("installed %d checklist templates", n)
			return nil
		},
	}
	seed.Flags().StringVar(&companyID, "company", "", "company ID")
	cmd.AddCommand(seed)
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Audit.VerifyAll(ctx)
			if err != nil {
				return err
			}
			out := a.out()
			if !res.Valid {
				out.Fields("Audit chain", []ux.KV{
					{Key: "Valid", Value: false},
					{Key: "Checked", Value: res.Checked},
					{Key: "Broke at", Value: res.BrokeAt},
					{Key: "Reason", Value: res.Reason},
				})
				return fmt.Errorf("audit chain broken at sequence %d", res.BrokeAt)
			}
			out.Fields("Audit chain", []ux.KV{
				{Key: "Valid", Value: true},
				{Key: "Checked", Value: res.Checked},
			})
			return nil
		},
	})
	return cmd
}
