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
	"net/mail"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/vroomx/pkg/ux"
	"github.com/AleutianAI/vroomx/services/compliance/auth"
	"github.com/AleutianAI/vroomx/services/compliance/middleware"
)

// passwordEnv supplies the owner password without a flag.
const passwordEnv = "VROOMX_OWNER_PASSWORD"

func newRegisterCmd(a *app) *cobra.Command {
	var req auth.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a company and its owner account",
		Long: `Creates a company and its owner without going through the HTTP API.
Missing values are prompted for when stdin is a terminal. The password is
read from ` + passwordEnv + ` when not prompted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Password == "" {
				req.Password = os.Getenv(passwordEnv)
			}
			if missingRegisterFields(req) {
				if !a.out().Interactive() || !stdinIsTerminal() {
					return errors.New("--company, --email, --first-name, --last-name and " + passwordEnv + " are required")
				}
				if err := promptRegister(&req); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			c, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			sess, err := c.Auth.Register(ctx, req)
			if err != nil {
				return err
			}
			out := a.out()
			out.Success("registered %s", sess.Company.Name)
			out.Fields("", []ux.KV{
				{Key: "Company ID", Value: sess.Company.ID},
				{Key: "Owner ID", Value: sess.User.ID},
				{Key: "Email", Value: sess.User.Email},
			})
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.CompanyName, "company", "", "company name")
	f.StringVar(&req.DOTNumber, "dot", "", "USDOT number")
	f.StringVar(&req.MCNumber, "mc", "", "MC number")
	f.StringVar(&req.Email, "email", "", "owner email")
	f.StringVar(&req.FirstName, "first-name", "", "owner first name")
	f.StringVar(&req.LastName, "last-name", "", "owner last name")
	return cmd
}

func missingRegisterFields(r auth.RegisterRequest) bool {
	return r.CompanyName == "" || r.Email == "" || r.FirstName == "" || r.LastName == "" || r.Password == ""
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// promptRegister asks for every field still empty in r.
func promptRegister(r *auth.RegisterRequest) error {
	var fields []huh.Field
	if r.CompanyName == "" {
		fields = append(fields, huh.NewInput().Title("Company name").Value(&r.CompanyName).Validate(required("company name")))
	}
	if r.DOTNumber == "" {
		fields = append(fields, huh.NewInput().Title("USDOT number (optional)").Value(&r.DOTNumber))
	}
	if r.Email == "" {
		fields = append(fields, huh.NewInput().Title("Owner email").Value(&r.Email).Validate(func(s string) error {
			if _, err := mail.ParseAddress(s); err != nil {
				return errors.New("enter a valid email address")
			}
			return nil
		}))
	}
	if r.FirstName == "" {
		fields = append(fields, huh.NewInput().Title("First name").Value(&r.FirstName).Validate(required("first name")))
	}
	if r.LastName == "" {
		fields = append(fields, huh.NewInput().Title("Last name").Value(&r.LastName).Validate(required("last name")))
	}
	if r.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&r.Password).
			Validate(func(s string) error {
				if len(s) < auth.MinPasswordLength {
					return fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
				}
				return nil
			}))
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func newMaintenanceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Show or change maintenance mode",
		Long: `Maintenance mode is stored in the file named by maintenance.file
(VROOMX_MAINTENANCE_FILE). A running server picks up changes immediately.`,
	}

	load := func() (*middleware.Maintenance, error) {
		if a.cfg.Maintenance.File == "" {
			return nil, errors.New("maintenance file is not configured (set VROOMX_MAINTENANCE_FILE)")
		}
		return middleware.NewMaintenance(a.cfg.Maintenance.File)
	}
	show := func(m *middleware.Maintenance) {
		st := m.State()
		msg := st.Message
		if st.Enabled && msg == "" {
			msg = middleware.DefaultMaintenanceMessage
		}
		a.out().Fields("Maintenance", []ux.KV{
			{Key: "Enabled", Value: st.Enabled},
			{Key: "Message", Value: msg},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current maintenance state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := load()
			if err != nil {
				return err
			}
			show(m)
			return nil
		},
	})

	var message string
	on := &cobra.Command{
		Use:   "on",
		Short: "Enable maintenance mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := load()
			if err != nil {
				return err
			}
			if err := m.Write(middleware.MaintenanceState{Enabled: true, Message: message}); err != nil {
				return err
			}
			show(m)
			return nil
		},
	}
	on.Flags().StringVar(&message, "message", "", "message returned to blocked requests")
	cmd.AddCommand(on)

	cmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "Disable maintenance mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := load()
			if err != nil {
				return err
			}
			if err := m.Write(middleware.MaintenanceState{}); err != nil {
				return err
			}
			show(m)
			return nil
		},
	})
	return cmd
}
