// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command vroomx runs the fleet compliance service and its maintenance
// commands.
//
// # Usage
//
//	vroomx serve --config vroomx.yaml
//	vroomx register --company "Acme Freight" --email owner@acme.test
//	vroomx tasks generate [--company ID]
//	vroomx score calculate [--company ID]
//	vroomx retention run
//	vroomx checklists seed --company ID
//	vroomx audit verify
//	vroomx maintenance on --message "Upgrading storage"
//
// Configuration is read from --config (optional) and the VROOMX_*
// environment variables; see services/compliance/config.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/vroomx/pkg/logging"
	"github.com/AleutianAI/vroomx/pkg/ux"
	"github.com/AleutianAI/vroomx/services/compliance"
	"github.com/AleutianAI/vroomx/services/compliance/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	output     string

	stdout io.Writer
	stderr io.Writer

	cfg     config.Config
	printer *ux.Printer
	logger  *logging.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "vroomx",
		Short:         "Fleet safety compliance service",
		Long:          "vroomx tracks DOT/FMCSA compliance for trucking fleets: drivers, vehicles, documents, violations, drug and alcohol testing and the compliance score.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", "", "output mode: styled, plain or machine (default: detect)")

	root.AddCommand(
		newServeCmd(a),
		newRegisterCmd(a),
		newTasksCmd(a),
		newScoreCmd(a),
		newRetentionCmd(a),
		newChecklistsCmd(a),
		newAuditCmd(a),
		newMaintenanceCmd(a),
	)

	root.SetOut(stdout)
	root.SetErr(stderr)
	return wrapErrors(root, a)
}

// wrapErrors prints every returned error through the printer, since cobra
// itself is silenced.
func wrapErrors(root *cobra.Command, a *app) *cobra.Command {
	for _, cmd := range root.Commands() {
		wrapRunE(cmd, a)
	}
	return root
}

func wrapRunE(cmd *cobra.Command, a *app) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(c *cobra.Command, args []string) error {
			err := run(c, args)
			if err != nil {
				a.out().Error("%v", err)
			}
			return err
		}
	}
	for _, sub := range cmd.Commands() {
		wrapRunE(sub, a)
	}
}

func (a *app) setup() error {
	mode := ux.DetectMode(os.Stdout)
	if a.output != "" {
		mode = ux.ParseMode(a.output)
	}
	a.printer = ux.NewPrinter(a.stdout, a.stderr, mode)

	cfg, err := config.Load(a.configPath)
	if err != nil {
		a.printer.Error("%v", err)
		return err
	}
	a.cfg = cfg

	a.logger = logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "vroomx",
		JSON:    cfg.Logging.JSON,
		Output:  a.stderr,
	})
	a.logger.Install()
	return nil
}

// out returns the printer, falling back to machine output when setup
// never ran.
func (a *app) out() *ux.Printer {
	if a.printer == nil {
		a.printer = ux.NewPrinter(a.stdout, a.stderr, ux.ModeMachine)
	}
	return a.printer
}

// open builds the service components for a one-shot command.
func (a *app) open(ctx context.Context) (*compliance.Components, error) {
	c, err := compliance.Open(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open service: %w", err)
	}
	return c, nil
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := compliance.New(cmd.Context(), a.cfg, nil)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}
}
