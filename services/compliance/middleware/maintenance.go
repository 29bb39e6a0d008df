// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// DefaultMaintenanceMessage is shown when the file sets no message.
const DefaultMaintenanceMessage = "The service is undergoing maintenance. Please try again shortly."

// MaintenanceAllowedPrefixes stay reachable during maintenance.
var MaintenanceAllowedPrefixes = []string{"/v1/admin", "/v1/auth/login", "/health", "/metrics"}

// MaintenanceState is the content of the maintenance file.
type MaintenanceState struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Maintenance serves 503 while the maintenance file enables it.
//
// # Description
//
// The file is read at construction and re-read whenever fsnotify reports a
// change to it. The parent directory is watched rather than the file so
// editors that replace the file are seen. A missing file means disabled;
// an unparseable file keeps the previous state.
//
// # Thread Safety
//
// Safe for concurrent use. Start and Stop must not race each other.
type Maintenance struct {
	path string

	mu    sync.RWMutex
	state MaintenanceState

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewMaintenance loads path. An empty path gives a Maintenance that is
// always disabled and never watches.
func NewMaintenance(path string) (*Maintenance, error) {
	m := &Maintenance{path: filepath.Clean(path)}
	if path == "" {
		m.path = ""
		return m, nil
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// State returns the current state.
func (m *Maintenance) State() MaintenanceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Write persists state to the file and applies it immediately.
func (m *Maintenance) Write(state MaintenanceState) error {
	if m.path == "" {
		return errors.New("maintenance file is not configured")
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write maintenance file: %w", err)
	}
	m.set(state)
	return nil
}

func (m *Maintenance) set(state MaintenanceState) {
	m.mu.Lock()
	changed := m.state != state
	m.state = state
	m.mu.Unlock()
	if changed {
		slog.Info("Maintenance mode changed", "enabled", state.Enabled, "message", state.Message)
	}
}

func (m *Maintenance) reload() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.set(MaintenanceState{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("read maintenance file: %w", err)
	}
	var state MaintenanceState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parse maintenance file %s: %w", m.path, err)
	}
	m.set(state)
	return nil
}

// Start watches the file until ctx is done or Stop is called.
func (m *Maintenance) Start(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch maintenance dir: %w", err)
	}
	m.watcher = watcher

	slog.Debug("Started watching maintenance file", "path", m.path)
	m.wg.Add(1)
	go m.run(ctx, watcher)
	return nil
}

func (m *Maintenance) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Maintenance watcher error", "error", err)

		case <-ctx.Done():
			slog.Debug("Maintenance watcher stopping")
			return
		}
	}
}

func (m *Maintenance) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != m.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if err := m.reload(); err != nil {
		slog.Warn("Failed to reload maintenance file, keeping previous state", "error", err)
	}
}

// Stop ends the watcher and waits for it to exit.
func (m *Maintenance) Stop() error {
	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Close()
	m.wg.Wait()
	m.watcher = nil
	return err
}

// Middleware blocks requests with 503 while maintenance is enabled, except
// paths under MaintenanceAllowedPrefixes.
func (m *Maintenance) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := m.State()
		if !state.Enabled || maintenanceAllowed(c.Request.URL.Path) {
			c.Next()
			return
		}
		msg := state.Message
		if msg == "" {
			msg = DefaultMaintenanceMessage
		}
		c.Header("Retry-After", "300")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"success":     false,
			"error":       msg,
			"maintenance": true,
		})
	}
}

func maintenanceAllowed(path string) bool {
	for _, p := range MaintenanceAllowedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
