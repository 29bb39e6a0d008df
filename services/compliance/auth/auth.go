// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth implements accounts, session tokens and role permissions.
//
// Service provides registration, login and user management and satisfies
// extensions.AuthProvider. Authorizer satisfies extensions.AuthzProvider
// using the role matrix in package rules.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AleutianAI/vroomx/pkg/extensions"
	"github.com/AleutianAI/vroomx/pkg/validation"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
	"github.com/AleutianAI/vroomx/services/compliance/rules"
	"github.com/AleutianAI/vroomx/services/compliance/storage"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = datatypes.NewAppError(http.StatusUnauthorized, "Invalid email or password")

	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = datatypes.NewAppError(http.StatusConflict, "Email already registered")

	errInactive = datatypes.NewAppError(http.StatusUnauthorized, "Account is deactivated")
)

// Service implements accounts and sessions.
type Service struct {
	repo       *storage.Repository
	tokens     *TokenIssuer
	audit      extensions.AuditLogger
	bcryptCost int
}

// NewService creates a Service. audit may be nil.
func NewService(repo *storage.Repository, tokens *TokenIssuer, audit extensions.AuditLogger) *Service {
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return &Service{repo: repo, tokens: tokens, audit: audit, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func (s *Service) WithBcryptCost(cost int) *Service {
	s.bcryptCost = cost
	return s
}

// Session is returned by Register and Login.
type Session struct {
	Token   string             `json:"token"`
	User    *datatypes.User    `json:"user"`
	Company *datatypes.Company `json:"company,omitempty"`
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", datatypes.BadRequest("Password must be at least %d characters", MinPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// RegisterRequest creates a company with its owner.
type RegisterRequest struct {
	CompanyName string `json:"companyName" validate:"required"`
	DOTNumber   string `json:"dotNumber,omitempty" validate:"omitempty,usdot"`
	MCNumber    string `json:"mcNumber,omitempty" validate:"omitempty,mcnumber"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	FirstName   string `json:"firstName" validate:"required"`
	LastName    string `json:"lastName" validate:"required"`
}

// Register creates a company and its owner and signs the owner in.
//
// Description:
//
//	The email must be unused (409) and the password at least
//	MinPasswordLength characters (400). The company is removed again if
//	the owner cannot be stored.
//
// Outputs:
//
//	*Session - Token, owner and company.
//	error - AppError, *datatypes.ValidationError or storage error.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DOTNumber = strings.TrimSpace(req.DOTNumber)
	if err := datatypes.Validate(&req); err != nil {
		return nil, err
	}
	if req.MCNumber != "" {
		req.MCNumber, _ = validation.NormalizeMCNumber(req.MCNumber)
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.UserByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	id := uuid.NewString()
	company := &datatypes.Company{
		Base:      datatypes.Base{ID: id, CompanyID: id},
		Name:      strings.TrimSpace(req.CompanyName),
		DOTNumber: req.DOTNumber,
		MCNumber:  req.MCNumber,
		Status:    datatypes.CompanyActive,
	}
	if err := s.repo.Companies.Put(ctx, company); err != nil {
		return nil, err
	}

	user := &datatypes.User{
		Base:         datatypes.Base{CompanyID: company.ID},
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         datatypes.RoleOwner,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if derr := s.repo.Companies.Delete(ctx, company.ID, company.ID); derr != nil {
			slog.Warn("Failed to remove company after registration error", "company_id", company.ID, "error", derr)
		}
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "create", "company", user, company.ID)
	slog.Info("Company registered", "company_id", company.ID, "user_id", user.ID)
	return &Session{Token: token, User: user, Company: company}, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, errInactive
	}

	now := s.repo.Now()
	user, err = s.repo.Users.Update(ctx, user.CompanyID, user.ID, func(u *datatypes.User) error {
		u.LastLogin = datatypes.TimePtr(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, "login", "user", user, user.ID)
	return &Session{Token: token, User: user}, nil
}

// Validate implements extensions.AuthProvider.
func (s *Service) Validate(ctx context.Context, token string) (*extensions.AuthInfo, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", extensions.ErrUnauthorized, err)
	}
	user, err := s.repo.Users.Get(ctx, claims.CompanyID, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", extensions.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is deactivated", extensions.ErrUnauthorized)
	}
	return &extensions.AuthInfo{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.FullName(),
		CompanyID: user.CompanyID,
		Role:      string(user.Role),
	}, nil
}

// Me returns the signed-in user.
func (s *Service) Me(ctx context.Context, companyID, userID string) (*datatypes.User, error) {
	u, err := s.repo.Users.Get(ctx, companyID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("User")
	}
	return u, err
}

// ProfilePatch holds the fields a user may change on their own account.
type ProfilePatch struct {
	FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1"`
	LastName  *string `json:"lastName,omitempty" validate:"omitempty,min=1"`
}

// UpdateProfile applies patch to the signed-in user.
func (s *Service) UpdateProfile(ctx context.Context, companyID, userID string, patch ProfilePatch) (*datatypes.User, error) {
	if err := datatypes.Validate(&patch); err != nil {
		return nil, err
	}
	u, err := s.repo.Users.Update(ctx, companyID, userID, func(u *datatypes.User) error {
		if patch.FirstName != nil {
			u.FirstName = strings.TrimSpace(*patch.FirstName)
		}
		if patch.LastName != nil {
			u.LastName = strings.TrimSpace(*patch.LastName)
		}
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, datatypes.NotFound("User")
	}
	return u, err
}

// UpdatePassword replaces the password after checking the current one.
func (s *Service) UpdatePassword(ctx context.Context, companyID, userID, current, next string) error {
	hash, err := s.hash(next)
	if err != nil {
		return err
	}
	u, err := s.repo.Users.Update(ctx, companyID, userID, func(u *datatypes.User) error {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
			return datatypes.NewAppError(http.StatusUnauthorized, "Current password is incorrect")
		}
		u.PasswordHash = hash
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		return datatypes.NotFound("User")
	}
	if err != nil {
		return err
	}
	s.record(ctx, "password_change", "user", u, u.ID)
	return nil
}

// CreateUserRequest adds a user to the caller's company.
type CreateUserRequest struct {
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required"`
	FirstName string         `json:"firstName" validate:"required"`
	LastName  string         `json:"lastName" validate:"required"`
	Role      datatypes.Role `json:"role" validate:"required,oneof=owner admin safety_manager dispatcher driver viewer"`
}

// CreateUser adds a user to actor's company. Only owners and admins may
// create users, and only owners may create owners.
func (s *Service) CreateUser(ctx context.Context, actor *extensions.AuthInfo, req CreateUserRequest) (*datatypes.User, error) {
	if !actor.HasRole(string(datatypes.RoleOwner), string(datatypes.RoleAdmin)) {
		return nil, datatypes.NewAppError(http.StatusForbidden, "Only owners and admins can add users")
	}
	if req.Role == datatypes.RoleOwner && actor.Role != string(datatypes.RoleOwner) {
		return nil, datatypes.NewAppError(http.StatusForbidden, "Only an owner can add another owner")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := datatypes.Validate(&req); err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}
	user := &datatypes.User{
		Base:         datatypes.Base{CompanyID: actor.CompanyID},
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.audit.Log(ctx, extensions.AuditEvent{
		Action:       "create",
		ResourceType: "user",
		ResourceID:   user.ID,
		UserID:       actor.UserID,
		UserEmail:    actor.Email,
		CompanyID:    actor.CompanyID,
		Metadata:     map[string]any{"role": string(user.Role)},
	}); err != nil {
		slog.Warn("Audit log failed", "action", "create", "resource", "user", "error", err)
	}
	return user, nil
}

// ListUsers returns the company's users sorted by email.
func (s *Service) ListUsers(ctx context.Context, companyID string) ([]*datatypes.User, error) {
	users, err := s.repo.Users.List(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (s *Service) record(ctx context.Context, action, resource string, u *datatypes.User, resourceID string) {
	if err := s.audit.Log(ctx, extensions.AuditEvent{
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		UserID:       u.ID,
		UserEmail:    u.Email,
		CompanyID:    u.CompanyID,
	}); err != nil {
		slog.Warn("Audit log failed", "action", action, "error", err)
	}
}

// Authorizer implements extensions.AuthzProvider with the role matrix.
type Authorizer struct{}

// Authorize allows the request when the user's role grants the action.
func (Authorizer) Authorize(_ context.Context, req extensions.AuthzRequest) error {
	if req.User == nil {
		return extensions.ErrUnauthorized
	}
	if !rules.Can(datatypes.Role(req.User.Role), req.ResourceType, req.Action) {
		return fmt.Errorf("%w: %s cannot %s %s", extensions.ErrForbidden, req.User.Role, req.Action, req.ResourceType)
	}
	return nil
}

var (
	_ extensions.AuthProvider  = (*Service)(nil)
	_ extensions.AuthzProvider = Authorizer{}
)
