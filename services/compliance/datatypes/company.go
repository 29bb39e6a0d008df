// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// CompanyStatus is the account state of a carrier.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanySuspended CompanyStatus = "suspended"
)

// Company is a motor carrier tenant. Its Base.CompanyID equals its ID.
type Company struct {
	Base
	Name      string        `json:"name" validate:"required"`
	DOTNumber string        `json:"dotNumber,omitempty" validate:"omitempty,usdot"`
	MCNumber  string        `json:"mcNumber,omitempty" validate:"omitempty,mcnumber"`
	Status    CompanyStatus `json:"status" validate:"omitempty,oneof=active suspended"`
}

// Role is a user's permission role within a company.
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdmin         Role = "admin"
	RoleSafetyManager Role = "safety_manager"
	RoleDispatcher    Role = "dispatcher"
	RoleDriver        Role = "driver"
	RoleViewer        Role = "viewer"
)

// Roles lists every role in descending privilege order.
var Roles = []Role{RoleOwner, RoleAdmin, RoleSafetyManager, RoleDispatcher, RoleDriver, RoleViewer}

// User is a login account bound to one company.
type User struct {
	Base
	Email        string     `json:"email" validate:"required,email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"firstName" validate:"required"`
	LastName     string     `json:"lastName" validate:"required"`
	Role         Role       `json:"role" validate:"required,oneof=owner admin safety_manager dispatcher driver viewer"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// storedUser mirrors User with the password hash serialised.
type storedUser struct {
	Base
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// ToStored returns the persisted representation of u.
func (u *User) ToStored() any {
	s := storedUser(*u)
	return &s
}

// FromStored is the inverse of ToStored. data decodes the stored bytes.
func (u *User) FromStored(data func(v any) error) error {
	var s storedUser
	if err := data(&s); err != nil {
		return err
	}
	*u = User(s)
	return nil
}
