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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/vroomx/services/compliance/auth"
	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// PasswordRequest is the body of PUT /auth/updatepassword.
type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// Register creates a company with its owner and signs the owner in.
func Register(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		sess, err := svc.Register(c.Request.Context(), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, gin.H{
			"token":   sess.Token,
			"user":    sess.User,
			"company": sess.Company,
		})
	}
}

// Login checks credentials and returns a token.
func Login(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		sess, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{
			"token":   sess.Token,
			"user":    sess.User,
			"company": sess.Company,
		})
	}
}

// Me returns the caller's user record.
func Me(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Me(c.Request.Context(), companyID(c), userID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"user": u})
	}
}

// UpdateProfile changes the caller's name.
func UpdateProfile(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch auth.ProfilePatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		u, err := svc.UpdateProfile(c.Request.Context(), companyID(c), userID(c), patch)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"user": u})
	}
}

// UpdatePassword changes the caller's password.
func UpdatePassword(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PasswordRequest
		if err := bind(c, &req); err != nil {
			fail(c, err)
			return
		}
		if err := svc.UpdatePassword(c.Request.Context(), companyID(c), userID(c), req.CurrentPassword, req.NewPassword); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": "Password updated"})
	}
}

// ListUsers lists the company's users.
func ListUsers(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context(), companyID(c))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"users": users, "count": len(users)})
	}
}

// CreateUser adds a user to the caller's company.
func CreateUser(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, datatypes.BadRequest("Invalid request body: %v", err))
			return
		}
		u, err := svc.CreateUser(c.Request.Context(), user(c), req)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, gin.H{"user": u})
	}
}
