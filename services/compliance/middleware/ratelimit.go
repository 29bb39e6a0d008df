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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Limiter decides whether a client may proceed.
type Limiter interface {
	Allow(key string) bool
}

// RateLimit aborts with 429 when limiter denies the client IP.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", c.Request.URL.Path)
			abort(c, http.StatusTooManyRequests, "Too many login attempts, please try again later")
			return
		}
		c.Next()
	}
}
