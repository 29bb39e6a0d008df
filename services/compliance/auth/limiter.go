// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Login attempts allowed per client: a burst of LoginBurst, refilled one
// every LoginRefill.
const (
	LoginBurst  = 5
	LoginRefill = 12 * time.Second
)

// LoginLimiter keeps one token bucket per client IP.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLoginLimiter creates a limiter with the login defaults. now may be nil.
func NewLoginLimiter(now func() time.Time) *LoginLimiter {
	if now == nil {
		now = time.Now
	}
	return &LoginLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Every(LoginRefill),
		burst:    LoginBurst,
		now:      now,
	}
}

// Allow reports whether ip may attempt a login now, consuming a token.
func (l *LoginLimiter) Allow(ip string) bool {
	now := l.now()
	l.mu.Lock()
	c, ok := l.limiters[ip]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = c
	}
	c.seen = now
	l.mu.Unlock()
	return c.lim.AllowN(now, 1)
}

// Prune drops clients idle for longer than idle and returns how many were
// removed.
func (l *LoginLimiter) Prune(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for ip, c := range l.limiters {
		if c.seen.Before(cutoff) {
			delete(l.limiters, ip)
			n++
		}
	}
	return n
}
