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
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/AleutianAI/vroomx/services/compliance/datatypes"
)

// MinSecretLength is the shortest accepted HS256 signing secret.
const MinSecretLength = 32

const tokenIssuer = "vroomx"

// Claims is the session token payload.
type Claims struct {
	jwt.Claims
	CompanyID string `json:"cid"`
	Role      string `json:"role"`
}

// TokenIssuer signs and verifies HS256 session tokens.
//
// # Description
//
// The signing secret lives in a memguard Enclave and is only decrypted
// into a locked buffer for the duration of a single sign or verify call.
//
// # Thread Safety
//
// TokenIssuer is safe for concurrent use.
type TokenIssuer struct {
	key *memguard.Enclave
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer seals secret into an enclave. The caller's slice is wiped.
func NewTokenIssuer(secret []byte, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{key: memguard.NewEnclave(secret), ttl: ttl, now: now}, nil
}

func (t *TokenIssuer) withKey(fn func(key []byte) error) error {
	buf, err := t.key.Open()
	if err != nil {
		return fmt.Errorf("open signing key: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Issue signs a token for u valid for the configured TTL.
func (t *TokenIssuer) Issue(u *datatypes.User) (string, error) {
	issued := t.now()
	claims := Claims{
		Claims: jwt.Claims{
			Issuer:   tokenIssuer,
			Subject:  u.ID,
			IssuedAt: jwt.NewNumericDate(issued),
			Expiry:   jwt.NewNumericDate(issued.Add(t.ttl)),
		},
		CompanyID: u.CompanyID,
		Role:      string(u.Role),
	}

	var token string
	err := t.withKey(func(key []byte) error {
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
		if err != nil {
			return err
		}
		token, err = jwt.Signed(signer).Claims(claims).Serialize()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Parse verifies the signature, issuer and expiry of token.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	var claims Claims
	if err := t.withKey(func(key []byte) error { return parsed.Claims(key, &claims) }); err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Issuer: tokenIssuer, Time: t.now()}, 0); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.CompanyID == "" {
		return nil, errors.New("token is missing subject or company")
	}
	return &claims, nil
}
