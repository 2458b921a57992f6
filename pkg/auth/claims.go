// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth issues and validates the bearer tokens that protect the
// admin API.
//
// Tokens are HS256 JWTs signed with a shared secret:
//
//	server:
//	  auth:
//	    enabled: true
//	    secret: ${CHATGATE_JWT_SECRET}
//	    issuer: chatgate
//	    audience: chatgate-admin
//
// `chatgate token <subject>` mints a token with the configured secret.
package auth

import (
	"context"
	"strconv"
	"time"
)

type ctxKey struct{}

// RoleAdmin is the role carried by tokens minted for operators.
const RoleAdmin = "admin"

// Claims is what a validated token asserts about its bearer.
type Claims struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

// UserID reads a numeric subject as a chat user id. Operators minted with
// `chatgate token 42` act as user 42.
func (c *Claims) UserID() (int64, bool) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// HasAnyRole reports whether the token carries one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims stored by ContextWithClaims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ctxKey{}).(*Claims)
	return claims
}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}
