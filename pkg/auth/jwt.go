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

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// JWTValidator validates and issues HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
	now      func() time.Time
}

// Option configures a JWTValidator.
type Option func(*JWTValidator)

// WithAcceptableSkew tolerates clock drift when checking exp and nbf.
func WithAcceptableSkew(d time.Duration) Option {
	return func(v *JWTValidator) { v.skew = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *JWTValidator) { v.now = now }
}

// NewJWTValidator creates a validator for tokens signed with secret.
func NewJWTValidator(secret, issuer, audience string, opts ...Option) (*JWTValidator, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
	}
	v := &JWTValidator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ValidateToken verifies the signature, expiry, issuer and audience of
// tokenString and extracts its claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	parseOpts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(v.now)),
		jwt.WithAcceptableSkew(v.skew),
	}
	if v.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parseOpts = append(parseOpts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseString(tokenString, parseOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Subject() == "" {
		return nil, ErrMissingClaims
	}

	claims := &Claims{
		Subject:   token.Subject(),
		ExpiresAt: token.Expiration(),
	}
	if role, ok := token.Get("role"); ok {
		if roleStr, ok := role.(string); ok {
			claims.Role = roleStr
		}
	}
	return claims, nil
}

// Issue signs a token for subject with the given role, valid for ttl.
func (v *JWTValidator) Issue(subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingClaims
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}

	now := v.now()
	token := jwt.New()
	claims := map[string]any{
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: now.Add(ttl),
	}
	if v.issuer != "" {
		claims[jwt.IssuerKey] = v.issuer
	}
	if v.audience != "" {
		claims[jwt.AudienceKey] = v.audience
	}
	if role != "" {
		claims["role"] = role
	}
	for k, val := range claims {
		if err := token.Set(k, val); err != nil {
			return "", fmt.Errorf("failed to set claim %s: %w", k, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}
