package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestValidator(t *testing.T, opts ...Option) *JWTValidator {
	t.Helper()
	v, err := NewJWTValidator(testSecret, "chatgate", "chatgate-admin", opts...)
	require.NoError(t, err)
	return v
}

func TestNewJWTValidator_ShortSecret(t *testing.T) {
	_, err := NewJWTValidator("short", "chatgate", "chatgate-admin")
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	v := newTestValidator(t)
	tok, err := v.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.True(t, claims.HasAnyRole("viewer", RoleAdmin))
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
	_, ok := claims.UserID()
	assert.False(t, ok)
}

func TestClaims_UserID(t *testing.T) {
	tests := []struct {
		subject string
		want    int64
		ok      bool
	}{
		{"42", 42, true},
		{"ops", 0, false},
		{"0", 0, false},
		{"-3", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			id, ok := (&Claims{Subject: tt.subject}).UserID()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestValidateToken_Expired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestValidator(t, WithClock(func() time.Time { return now }))
	tok, err := issuer.Issue("ops", RoleAdmin, time.Minute)
	require.NoError(t, err)

	later := newTestValidator(t, WithClock(func() time.Time { return now.Add(time.Hour) }))
	_, err = later.ValidateToken(context.Background(), tok)
	assert.ErrorIs(t, err, ErrTokenExpired)

	skewed := newTestValidator(t,
		WithClock(func() time.Time { return now.Add(2 * time.Minute) }),
		WithAcceptableSkew(5*time.Minute))
	_, err = skewed.ValidateToken(context.Background(), tok)
	assert.NoError(t, err)
}

func TestValidateToken_Rejections(t *testing.T) {
	v := newTestValidator(t)

	other, err := NewJWTValidator("ffffffffffffffffffffffffffffffff", "chatgate", "chatgate-admin")
	require.NoError(t, err)
	foreign, err := other.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	wrongAud, err := NewJWTValidator(testSecret, "chatgate", "someone-else")
	require.NoError(t, err)
	misdirected, err := wrongAud.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"wrong audience", misdirected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestValidateToken_MissingSubject(t *testing.T) {
	v := newTestValidator(t)
	token := jwt.New()
	require.NoError(t, token.Set(jwt.IssuerKey, "chatgate"))
	require.NoError(t, token.Set(jwt.AudienceKey, "chatgate-admin"))
	require.NoError(t, token.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	require.NoError(t, token.Set("team", "ops"))
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(testSecret)))
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), string(signed))
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestIssue_Validation(t *testing.T) {
	v := newTestValidator(t)
	_, err := v.Issue("", RoleAdmin, time.Hour)
	assert.ErrorIs(t, err, ErrMissingClaims)
	_, err = v.Issue("ops", RoleAdmin, 0)
	assert.Error(t, err)
}

func TestHTTPMiddleware(t *testing.T) {
	v := newTestValidator(t)
	valid, err := v.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	var seen *Claims
	handler := v.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing Authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "expected: Bearer <token>"},
		{"empty token", "Bearer  ", http.StatusUnauthorized, "empty bearer token"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, ""},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="chatgate"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "ops", seen.Subject)
}

func TestRequireRole(t *testing.T) {
	v := newTestValidator(t)
	viewer, err := v.Issue("intern", "viewer", time.Hour)
	require.NoError(t, err)
	admin, err := v.Issue("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)

	handler := RequireRole(v, RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"insufficient permissions"}`, rec.Body.String())

	req.Header.Set("Authorization", "Bearer "+admin)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
