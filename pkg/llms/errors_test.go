package llms

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain error", errors.New("boom"), "Unexpected error"},
		{"rate limited", &Error{Kind: KindRateLimited}, "too many requests"},
		{"auth direct", &Error{Kind: KindAuth}, "AI service failed"},
		{"auth proxy", &Error{Kind: KindAuth, Proxy: true}, "proxy failed"},
		{"timeout", &Error{Kind: KindTimeout}, "too long"},
		{"connection direct", &Error{Kind: KindConnection}, "network connection"},
		{"connection proxy", &Error{Kind: KindConnection, Proxy: true, Endpoint: "https://p.example/v1"}, "https://p.example/v1"},
		{"moderation", &Error{Kind: KindBadRequest, Message: "rejected by moderation"}, "content moderation"},
		{"bad request", &Error{Kind: KindBadRequest, Message: "bad"}, "invalid"},
		{"status", &Error{Kind: KindUnknown, StatusCode: 503}, "503"},
		{"unknown", &Error{Kind: KindUnknown}, "went wrong"},
		{"wrapped", fmt.Errorf("generate: %w", &Error{Kind: KindTimeout}), "too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, UserMessage(tt.err), tt.want)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Kind: KindRateLimited, StatusCode: 429, Message: "slow down", Err: errors.New("HTTP 429")}
	assert.Equal(t, "rate_limited (HTTP 429): slow down: HTTP 429", err.Error())
	assert.ErrorContains(t, errors.Unwrap(err), "HTTP 429")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
	assert.Equal(t, KindAuth, KindOf(fmt.Errorf("w: %w", &Error{Kind: KindAuth})))
	assert.True(t, IsError(&Error{}))
	assert.False(t, IsError(errors.New("x")))
}
