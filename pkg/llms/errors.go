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

package llms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed completion call.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuth        ErrorKind = "auth_error"
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection_error"
	KindBadRequest  ErrorKind = "bad_request"
	KindUnknown     ErrorKind = "unknown_error"
)

// Error is returned by every Backend on failure. It is never charged to the
// user's quota.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// Proxy and Endpoint describe the route that failed.
	Proxy    bool
	Endpoint string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsModeration reports whether the request was refused by content
// moderation.
func (e *Error) IsModeration() bool {
	if e.Kind != KindBadRequest {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "moderation") || strings.Contains(msg, "content_filter")
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsError reports whether err carries an *Error.
func IsError(err error) bool {
	_, ok := AsError(err)
	return ok
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// kindForStatus maps an upstream HTTP status to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindBadRequest
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindUnknown
	}
}

// kindForTransport maps a transport-level failure to an error kind.
func kindForTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	return KindConnection
}

// UserMessage renders err as the apology shown to the user.
func UserMessage(err error) string {
	e, ok := AsError(err)
	if !ok {
		return "❌ Unexpected error while contacting the AI service."
	}

	target := "AI service"
	if e.Proxy {
		target = "proxy"
	}

	switch e.Kind {
	case KindRateLimited:
		return "⚠️ The AI service is receiving too many requests. Please try again later."
	case KindAuth:
		return fmt.Sprintf("❌ Authentication with the %s failed. Check the API key.", target)
	case KindTimeout:
		return "⏱️ The AI service took too long to answer. Please try again."
	case KindConnection:
		if e.Proxy {
			return fmt.Sprintf("❌ Could not connect to the proxy server. Check that %s is reachable.", e.Endpoint)
		}
		return "❌ Could not connect to the AI service. Check the network connection."
	case KindBadRequest:
		if e.IsModeration() {
			return "❌ Your request was rejected by content moderation."
		}
		return "❌ The AI service rejected the request as invalid."
	default:
		if e.StatusCode != 0 {
			return fmt.Sprintf("❌ The %s returned an error: %d", target, e.StatusCode)
		}
		return fmt.Sprintf("❌ Something went wrong on the %s side.", target)
	}
}
