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

// Package httpclient sends requests to completion endpoints and retries the
// ones the upstream throttled or failed transiently.
package httpclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Class tells the client what to do with a non-2xx status.
type Class int

const (
	// Final responses are handed back to the caller as-is.
	Final Class = iota
	// Throttled responses are retried after the upstream's hint, if any.
	Throttled
	// Transient responses are retried with exponential backoff.
	Transient
)

// Classify maps a status code to a Class.
type Classify func(status int) Class

// DefaultClassify retries 429 and 503 as throttling and other gateway
// errors as transient.
func DefaultClassify(status int) Class {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return Throttled
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return Transient
	default:
		return Final
	}
}

// Client wraps an *http.Client with retries.
type Client struct {
	hc         *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	classify   Classify
	hints      HintParser
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithMaxDelay caps a single wait. A throttling hint longer than the cap
// ends the retries at once.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) { c.maxDelay = d }
}

func WithClassify(fn Classify) Option {
	return func(c *Client) { c.classify = fn }
}

func WithHintParser(p HintParser) Option {
	return func(c *Client) { c.hints = p }
}

func New(opts ...Option) *Client {
	c := &Client{
		hc:         &http.Client{Timeout: 60 * time.Second},
		maxRetries: 3,
		baseDelay:  time.Second,
		maxDelay:   20 * time.Second,
		classify:   DefaultClassify,
		hints:      RetryAfterHints,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and retries per the classification of each response. The
// request body is replayed through req.GetBody.
//
// A Final non-2xx response is returned with a nil error so the caller can
// read the upstream's error body. When retries run out the last response is
// returned together with an *ExhaustedError; the caller must close it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to replay request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		class := c.classify(resp.StatusCode)
		if class == Final {
			return resp, nil
		}

		hint := c.hints(resp.Header)
		delay, ok := c.delay(class, attempt, hint)
		if !ok || attempt >= c.maxRetries {
			return resp, &ExhaustedError{
				StatusCode: resp.StatusCode,
				Attempts:   attempt + 1,
				RetryAfter: hint.Wait(),
			}
		}

		slog.Warn("Upstream call failed, retrying",
			"status", resp.StatusCode,
			"throttled", class == Throttled,
			"delay", delay,
			"attempt", attempt+1)
		resp.Body.Close()

		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// delay returns the wait before the next attempt, or false when the
// upstream asks for longer than maxDelay.
func (c *Client) delay(class Class, attempt int, hint Hints) (time.Duration, bool) {
	if class == Throttled {
		if wait := hint.Wait(); wait > 0 {
			return wait, wait <= c.maxDelay
		}
	}
	d := c.baseDelay << attempt
	if d <= 0 || d > c.maxDelay {
		d = c.maxDelay
	}
	return d, true
}

// ExhaustedError reports an upstream call that kept failing.
type ExhaustedError struct {
	StatusCode int
	Attempts   int
	// RetryAfter is the upstream's last hint, zero if none.
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d after %d attempts (retry after %v)", e.StatusCode, e.Attempts, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d after %d attempts", e.StatusCode, e.Attempts)
}
