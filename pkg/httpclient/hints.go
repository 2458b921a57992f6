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

package httpclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Hints are the throttling details an upstream sent with a response.
type Hints struct {
	RetryAfter time.Duration
	// Reset is the time until the exhausted request or token window
	// refills.
	Reset             time.Duration
	RemainingRequests int
	RemainingTokens   int
}

// Wait is RetryAfter if present, else Reset.
func (h Hints) Wait() time.Duration {
	if h.RetryAfter > 0 {
		return h.RetryAfter
	}
	return h.Reset
}

// HintParser extracts Hints from response headers.
type HintParser func(http.Header) Hints

// RetryAfterHints reads only Retry-After. Proxies usually send nothing else.
func RetryAfterHints(h http.Header) Hints {
	return Hints{RetryAfter: retryAfter(h.Get("Retry-After"))}
}

// OpenAIHints also reads the x-ratelimit-* headers. Reset values are
// durations such as "1s" or "6m0s"; the longer of the two resets wins when
// the matching counter is exhausted.
func OpenAIHints(h http.Header) Hints {
	hints := RetryAfterHints(h)
	hints.RemainingRequests = headerInt(h, "x-ratelimit-remaining-requests", -1)
	hints.RemainingTokens = headerInt(h, "x-ratelimit-remaining-tokens", -1)

	if hints.RemainingRequests == 0 {
		hints.Reset = max(hints.Reset, resetDuration(h.Get("x-ratelimit-reset-requests")))
	}
	if hints.RemainingTokens == 0 {
		hints.Reset = max(hints.Reset, resetDuration(h.Get("x-ratelimit-reset-tokens")))
	}
	return hints
}

// retryAfter accepts delta-seconds or an HTTP date.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func resetDuration(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}

func headerInt(h http.Header, name string, fallback int) int {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
