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

	"golang.org/x/time/rate"

	"github.com/kadirpekel/chatgate/pkg/history"
)

// Throttled paces calls to the wrapped backend across all users.
type Throttled struct {
	Backend
	limiter *rate.Limiter
}

// NewThrottled wraps b with a token bucket of rps and burst. A non-positive
// rps returns b unchanged.
func NewThrottled(b Backend, rps float64, burst int) Backend {
	if rps <= 0 {
		return b
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{Backend: b, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Generate waits for a token. A wait that cannot finish before the
// deadline fails with KindTimeout without calling the backend.
func (t *Throttled) Generate(ctx context.Context, hist []history.Message, text string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", &Error{Kind: KindTimeout, Message: "outbound pacing wait aborted", Err: err}
	}
	return t.Backend.Generate(ctx, hist, text)
}

// Ping forwards to the wrapped backend when it supports probing.
func (t *Throttled) Ping(ctx context.Context) error {
	if p, ok := t.Backend.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
