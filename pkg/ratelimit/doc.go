// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit implements a per-key sliding-window rate limiter.
//
// # Overview
//
// SlidingWindowLimiter admits at most Calls events for a key within any
// trailing Period. Timestamps are kept per key in a RecordStore and evicted
// lazily before every decision, so there is no background work on the
// admission path.
//
// Settings are read through a SettingsCache that refetches from a
// SettingsSource after a TTL. A failed fetch falls back to the last good
// snapshot, or to DefaultSettings (5 calls per 60 seconds).
//
// # Stores
//
//   - MemoryStore: single process, per-key locks
//   - RedisStore: sorted set per key, shared across instances
//
// # Usage
//
//	cache := ratelimit.NewSettingsCache(settingsStore)
//	limiter, err := ratelimit.NewSlidingWindowLimiter(ratelimit.NewMemoryStore(), cache)
//	if err != nil {
//	    return err
//	}
//
//	decision, err := limiter.Admit(ctx, "user-42")
//	if err == nil && !decision.Allowed {
//	    fmt.Printf("try again in %d seconds\n", decision.RetryAfterSeconds())
//	}
//
// # Maintenance
//
// SweepStale drops entries older than a multiple of the period and removes
// empty records. DisableTemporarily bypasses the limit for one key until an
// expiry instant, checked lazily on each Admit.
package ratelimit
