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

package ratelimit

import (
	"fmt"
	"time"
)

// Default limiter settings used when no settings were ever fetched successfully.
const (
	DefaultCalls  = 5
	DefaultPeriod = 60 * time.Second
)

// Settings is an immutable snapshot of limiter configuration.
type Settings struct {
	Enabled bool          `json:"enabled"`
	Calls   int           `json:"calls"`
	Period  time.Duration `json:"period"`
}

// DefaultSettings returns the hardcoded fallback settings.
func DefaultSettings() Settings {
	return Settings{
		Enabled: true,
		Calls:   DefaultCalls,
		Period:  DefaultPeriod,
	}
}

// Validate checks the settings invariants.
func (s Settings) Validate() error {
	if s.Calls < 1 {
		return NewValidationError("calls", fmt.Sprintf("must be at least 1, got %d", s.Calls))
	}
	if s.Period < time.Second {
		return NewValidationError("period", fmt.Sprintf("must be at least 1s, got %v", s.Period))
	}
	return nil
}

// Description renders settings the way the admin surface shows them.
func (s Settings) Description() string {
	return fmt.Sprintf("%d requests per %d seconds", s.Calls, int(s.Period/time.Second))
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool `json:"allowed"`

	// RetryAfter is how long until the oldest event in the window expires.
	// Zero when allowed.
	RetryAfter time.Duration `json:"retry_after"`

	// Count is the number of events in the window after the decision.
	Count int `json:"count"`

	// Limit is the calls setting the decision was made against.
	Limit int `json:"limit"`

	// Bypassed is true when a temporary bypass admitted the event.
	Bypassed bool `json:"bypassed,omitempty"`
}

// RetryAfterSeconds returns RetryAfter in whole seconds.
func (d Decision) RetryAfterSeconds() int {
	return int(d.RetryAfter / time.Second)
}

// Status describes the limiter state of one key.
type Status struct {
	Enabled    bool          `json:"enabled"`
	Current    int           `json:"current_requests"`
	Max        int           `json:"max_requests"`
	Remaining  int           `json:"remaining_requests"`
	Period     time.Duration `json:"period"`
	RetryAfter time.Duration `json:"time_until_reset"`
	Limited    bool          `json:"is_limited"`
	BypassedTo *time.Time    `json:"bypassed_until,omitempty"`
}

// GlobalStats aggregates limiter state across all keys.
type GlobalStats struct {
	Settings            Settings `json:"settings"`
	ActiveKeys          int      `json:"active_users"`
	LimitedKeys         int      `json:"limited_users"`
	TotalActiveRequests int      `json:"total_active_requests"`
	TotalBlocked        int64    `json:"total_blocked_requests"`
	TotalAllowed        int64    `json:"total_allowed_requests"`
	AveragePerKey       float64  `json:"average_requests_per_user"`
}

// SweepResult reports what a maintenance sweep removed.
type SweepResult struct {
	RemovedRequests  int `json:"removed_requests"`
	KeysCleaned      int `json:"users_cleaned"`
	EmptyKeysRemoved int `json:"empty_users_removed"`
	RemainingKeys    int `json:"remaining_users"`
}
