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

// Package quota tracks per-user daily request budgets on top of a users.Store.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/chatgate/pkg/keylock"
	"github.com/kadirpekel/chatgate/pkg/users"
)

// DefaultLimit applies when no limit function is configured.
const DefaultLimit = 50

var (
	// ErrUnknownUser is returned when an operation targets a user that was
	// never created.
	ErrUnknownUser = errors.New("unknown user")

	// ErrQuotaExhausted is returned by Use when nothing is left to spend.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrInvalidLimit is returned by SetLimit for negative limits.
	ErrInvalidLimit = errors.New("invalid limit")
)

// LimitFunc returns the limit given to newly created users.
type LimitFunc func(ctx context.Context) int

// Usage is a read-only view of one user's quota.
type Usage struct {
	UserID        int64      `json:"user_id"`
	Limit         int        `json:"limit"`
	Used          int        `json:"used"`
	Remaining     int        `json:"remaining"`
	Active        bool       `json:"active"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
}

// Summary aggregates quota state across users.
type Summary struct {
	Users     int `json:"users"`
	Active    int `json:"active"`
	UsedToday int `json:"used_today"`
	Exhausted int `json:"exhausted"`
}

// Tracker serializes quota mutations per user.
type Tracker struct {
	store        users.Store
	defaultLimit LimitFunc
	locks        *keylock.KeyedMutex[int64]
}

// NewTracker creates a tracker over store.
func NewTracker(store users.Store, defaultLimit LimitFunc) *Tracker {
	if defaultLimit == nil {
		defaultLimit = func(context.Context) int { return DefaultLimit }
	}
	return &Tracker{
		store:        store,
		defaultLimit: defaultLimit,
		locks:        keylock.New[int64](),
	}
}

// GetOrCreate returns the user's profile, creating it with the default limit.
func (t *Tracker) GetOrCreate(ctx context.Context, userID int64, firstName, lastName string) (*users.Profile, error) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	p, err := t.store.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	p = &users.Profile{
		UserID:        userID,
		FirstName:     firstName,
		LastName:      lastName,
		RequestsLimit: t.defaultLimit(ctx),
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := t.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", userID, err)
	}
	slog.Info("User created", "user_id", userID, "requests_limit", p.RequestsLimit)
	return p, nil
}

// CanRequest reports whether the user has quota left. Unknown users cannot
// request.
func (t *Tracker) CanRequest(ctx context.Context, userID int64) (bool, error) {
	p, err := t.store.Get(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return p.CanRequest(), nil
}

// Use spends one request and returns the new used count.
func (t *Tracker) Use(ctx context.Context, userID int64) (int, error) {
	unlock := t.locks.Lock(userID)
	defer unlock()

	p, err := t.store.Get(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return 0, fmt.Errorf("use request for %d: %w", userID, ErrUnknownUser)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if p.Remaining() <= 0 {
		return p.RequestsUsed, fmt.Errorf("use request for %d: %w", userID, ErrQuotaExhausted)
	}

	used, err := t.store.IncrementRequests(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment requests for %d: %w", userID, err)
	}
	return used, nil
}

// Reset zeroes one user's used counter.
func (t *Tracker) Reset(ctx context.Context, userID int64) error {
	unlock := t.locks.Lock(userID)
	defer unlock()

	if err := t.store.ResetRequests(ctx, userID); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return fmt.Errorf("reset %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("failed to reset user %d: %w", userID, err)
	}
	slog.Info("User quota reset", "user_id", userID)
	return nil
}

// ResetAll zeroes every user's used counter and returns how many changed.
func (t *Tracker) ResetAll(ctx context.Context) (int, error) {
	n, err := t.store.ResetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset all quotas: %w", err)
	}
	slog.Info("All user quotas reset", "users", n)
	return n, nil
}

// SetLimit changes one user's daily limit.
func (t *Tracker) SetLimit(ctx context.Context, userID int64, limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	unlock := t.locks.Lock(userID)
	defer unlock()

	if err := t.store.SetLimit(ctx, userID, limit); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return fmt.Errorf("set limit for %d: %w", userID, ErrUnknownUser)
		}
		return fmt.Errorf("failed to set limit for %d: %w", userID, err)
	}
	slog.Info("User limit updated", "user_id", userID, "limit", limit)
	return nil
}

// Stats returns one user's usage.
func (t *Tracker) Stats(ctx context.Context, userID int64) (Usage, error) {
	p, err := t.store.Get(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return Usage{}, fmt.Errorf("stats for %d: %w", userID, ErrUnknownUser)
	}
	if err != nil {
		return Usage{}, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return usageOf(p), nil
}

// List returns the usage of every user.
func (t *Tracker) List(ctx context.Context) ([]Usage, error) {
	all, err := t.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]Usage, len(all))
	for i, p := range all {
		out[i] = usageOf(p)
	}
	return out, nil
}

// Summarize aggregates usage across users.
func (t *Tracker) Summarize(ctx context.Context) (Summary, error) {
	all, err := t.store.GetAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list users: %w", err)
	}
	var s Summary
	for _, p := range all {
		s.Users++
		if p.IsActive {
			s.Active++
		}
		s.UsedToday += p.RequestsUsed
		if p.Remaining() == 0 {
			s.Exhausted++
		}
	}
	return s, nil
}

func usageOf(p *users.Profile) Usage {
	return Usage{
		UserID:        p.UserID,
		Limit:         p.RequestsLimit,
		Used:          p.RequestsUsed,
		Remaining:     p.Remaining(),
		Active:        p.IsActive,
		LastRequestAt: p.LastRequestAt,
	}
}
