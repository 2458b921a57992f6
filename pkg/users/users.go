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

// Package users stores user profiles and their daily request counters.
package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a profile does not exist.
var ErrNotFound = errors.New("user not found")

// ErrExists is returned by Create when the profile already exists.
var ErrExists = errors.New("user already exists")

// Profile is a user known to the bot.
type Profile struct {
	UserID        int64      `json:"user_id"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	RequestsLimit int        `json:"requests_limit"`
	RequestsUsed  int        `json:"requests_used"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
}

// Remaining is the number of requests left today, never negative.
func (p *Profile) Remaining() int {
	r := p.RequestsLimit - p.RequestsUsed
	if r < 0 {
		return 0
	}
	return r
}

// CanRequest reports whether the user may make another request.
func (p *Profile) CanRequest() bool {
	return p.IsActive && p.Remaining() > 0
}

// DisplayName joins the first and last name.
func (p *Profile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Store persists profiles. Counter mutations must be atomic per user.
type Store interface {
	Get(ctx context.Context, userID int64) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	// IncrementRequests adds one to the used counter and returns the new value.
	IncrementRequests(ctx context.Context, userID int64) (int, error)
	ResetRequests(ctx context.Context, userID int64) error
	SetLimit(ctx context.Context, userID int64, limit int) error
	GetAll(ctx context.Context) ([]*Profile, error)
	// ResetAll zeroes every used counter and returns how many profiles changed.
	ResetAll(ctx context.Context) (int, error)
}
