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

package users

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps profiles in a map guarded by a single lock.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[int64]*Profile
	now      func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[int64]*Profile),
		now:      time.Now,
	}
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	if p.LastRequestAt != nil {
		t := *p.LastRequestAt
		cp.LastRequestAt = &t
	}
	return &cp
}

// Get returns the profile for userID or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, userID int64) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProfile(p), nil
}

// Create inserts a new profile, or returns ErrExists if the user is known.
func (s *MemoryStore) Create(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return ErrExists
	}
	cp := copyProfile(p)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.profiles[p.UserID] = cp
	return nil
}

// Update replaces the stored profile.
func (s *MemoryStore) Update(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; !ok {
		return ErrNotFound
	}
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

// IncrementRequests adds one to the user's request counter and returns the new value.
func (s *MemoryStore) IncrementRequests(ctx context.Context, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return 0, ErrNotFound
	}
	p.RequestsUsed++
	now := s.now()
	p.LastRequestAt = &now
	return p.RequestsUsed, nil
}

// ResetRequests zeroes the user's request counter.
func (s *MemoryStore) ResetRequests(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.RequestsUsed = 0
	return nil
}

// SetLimit sets the user's request limit.
func (s *MemoryStore) SetLimit(ctx context.Context, userID int64, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	p.RequestsLimit = limit
	return nil
}

// GetAll returns every profile ordered by user ID.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*Profile, error) {
	s.mu.RLock()
	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, copyProfile(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ResetAll zeroes every non-zero request counter and returns how many it reset.
func (s *MemoryStore) ResetAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.profiles {
		if p.RequestsUsed != 0 {
			p.RequestsUsed = 0
			n++
		}
	}
	return n, nil
}

var _ Store = (*MemoryStore)(nil)
