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

package admin

import (
	"context"
	"sync"
	"time"
)

// DefaultSessionTTL bounds how long an abandoned wizard keeps capturing the
// admin's next message.
const DefaultSessionTTL = 10 * time.Minute

// SessionStore holds wizard states keyed by admin id.
type SessionStore interface {
	Get(ctx context.Context, adminID int64) (State, error)
	Set(ctx context.Context, adminID int64, st State) error
	Clear(ctx context.Context, adminID int64) error
}

type session struct {
	state   State
	expires time.Time
}

// MemorySessionStore keeps sessions in process memory with a TTL.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]session
	ttl      time.Duration
	now      func() time.Time
}

// SessionOption configures a MemorySessionStore.
type SessionOption func(*MemorySessionStore)

// WithSessionTTL sets the TTL. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *MemorySessionStore) { s.ttl = ttl }
}

// WithSessionClock overrides the clock.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *MemorySessionStore) { s.now = now }
}

func NewMemorySessionStore(opts ...SessionOption) *MemorySessionStore {
	s := &MemorySessionStore{
		sessions: make(map[int64]session),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the admin's state, or Idle when none is pending or it expired.
func (s *MemorySessionStore) Get(ctx context.Context, adminID int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[adminID]
	if !ok {
		return State{Kind: Idle}, nil
	}
	if !sess.expires.IsZero() && s.now().After(sess.expires) {
		delete(s.sessions, adminID)
		return State{Kind: Idle}, nil
	}
	return sess.state, nil
}

// Set stores st. Setting an idle state clears the session.
func (s *MemorySessionStore) Set(ctx context.Context, adminID int64, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.IsIdle() {
		delete(s.sessions, adminID)
		return nil
	}
	sess := session{state: st}
	if s.ttl > 0 {
		sess.expires = s.now().Add(s.ttl)
	}
	s.sessions[adminID] = sess
	return nil
}

func (s *MemorySessionStore) Clear(ctx context.Context, adminID int64) error {
	s.mu.Lock()
	delete(s.sessions, adminID)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
