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

package history

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when no context exists for a user.
var ErrNotFound = errors.New("context not found")

// Store persists user contexts.
type Store interface {
	Get(ctx context.Context, userID int64) (*Context, error)
	Save(ctx context.Context, c *Context) error
	// Clear empties the stored messages. Unknown users are ignored.
	Clear(ctx context.Context, userID int64) error
	Delete(ctx context.Context, userID int64) error
	All(ctx context.Context) ([]*Context, error)
}

// MemoryStore keeps contexts in a map. Values are copied on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[int64]*Context
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contexts: make(map[int64]*Context)}
}

// Get returns the conversation context for userID or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, userID int64) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

// Save stores c, replacing any previous context for its user.
func (s *MemoryStore) Save(ctx context.Context, c *Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[c.UserID] = c.clone()
	return nil
}

// Clear empties the user's messages.
func (s *MemoryStore) Clear(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[userID]; ok {
		c.Clear()
	}
	return nil
}

// Delete removes the user's context.
func (s *MemoryStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, userID)
	return nil
}

// All returns every stored context ordered by user ID.
func (s *MemoryStore) All(ctx context.Context) ([]*Context, error) {
	s.mu.RLock()
	out := make([]*Context, 0, len(s.contexts))
	for _, c := range s.contexts {
		out = append(out, c.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
