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
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/chatgate/pkg/keylock"
)

// MemoryStore is an in-memory implementation of RecordStore.
// It is suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]time.Time
	locks   *keylock.KeyedMutex[string]
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]time.Time),
		locks:   keylock.New[string](),
	}
}

// Update applies fn to the record for key under the key's lock. An empty
// result removes the record.
func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.RLock()
	current := s.records[key]
	s.mu.RUnlock()

	next := fn(current)

	s.mu.Lock()
	if len(next) == 0 {
		delete(s.records, key)
	} else {
		s.records[key] = next
	}
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the record for key.
func (s *MemoryStore) Load(ctx context.Context, key string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := make([]time.Time, len(record))
	copy(out, record)
	return out, nil
}

// Delete removes the record for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Keys lists every key with a record, sorted.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Close clears all records.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]time.Time)
	return nil
}

// Size returns the number of records in the store (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ RecordStore = (*MemoryStore)(nil)
