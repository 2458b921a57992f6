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
	"fmt"
	"log/slog"

	"github.com/kadirpekel/chatgate/pkg/keylock"
)

// DefaultContextSize applies when no size function is configured.
const DefaultContextSize = 10

// SizeFunc returns the context size to use for newly created contexts.
type SizeFunc func(ctx context.Context) int

// Manager creates contexts lazily and serializes mutations per user.
type Manager struct {
	store Store
	size  SizeFunc
	locks *keylock.KeyedMutex[int64]
}

// NewManager creates a manager over store. size is consulted only when a
// context is first created.
func NewManager(store Store, size SizeFunc) *Manager {
	if size == nil {
		size = func(context.Context) int { return DefaultContextSize }
	}
	return &Manager{
		store: store,
		size:  size,
		locks: keylock.New[int64](),
	}
}

// Get returns the user's context, creating it with the current size setting.
func (m *Manager) Get(ctx context.Context, userID int64) (*Context, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.getOrCreate(ctx, userID)
}

// Snapshot returns the user's messages.
func (m *Manager) Snapshot(ctx context.Context, userID int64) ([]Message, error) {
	c, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return c.Snapshot(), nil
}

// Append adds one message to the user's context and persists it.
func (m *Manager) Append(ctx context.Context, userID int64, role Role, content string) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	c, err := m.getOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	if err := c.Append(role, content); err != nil {
		return err
	}
	if err := m.store.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

// ClearUser empties the user's context.
func (m *Manager) ClearUser(ctx context.Context, userID int64) error {
	unlock := m.locks.Lock(userID)
	defer unlock()

	if err := m.store.Clear(ctx, userID); err != nil {
		return err
	}
	slog.Info("Context cleared", "user_id", userID)
	return nil
}

// Delete removes the user's context entirely.
func (m *Manager) Delete(ctx context.Context, userID int64) error {
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.store.Delete(ctx, userID)
}

// ResizeAll applies a new capacity to every stored context.
func (m *Manager) ResizeAll(ctx context.Context, maxMessages int) (int, error) {
	all, err := m.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contexts: %w", err)
	}

	resized := 0
	for _, c := range all {
		err := func() error {
			unlock := m.locks.Lock(c.UserID)
			defer unlock()

			current, err := m.store.Get(ctx, c.UserID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			current.Resize(maxMessages)
			return m.store.Save(ctx, current)
		}()
		if err != nil {
			return resized, fmt.Errorf("failed to resize context for user %d: %w", c.UserID, err)
		}
		resized++
	}

	slog.Info("Contexts resized", "count", resized, "max_messages", maxMessages)
	return resized, nil
}

func (m *Manager) getOrCreate(ctx context.Context, userID int64) (*Context, error) {
	c, err := m.store.Get(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	c = NewContext(userID, m.size(ctx))
	if err := m.store.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	slog.Debug("Context created", "user_id", userID, "max_messages", c.MaxMessages)
	return c, nil
}
