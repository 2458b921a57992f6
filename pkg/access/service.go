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

package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/chatgate/pkg/settings"
)

// AdminFunc reports whether a user is an admin.
type AdminFunc func(userID int64) bool

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultMode sets the mode of the policy created when the store is empty.
func WithDefaultMode(mode Mode) ServiceOption {
	return func(s *Service) {
		if mode.Valid() {
			s.defaultMode = mode
		}
	}
}

// Service applies the access policy and records admin changes.
type Service struct {
	store       Store
	isAdmin     AdminFunc
	now         func() time.Time
	defaultMode Mode

	mu     sync.Mutex
	cached *Control
}

// NewService creates a service over store.
func NewService(store Store, isAdmin AdminFunc, opts ...ServiceOption) *Service {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	s := &Service{
		store:       store,
		isAdmin:     isAdmin,
		now:         time.Now,
		defaultMode: ModePublic,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAllowed implements Gate.
func (s *Service) IsAllowed(ctx context.Context, userID int64) (bool, error) {
	c, err := s.Control(ctx)
	if err != nil {
		return false, err
	}
	return c.Allows(userID, s.isAdmin(userID)), nil
}

// DeniedMessage explains a refusal to userID.
func (s *Service) DeniedMessage(ctx context.Context, userID int64) (string, error) {
	c, err := s.Control(ctx)
	if err != nil {
		return "", err
	}
	return c.DeniedMessage(userID), nil
}

// Control returns a copy of the current policy, creating the default on
// first use.
func (s *Service) Control(ctx context.Context) (*Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.clone(), nil
}

// SetMode changes the access mode.
func (s *Service) SetMode(ctx context.Context, mode Mode, actor int64) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	_, err := s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		if c.Mode == mode {
			return false, "", nil
		}
		action := describeModeChange(c.Mode, mode)
		c.Mode = mode
		return true, action, nil
	})
	return err
}

// AddToWhitelist reports false if the user was already listed.
func (s *Service) AddToWhitelist(ctx context.Context, userID, actor int64) (bool, error) {
	return s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		return c.addWhitelist(userID), fmt.Sprintf("user %d added to whitelist", userID), nil
	})
}

// RemoveFromWhitelist reports false if the user was not listed.
func (s *Service) RemoveFromWhitelist(ctx context.Context, userID, actor int64) (bool, error) {
	return s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		return c.removeWhitelist(userID), fmt.Sprintf("user %d removed from whitelist", userID), nil
	})
}

// AddToBlacklist blocks userID and drops them from the whitelist.
func (s *Service) AddToBlacklist(ctx context.Context, userID, actor int64) (bool, error) {
	if userID == actor || s.isAdmin(userID) {
		return false, ErrCannotBlockAdmin
	}
	return s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		return c.addBlacklist(userID), fmt.Sprintf("user %d blocked", userID), nil
	})
}

// RemoveFromBlacklist unblocks userID.
func (s *Service) RemoveFromBlacklist(ctx context.Context, userID, actor int64) (bool, error) {
	return s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		return c.removeBlacklist(userID), fmt.Sprintf("user %d unblocked", userID), nil
	})
}

// UpdateMessages replaces the non-empty denial messages.
func (s *Service) UpdateMessages(ctx context.Context, actor int64, whitelist, adminOnly, blocked string) error {
	_, err := s.mutate(ctx, actor, func(c *Control) (bool, string, error) {
		if whitelist != "" {
			c.WhitelistMessage = whitelist
		}
		if adminOnly != "" {
			c.AdminOnlyMessage = adminOnly
		}
		if blocked != "" {
			c.BlockedMessage = blocked
		}
		return true, "access messages updated", nil
	})
	return err
}

// Stats summarizes the policy.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	c, err := s.Control(ctx)
	if err != nil {
		return Stats{}, err
	}
	history, err := s.store.History(ctx, 10)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Mode:           c.Mode,
		WhitelistCount: len(c.Whitelist),
		BlacklistCount: len(c.Blacklist),
		Whitelist:      c.Whitelist,
		Blacklist:      c.Blacklist,
		HistoryCount:   len(history),
	}, nil
}

// History returns up to limit records, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	return s.store.History(ctx, limit)
}

func (s *Service) authorize(actor int64) error {
	if actor == settings.APIActor || s.isAdmin(actor) {
		return nil
	}
	return fmt.Errorf("user %d: %w", actor, ErrNotAdmin)
}

// mutate applies fn to a copy of the policy and persists it if fn reports a
// change.
func (s *Service) mutate(ctx context.Context, actor int64, fn func(c *Control) (bool, string, error)) (bool, error) {
	if err := s.authorize(actor); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	next := current.clone()
	changed, action, err := fn(next)
	if err != nil || !changed {
		return false, err
	}

	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor
	if err := s.store.SaveControl(ctx, next); err != nil {
		return false, fmt.Errorf("failed to save access control: %w", err)
	}
	s.cached = next

	record := HistoryRecord{
		ID:        uuid.NewString(),
		Timestamp: next.UpdatedAt,
		Action:    action,
		AdminID:   actor,
	}
	if err := s.store.AddHistory(ctx, record); err != nil {
		slog.Warn("Failed to record access change", "action", action, "error", err)
	}
	slog.Info("Access control changed", "action", action, "actor", actor)
	return true, nil
}

// load must be called with s.mu held.
func (s *Service) load(ctx context.Context) (*Control, error) {
	if s.cached != nil {
		return s.cached, nil
	}
	c, err := s.store.GetControl(ctx)
	if errors.Is(err, ErrNotFound) {
		c = DefaultControl()
		c.Mode = s.defaultMode
		if err := s.store.SaveControl(ctx, c); err != nil {
			return nil, fmt.Errorf("failed to save default access control: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load access control: %w", err)
	}
	s.cached = c
	return c, nil
}

var _ Gate = (*Service)(nil)
