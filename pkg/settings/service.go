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

package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/chatgate/pkg/ratelimit"
)

// APIActor identifies changes made through the authenticated HTTP API.
const APIActor int64 = -1

// ChangeFunc observes a committed settings change.
type ChangeFunc func(old, updated BotSettings)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithModels overrides the model allow-list.
func WithModels(models []string) ServiceOption {
	return func(s *Service) {
		if len(models) > 0 {
			s.models = slices.Clone(models)
		}
	}
}

// WithServiceClock overrides the clock used for UpdatedAt.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// RateLimitInfo summarizes the limiter settings for display.
type RateLimitInfo struct {
	Enabled     bool   `json:"enabled"`
	Calls       int    `json:"calls"`
	Period      int    `json:"period"`
	Description string `json:"description"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	ContextSize      *int    `json:"context_size,omitempty"`
	DefaultUserLimit *int    `json:"default_user_limit,omitempty"`
	Model            *string `json:"model,omitempty"`
	SystemPrompt     *string `json:"system_prompt,omitempty"`
	WelcomeMessage   *string `json:"welcome_message,omitempty"`
	UseProxy         *bool   `json:"use_proxy,omitempty"`
	ProxyURL         *string `json:"proxy_url,omitempty"`
	ProxyKey         *string `json:"proxy_key,omitempty"`
	RateLimitEnabled *bool   `json:"rate_limit_enabled,omitempty"`
	RateLimitCalls   *int    `json:"rate_limit_calls,omitempty"`
	RateLimitPeriod  *int    `json:"rate_limit_period,omitempty"`
	MaintenanceMode  *bool   `json:"maintenance_mode,omitempty"`
}

// Service reads settings with a defaults fallback and applies admin changes.
type Service struct {
	store Store
	now   func() time.Time

	mu        sync.RWMutex
	defaults  BotSettings
	admins    map[int64]struct{}
	models    []string
	listeners []ChangeFunc

	write sync.Mutex
}

// NewService creates a service over store.
func NewService(store Store, defaults BotSettings, adminIDs []int64, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		defaults: defaults,
		admins:   make(map[int64]struct{}, len(adminIDs)),
		models:   slices.Clone(DefaultModels),
	}
	for _, id := range adminIDs {
		s.admins[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAdmin reports whether userID is a configured admin.
func (s *Service) IsAdmin(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.admins[userID]
	return ok
}

// AdminIDs returns the configured admins in ascending order.
func (s *Service) AdminIDs() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Models returns the model allow-list.
func (s *Service) Models() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.models)
}

// OnChange registers fn to run after each committed change.
func (s *Service) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Get returns the stored settings, or the defaults if none were saved.
func (s *Service) Get(ctx context.Context) (BotSettings, error) {
	stored, err := s.store.GetBotSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return s.Defaults(), nil
	}
	if err != nil {
		return BotSettings{}, fmt.Errorf("failed to load bot settings: %w", err)
	}
	return *stored, nil
}

// Defaults returns the current configured defaults.
func (s *Service) Defaults() BotSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// GetRateLimitSettings makes Service a ratelimit.SettingsSource.
func (s *Service) GetRateLimitSettings(ctx context.Context) (ratelimit.Settings, error) {
	bs, err := s.Get(ctx)
	if err != nil {
		return ratelimit.Settings{}, err
	}
	return ratelimit.Settings{
		Enabled: bs.RateLimitEnabled,
		Calls:   bs.RateLimitCalls,
		Period:  time.Duration(bs.RateLimitPeriod) * time.Second,
	}, nil
}

// ContextSize returns the context size for new contexts, falling back to
// the defaults when the store is unavailable.
func (s *Service) ContextSize(ctx context.Context) int {
	bs, err := s.Get(ctx)
	if err != nil {
		slog.Warn("Using default context size", "error", err)
		return s.Defaults().ContextSize
	}
	return bs.ContextSize
}

// DefaultUserLimit returns the limit for new users, with the same fallback.
func (s *Service) DefaultUserLimit(ctx context.Context) int {
	bs, err := s.Get(ctx)
	if err != nil {
		slog.Warn("Using default user limit", "error", err)
		return s.Defaults().DefaultUserLimit
	}
	return bs.DefaultUserLimit
}

// RateLimitInfo describes the limiter settings.
func (s *Service) RateLimitInfo(ctx context.Context) (RateLimitInfo, error) {
	rl, err := s.GetRateLimitSettings(ctx)
	if err != nil {
		return RateLimitInfo{}, err
	}
	return RateLimitInfo{
		Enabled:     rl.Enabled,
		Calls:       rl.Calls,
		Period:      int(rl.Period / time.Second),
		Description: rl.Description(),
	}, nil
}

// Update applies fn as actor, validates the result, and persists it.
func (s *Service) Update(ctx context.Context, actor int64, fn func(*BotSettings) error) (BotSettings, error) {
	if actor != APIActor && !s.IsAdmin(actor) {
		return BotSettings{}, fmt.Errorf("user %d: %w", actor, ErrNotAdmin)
	}

	s.write.Lock()
	defer s.write.Unlock()

	old, err := s.Get(ctx)
	if err != nil {
		return BotSettings{}, err
	}

	next := old
	if err := fn(&next); err != nil {
		return BotSettings{}, err
	}
	if err := next.Validate(s.Models()); err != nil {
		return BotSettings{}, err
	}
	next.Customized = true
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor

	if err := s.store.UpdateBotSettings(ctx, &next); err != nil {
		return BotSettings{}, fmt.Errorf("failed to save bot settings: %w", err)
	}

	slog.Info("Bot settings updated", "actor", actor)
	s.notify(old, next)
	return next, nil
}

// Apply validates raw for the named setting and stores it.
func (s *Service) Apply(ctx context.Context, actor int64, name, raw string) (BotSettings, error) {
	value, err := ValidateSettingValue(name, raw, s.Models())
	if err != nil {
		return BotSettings{}, err
	}
	return s.Update(ctx, actor, func(bs *BotSettings) error {
		switch name {
		case NameContextSize:
			bs.ContextSize = value.(int)
		case NameDefaultUserLimit:
			bs.DefaultUserLimit = value.(int)
		case NameRateLimitCalls:
			bs.RateLimitCalls = value.(int)
		case NameRateLimitPeriod:
			bs.RateLimitPeriod = value.(int)
		case NameWelcomeMessage:
			bs.WelcomeMessage = value.(string)
		case NameModel:
			bs.Model = value.(string)
		case NameProxyURL:
			bs.ProxyURL = value.(string)
		case NameProxyKey:
			bs.ProxyKey = value.(string)
		}
		return nil
	})
}

// ApplyPatch applies every non-nil field of p.
func (s *Service) ApplyPatch(ctx context.Context, actor int64, p Patch) (BotSettings, error) {
	return s.Update(ctx, actor, func(bs *BotSettings) error {
		setInt(&bs.ContextSize, p.ContextSize)
		setInt(&bs.DefaultUserLimit, p.DefaultUserLimit)
		setInt(&bs.RateLimitCalls, p.RateLimitCalls)
		setInt(&bs.RateLimitPeriod, p.RateLimitPeriod)
		setString(&bs.Model, p.Model)
		setString(&bs.SystemPrompt, p.SystemPrompt)
		setString(&bs.WelcomeMessage, p.WelcomeMessage)
		setString(&bs.ProxyKey, p.ProxyKey)
		setBool(&bs.UseProxy, p.UseProxy)
		setBool(&bs.RateLimitEnabled, p.RateLimitEnabled)
		setBool(&bs.MaintenanceMode, p.MaintenanceMode)
		if p.ProxyURL != nil {
			if *p.ProxyURL == "" {
				bs.ProxyURL = ""
				return nil
			}
			u, err := NormalizeProxyURL(*p.ProxyURL)
			if err != nil {
				return err
			}
			bs.ProxyURL = u
		}
		return nil
	})
}

// SetRateLimit changes calls and period together.
func (s *Service) SetRateLimit(ctx context.Context, actor int64, calls, periodSeconds int) (BotSettings, error) {
	return s.Update(ctx, actor, func(bs *BotSettings) error {
		bs.RateLimitCalls = calls
		bs.RateLimitPeriod = periodSeconds
		return nil
	})
}

// ToggleRateLimit flips the limiter and returns the new state.
func (s *Service) ToggleRateLimit(ctx context.Context, actor int64) (bool, error) {
	bs, err := s.Update(ctx, actor, func(bs *BotSettings) error {
		bs.RateLimitEnabled = !bs.RateLimitEnabled
		return nil
	})
	return bs.RateLimitEnabled, err
}

// ToggleMaintenance flips maintenance mode and returns the new state.
func (s *Service) ToggleMaintenance(ctx context.Context, actor int64) (bool, error) {
	bs, err := s.Update(ctx, actor, func(bs *BotSettings) error {
		bs.MaintenanceMode = !bs.MaintenanceMode
		return nil
	})
	return bs.MaintenanceMode, err
}

// SetUseProxy switches between the direct and proxy endpoints.
func (s *Service) SetUseProxy(ctx context.Context, actor int64, enabled bool) (BotSettings, error) {
	return s.Update(ctx, actor, func(bs *BotSettings) error {
		bs.UseProxy = enabled
		return nil
	})
}

// ResetToDefaults restores the configured defaults.
func (s *Service) ResetToDefaults(ctx context.Context, actor int64) (BotSettings, error) {
	if actor != APIActor && !s.IsAdmin(actor) {
		return BotSettings{}, fmt.Errorf("user %d: %w", actor, ErrNotAdmin)
	}
	s.write.Lock()
	defer s.write.Unlock()

	old, err := s.Get(ctx)
	if err != nil {
		return BotSettings{}, err
	}
	next := s.Defaults()
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor
	if err := s.store.UpdateBotSettings(ctx, &next); err != nil {
		return BotSettings{}, fmt.Errorf("failed to save bot settings: %w", err)
	}
	slog.Info("Bot settings reset to defaults", "actor", actor)
	s.notify(old, next)
	return next, nil
}

// Reseed replaces the defaults, for example after a config reload. Stored
// settings that no admin has customized are replaced too. It reports
// whether the effective settings changed.
func (s *Service) Reseed(ctx context.Context, defaults BotSettings, adminIDs []int64) (bool, error) {
	s.mu.Lock()
	s.defaults = defaults
	s.admins = make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		s.admins[id] = struct{}{}
	}
	s.mu.Unlock()

	s.write.Lock()
	defer s.write.Unlock()

	stored, err := s.store.GetBotSettings(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("failed to load bot settings: %w", err)
	case stored.Customized:
		return false, nil
	}

	next := defaults
	next.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateBotSettings(ctx, &next); err != nil {
		return false, fmt.Errorf("failed to save bot settings: %w", err)
	}
	s.notify(*stored, next)
	return true, nil
}

func (s *Service) notify(old, updated BotSettings) {
	s.mu.RLock()
	listeners := slices.Clone(s.listeners)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(old, updated)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

var _ ratelimit.SettingsSource = (*Service)(nil)
