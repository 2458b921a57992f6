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

// Package settings holds the bot settings that admins change at runtime.
package settings

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrNotFound is returned by a Store that has never been written.
	ErrNotFound = errors.New("settings not found")

	// ErrNotAdmin is returned when a non-admin attempts a change.
	ErrNotAdmin = errors.New("not an admin")

	// ErrInvalidSetting wraps every validation failure.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Bounds for admin-editable values.
const (
	MinContextSize       = 1
	MaxContextSize       = 50
	MinDefaultLimit      = 1
	MaxDefaultLimit      = 1000
	MaxWelcomeLength     = 1000
	MinRateLimitCalls    = 1
	MaxRateLimitCalls    = 100
	MinRateLimitPeriod   = 1
	MaxRateLimitPeriod   = 3600
	MinProxyKeyLength    = 10
	DefaultWelcome       = "Hi! I am an AI assistant. Ask me anything."
	DefaultSystemPrompt  = "You are a helpful assistant."
	DefaultModel         = "gpt-3.5-turbo"
	DefaultContextSize   = 10
	DefaultUserLimit     = 50
	DefaultRateCalls     = 5
	DefaultRatePeriodSec = 60
)

// DefaultModels is the model allow-list for OpenAI-compatible backends.
var DefaultModels = []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini"}

// Setting names accepted by ValidateSettingValue.
const (
	NameContextSize      = "context_size"
	NameDefaultUserLimit = "default_user_limit"
	NameWelcomeMessage   = "welcome_message"
	NameModel            = "model"
	NameRateLimitCalls   = "rate_limit_calls"
	NameRateLimitPeriod  = "rate_limit_period"
	NameProxyURL         = "proxy_url"
	NameProxyKey         = "proxy_key"
)

// BotSettings is the mutable bot configuration.
type BotSettings struct {
	DefaultUserLimit int    `json:"default_user_limit"`
	ContextSize      int    `json:"context_size"`
	Model            string `json:"model"`
	SystemPrompt     string `json:"system_prompt"`
	WelcomeMessage   string `json:"welcome_message"`

	UseProxy bool   `json:"use_proxy"`
	ProxyURL string `json:"proxy_url,omitempty"`
	ProxyKey string `json:"proxy_key,omitempty"`

	RateLimitEnabled bool `json:"rate_limit_enabled"`
	RateLimitCalls   int  `json:"rate_limit_calls"`
	RateLimitPeriod  int  `json:"rate_limit_period"`

	MaintenanceMode bool `json:"maintenance_mode"`

	// Customized is set by every admin change and cleared by a reset to
	// defaults. Only uncustomized settings follow config reloads.
	Customized bool      `json:"customized"`
	UpdatedAt  time.Time `json:"updated_at"`
	UpdatedBy  int64     `json:"updated_by"`
}

// Defaults returns the built-in settings.
func Defaults() BotSettings {
	return BotSettings{
		DefaultUserLimit: DefaultUserLimit,
		ContextSize:      DefaultContextSize,
		Model:            DefaultModel,
		SystemPrompt:     DefaultSystemPrompt,
		WelcomeMessage:   DefaultWelcome,
		RateLimitEnabled: true,
		RateLimitCalls:   DefaultRateCalls,
		RateLimitPeriod:  DefaultRatePeriodSec,
	}
}

// Validate checks every bounded field against models.
func (s *BotSettings) Validate(models []string) error {
	if err := checkRange("context size", s.ContextSize, MinContextSize, MaxContextSize); err != nil {
		return err
	}
	if err := checkRange("default user limit", s.DefaultUserLimit, MinDefaultLimit, MaxDefaultLimit); err != nil {
		return err
	}
	if _, err := validateWelcome(s.WelcomeMessage); err != nil {
		return err
	}
	if _, err := validateModel(s.Model, models); err != nil {
		return err
	}
	if err := checkRange("rate limit calls", s.RateLimitCalls, MinRateLimitCalls, MaxRateLimitCalls); err != nil {
		return err
	}
	if err := checkRange("rate limit period", s.RateLimitPeriod, MinRateLimitPeriod, MaxRateLimitPeriod); err != nil {
		return err
	}
	if s.ProxyURL != "" {
		if _, err := NormalizeProxyURL(s.ProxyURL); err != nil {
			return err
		}
	}
	if _, err := validateProxyKey(s.ProxyKey); err != nil {
		return err
	}
	if s.UseProxy && s.ProxyURL == "" {
		return fmt.Errorf("%w: proxy is enabled but no proxy URL is set", ErrInvalidSetting)
	}
	return nil
}

// ValidateSettingValue parses and validates raw for the named setting and
// returns the typed value (int or string).
func ValidateSettingValue(name, raw string, models []string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch name {
	case NameContextSize:
		return parseBounded("context size", raw, MinContextSize, MaxContextSize)
	case NameDefaultUserLimit:
		return parseBounded("default user limit", raw, MinDefaultLimit, MaxDefaultLimit)
	case NameRateLimitCalls:
		return parseBounded("rate limit calls", raw, MinRateLimitCalls, MaxRateLimitCalls)
	case NameRateLimitPeriod:
		return parseBounded("rate limit period", raw, MinRateLimitPeriod, MaxRateLimitPeriod)
	case NameWelcomeMessage:
		return validateWelcome(raw)
	case NameModel:
		return validateModel(raw, models)
	case NameProxyURL:
		return NormalizeProxyURL(raw)
	case NameProxyKey:
		return validateProxyKey(raw)
	default:
		return nil, fmt.Errorf("%w: unknown setting %q", ErrInvalidSetting, name)
	}
}

// NormalizeProxyURL requires an http(s) URL with a host and strips a
// trailing slash and "/v1".
func NormalizeProxyURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: proxy URL must start with http:// or https:// and include a host", ErrInvalidSetting)
	}
	raw = strings.TrimRight(raw, "/")
	raw = strings.TrimSuffix(raw, "/v1")
	return raw, nil
}

func parseBounded(label, raw string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidSetting, label)
	}
	if err := checkRange(label, n, lo, hi); err != nil {
		return 0, err
	}
	return n, nil
}

func checkRange(label string, n, lo, hi int) error {
	if n < lo || n > hi {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidSetting, label, lo, hi)
	}
	return nil
}

func validateWelcome(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: welcome message cannot be empty", ErrInvalidSetting)
	}
	if utf8.RuneCountInString(raw) > MaxWelcomeLength {
		return "", fmt.Errorf("%w: welcome message must be at most %d characters", ErrInvalidSetting, MaxWelcomeLength)
	}
	return raw, nil
}

func validateModel(raw string, models []string) (string, error) {
	if len(models) == 0 {
		models = DefaultModels
	}
	if !slices.Contains(models, raw) {
		return "", fmt.Errorf("%w: model must be one of %s", ErrInvalidSetting, strings.Join(models, ", "))
	}
	return raw, nil
}

func validateProxyKey(raw string) (string, error) {
	if raw != "" && len(raw) < MinProxyKeyLength {
		return "", fmt.Errorf("%w: proxy key must be at least %d characters", ErrInvalidSetting, MinProxyKeyLength)
	}
	return raw, nil
}
