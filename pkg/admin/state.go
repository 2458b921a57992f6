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

// Package admin implements the multi-step admin wizard as an explicit state
// machine. Each admin has at most one pending State; the next text message
// they send is routed to the input handler of that state's Kind.
package admin

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names what the wizard is waiting for.
type Kind string

const (
	Idle                    Kind = "idle"
	AwaitingContextSize     Kind = "awaiting_context_size"
	AwaitingDefaultLimit    Kind = "awaiting_default_limit"
	AwaitingWelcome         Kind = "awaiting_welcome"
	AwaitingRateLimitCalls  Kind = "awaiting_rate_limit_calls"
	AwaitingRateLimitPeriod Kind = "awaiting_rate_limit_period"
	AwaitingProxyURL        Kind = "awaiting_proxy_url"
	AwaitingProxyKey        Kind = "awaiting_proxy_key"
	AwaitingWhitelistAdd    Kind = "awaiting_whitelist_add"
	AwaitingWhitelistRemove Kind = "awaiting_whitelist_remove"
	AwaitingBlacklistAdd    Kind = "awaiting_blacklist_add"
	AwaitingBlacklistRemove Kind = "awaiting_blacklist_remove"
	AwaitingUserTarget      Kind = "awaiting_user_target"
	AwaitingNewLimit        Kind = "awaiting_new_limit"
)

// State is one admin's wizard position. Target is the user being managed and
// is only meaningful for AwaitingNewLimit.
type State struct {
	Kind   Kind  `json:"kind"`
	Target int64 `json:"target,omitempty"`
}

// IsIdle reports whether no input is pending.
func (s State) IsIdle() bool {
	return s.Kind == "" || s.Kind == Idle
}

func (s State) String() string {
	if s.Kind == AwaitingNewLimit {
		return fmt.Sprintf("%s(%d)", s.Kind, s.Target)
	}
	return string(s.Kind)
}

// Menu is where the admin returns after a wizard step.
type Menu string

const (
	MenuAdmin     Menu = "admin"
	MenuSettings  Menu = "settings"
	MenuRateLimit Menu = "rate_limit"
	MenuProxy     Menu = "proxy"
	MenuAccess    Menu = "access"
	MenuUser      Menu = "user"
)

// setCommandKinds maps "/set <name>" arguments to wizard entries.
var setCommandKinds = map[string]Kind{
	"context":   AwaitingContextSize,
	"limit":     AwaitingDefaultLimit,
	"welcome":   AwaitingWelcome,
	"calls":     AwaitingRateLimitCalls,
	"period":    AwaitingRateLimitPeriod,
	"proxy_url": AwaitingProxyURL,
	"proxy_key": AwaitingProxyKey,
}

// KindForSetting resolves a "/set" argument.
func KindForSetting(name string) (Kind, bool) {
	k, ok := setCommandKinds[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

// SettingNames lists the accepted "/set" arguments in display order.
func SettingNames() []string {
	return []string{"context", "limit", "welcome", "calls", "period", "proxy_url", "proxy_key"}
}

// ParseUserID accepts a numeric id, optionally prefixed with "id" or "@id".
func ParseUserID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimPrefix(strings.ToLower(s), "id")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a user id", raw)
	}
	return id, nil
}

// IsCancel reports whether text aborts the wizard.
func IsCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/cancel", "cancel", "back", "❌ cancel", "⬅️ back":
		return true
	}
	return false
}
