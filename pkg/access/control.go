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

// Package access decides which users may talk to the bot.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/kadirpekel/chatgate/pkg/settings"
)

// Mode is the access policy.
type Mode string

const (
	ModePublic    Mode = "public"
	ModeWhitelist Mode = "whitelist"
	ModeAdminOnly Mode = "admin_only"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModePublic, ModeWhitelist, ModeAdminOnly:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned by a Store that has never been written.
	ErrNotFound = errors.New("access control not found")

	// ErrInvalidMode is returned for unknown modes.
	ErrInvalidMode = errors.New("invalid access mode")

	// ErrCannotBlockAdmin is returned when an admin is added to the blacklist.
	ErrCannotBlockAdmin = errors.New("admins cannot be blacklisted")

	// ErrNotAdmin is shared with the settings service.
	ErrNotAdmin = settings.ErrNotAdmin
)

// Default denial messages.
const (
	DefaultWhitelistMessage = "Access is limited to invited users. Contact the administrator to request access."
	DefaultAdminOnlyMessage = "The bot is temporarily unavailable. Please try again later."
	DefaultBlockedMessage   = "Your account is blocked from using this bot. Contact the administrator to appeal."
)

// Gate is consulted before any message reaches the assistant.
type Gate interface {
	IsAllowed(ctx context.Context, userID int64) (bool, error)
}

// Control is the persisted access policy.
type Control struct {
	Mode             Mode      `json:"mode"`
	Whitelist        []int64   `json:"whitelist"`
	Blacklist        []int64   `json:"blacklist"`
	WhitelistMessage string    `json:"whitelist_message"`
	AdminOnlyMessage string    `json:"admin_only_message"`
	BlockedMessage   string    `json:"blocked_message"`
	UpdatedAt        time.Time `json:"updated_at"`
	UpdatedBy        int64     `json:"updated_by"`
}

// DefaultControl is public with empty lists.
func DefaultControl() *Control {
	return &Control{
		Mode:             ModePublic,
		Whitelist:        []int64{},
		Blacklist:        []int64{},
		WhitelistMessage: DefaultWhitelistMessage,
		AdminOnlyMessage: DefaultAdminOnlyMessage,
		BlockedMessage:   DefaultBlockedMessage,
	}
}

// Allows applies the policy. The blacklist wins over everything, then admins
// are always allowed, then the mode decides.
func (c *Control) Allows(userID int64, isAdmin bool) bool {
	if slices.Contains(c.Blacklist, userID) {
		return false
	}
	if isAdmin {
		return true
	}
	switch c.Mode {
	case ModePublic:
		return true
	case ModeWhitelist:
		return slices.Contains(c.Whitelist, userID)
	default:
		return false
	}
}

// DeniedMessage explains why userID is refused.
func (c *Control) DeniedMessage(userID int64) string {
	switch {
	case slices.Contains(c.Blacklist, userID):
		return c.BlockedMessage
	case c.Mode == ModeWhitelist:
		return c.WhitelistMessage
	case c.Mode == ModeAdminOnly:
		return c.AdminOnlyMessage
	default:
		return c.BlockedMessage
	}
}

func (c *Control) addWhitelist(userID int64) bool {
	if slices.Contains(c.Whitelist, userID) {
		return false
	}
	c.Whitelist = append(c.Whitelist, userID)
	return true
}

func (c *Control) removeWhitelist(userID int64) bool {
	i := slices.Index(c.Whitelist, userID)
	if i < 0 {
		return false
	}
	c.Whitelist = slices.Delete(c.Whitelist, i, i+1)
	return true
}

func (c *Control) addBlacklist(userID int64) bool {
	if slices.Contains(c.Blacklist, userID) {
		return false
	}
	c.Blacklist = append(c.Blacklist, userID)
	c.removeWhitelist(userID)
	return true
}

func (c *Control) removeBlacklist(userID int64) bool {
	i := slices.Index(c.Blacklist, userID)
	if i < 0 {
		return false
	}
	c.Blacklist = slices.Delete(c.Blacklist, i, i+1)
	return true
}

func (c *Control) clone() *Control {
	cp := *c
	cp.Whitelist = slices.Clone(c.Whitelist)
	cp.Blacklist = slices.Clone(c.Blacklist)
	if cp.Whitelist == nil {
		cp.Whitelist = []int64{}
	}
	if cp.Blacklist == nil {
		cp.Blacklist = []int64{}
	}
	return &cp
}

// HistoryRecord is one audited change.
type HistoryRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	AdminID   int64     `json:"admin_id"`
}

// Stats summarizes the policy for admin views.
type Stats struct {
	Mode           Mode    `json:"mode"`
	WhitelistCount int     `json:"whitelist_count"`
	BlacklistCount int     `json:"blacklist_count"`
	Whitelist      []int64 `json:"whitelist"`
	Blacklist      []int64 `json:"blacklist"`
	HistoryCount   int     `json:"history_count"`
}

func describeModeChange(from, to Mode) string {
	return fmt.Sprintf("access mode changed from %s to %s", from, to)
}
