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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/settings"
	"github.com/kadirpekel/chatgate/pkg/users"
)

// MaxUserLimit caps a per-user limit entered in the wizard.
const MaxUserLimit = 10000

// ErrInvalidInput marks input the current step rejected.
var ErrInvalidInput = errors.New("invalid input")

// SettingsEditor is the part of settings.Service the wizard needs.
type SettingsEditor interface {
	Apply(ctx context.Context, actor int64, name, raw string) (settings.BotSettings, error)
}

// AccessEditor is the part of access.Service the wizard needs.
type AccessEditor interface {
	AddToWhitelist(ctx context.Context, userID, actor int64) (bool, error)
	RemoveFromWhitelist(ctx context.Context, userID, actor int64) (bool, error)
	AddToBlacklist(ctx context.Context, userID, actor int64) (bool, error)
	RemoveFromBlacklist(ctx context.Context, userID, actor int64) (bool, error)
}

// QuotaEditor is the part of quota.Tracker the wizard needs.
type QuotaEditor interface {
	GetOrCreate(ctx context.Context, userID int64, firstName, lastName string) (*users.Profile, error)
	SetLimit(ctx context.Context, userID int64, limit int) error
}

// Response is the result of one wizard step.
type Response struct {
	Text string
	Menu Menu
	Next State
}

type handlerFunc func(ctx context.Context, d *Dialog, actor int64, st State, input string) (string, State, error)

// transition describes one Kind: what to ask, how to handle the answer and
// where to go afterwards. With retry set, rejected input keeps the state.
type transition struct {
	prompt string
	menu   Menu
	retry  bool
	handle handlerFunc
}

var transitions map[Kind]transition

func init() {
	transitions = map[Kind]transition{
		AwaitingContextSize: {
			prompt: fmt.Sprintf("Enter the context size (%d-%d messages):", settings.MinContextSize, settings.MaxContextSize),
			menu:   MenuSettings,
			retry:  true,
			handle: applySetting(settings.NameContextSize, "Context size"),
		},
		AwaitingDefaultLimit: {
			prompt: fmt.Sprintf("Enter the default daily limit for new users (%d-%d):", settings.MinDefaultLimit, settings.MaxDefaultLimit),
			menu:   MenuSettings,
			retry:  true,
			handle: applySetting(settings.NameDefaultUserLimit, "Default limit"),
		},
		AwaitingWelcome: {
			prompt: fmt.Sprintf("Send the new welcome message (up to %d characters):", settings.MaxWelcomeLength),
			menu:   MenuSettings,
			retry:  true,
			handle: applySetting(settings.NameWelcomeMessage, "Welcome message"),
		},
		AwaitingRateLimitCalls: {
			prompt: fmt.Sprintf("Enter the number of requests per period (%d-%d):", settings.MinRateLimitCalls, settings.MaxRateLimitCalls),
			menu:   MenuRateLimit,
			retry:  true,
			handle: applySetting(settings.NameRateLimitCalls, "Request limit"),
		},
		AwaitingRateLimitPeriod: {
			prompt: fmt.Sprintf("Enter the rate limit period in seconds (%d-%d):", settings.MinRateLimitPeriod, settings.MaxRateLimitPeriod),
			menu:   MenuRateLimit,
			retry:  true,
			handle: applySetting(settings.NameRateLimitPeriod, "Reset period"),
		},
		AwaitingProxyURL: {
			prompt: "Send the proxy URL, for example https://proxy.example.com:",
			menu:   MenuProxy,
			retry:  true,
			handle: applySetting(settings.NameProxyURL, "Proxy URL"),
		},
		AwaitingProxyKey: {
			prompt: fmt.Sprintf("Send the proxy API key (at least %d characters):", settings.MinProxyKeyLength),
			menu:   MenuProxy,
			retry:  true,
			handle: applySetting(settings.NameProxyKey, "Proxy key"),
		},
		AwaitingWhitelistAdd: {
			prompt: "Send the ID of the user to add to the whitelist:",
			menu:   MenuAccess,
			retry:  true,
			handle: editList(AccessEditor.AddToWhitelist, "added to the whitelist", "is already whitelisted"),
		},
		AwaitingWhitelistRemove: {
			prompt: "Send the ID of the user to remove from the whitelist:",
			menu:   MenuAccess,
			retry:  true,
			handle: editList(AccessEditor.RemoveFromWhitelist, "removed from the whitelist", "is not whitelisted"),
		},
		AwaitingBlacklistAdd: {
			prompt: "Send the ID of the user to block:",
			menu:   MenuAccess,
			retry:  true,
			handle: editList(AccessEditor.AddToBlacklist, "blocked", "is already blocked"),
		},
		AwaitingBlacklistRemove: {
			prompt: "Send the ID of the user to unblock:",
			menu:   MenuAccess,
			retry:  true,
			handle: editList(AccessEditor.RemoveFromBlacklist, "unblocked", "is not blocked"),
		},
		AwaitingUserTarget: {
			prompt: "Send the ID of the user to manage:",
			menu:   MenuAdmin,
			handle: chooseUser,
		},
		AwaitingNewLimit: {
			prompt: fmt.Sprintf("Enter the new daily limit (0-%d):", MaxUserLimit),
			menu:   MenuUser,
			handle: setUserLimit,
		},
	}
}

// Dialog drives the wizard for all admins.
type Dialog struct {
	sessions SessionStore
	settings SettingsEditor
	access   AccessEditor
	quota    QuotaEditor
}

func NewDialog(sessions SessionStore, s SettingsEditor, a AccessEditor, q QuotaEditor) *Dialog {
	return &Dialog{sessions: sessions, settings: s, access: a, quota: q}
}

// Begin enters kind for adminID and returns the prompt to show.
func (d *Dialog) Begin(ctx context.Context, adminID int64, st State) (Response, error) {
	tr, ok := transitions[st.Kind]
	if !ok {
		return Response{}, fmt.Errorf("no wizard step for %q", st.Kind)
	}
	if err := d.sessions.Set(ctx, adminID, st); err != nil {
		return Response{}, fmt.Errorf("failed to save wizard state: %w", err)
	}
	return Response{Text: tr.prompt + "\n\nSend /cancel to abort.", Menu: tr.menu, Next: st}, nil
}

// State returns the admin's pending state.
func (d *Dialog) State(ctx context.Context, adminID int64) (State, error) {
	return d.sessions.Get(ctx, adminID)
}

// Cancel leaves the wizard and reports the menu to return to.
func (d *Dialog) Cancel(ctx context.Context, adminID int64) (Response, error) {
	st, err := d.sessions.Get(ctx, adminID)
	if err != nil {
		return Response{}, err
	}
	if err := d.sessions.Clear(ctx, adminID); err != nil {
		return Response{}, err
	}
	menu := MenuAdmin
	if tr, ok := transitions[st.Kind]; ok {
		menu = tr.menu
	}
	return Response{Text: "❌ Cancelled. Back to the " + menuTitle(menu) + ".", Menu: menu, Next: State{Kind: Idle}}, nil
}

// Handle routes input to the pending step. handled is false when the admin
// has no pending step, in which case the message is not wizard input.
func (d *Dialog) Handle(ctx context.Context, adminID int64, input string) (resp Response, handled bool, err error) {
	st, err := d.sessions.Get(ctx, adminID)
	if err != nil {
		return Response{}, false, fmt.Errorf("failed to load wizard state: %w", err)
	}
	if st.IsIdle() {
		return Response{}, false, nil
	}
	if IsCancel(input) {
		resp, err := d.Cancel(ctx, adminID)
		return resp, true, err
	}

	tr, ok := transitions[st.Kind]
	if !ok {
		slog.Warn("Dropping unknown wizard state", "admin_id", adminID, "state", st.String())
		return Response{}, false, d.sessions.Clear(ctx, adminID)
	}

	text, next, herr := tr.handle(ctx, d, adminID, st, input)
	if herr != nil {
		if !isRejection(herr) {
			_ = d.sessions.Clear(ctx, adminID)
			return Response{}, true, herr
		}
		if tr.retry {
			return Response{Text: "❌ " + rejectionText(herr) + "\n\n" + tr.prompt, Menu: tr.menu, Next: st}, true, nil
		}
		if err := d.sessions.Clear(ctx, adminID); err != nil {
			return Response{}, true, err
		}
		return Response{Text: "❌ " + rejectionText(herr), Menu: tr.menu, Next: State{Kind: Idle}}, true, nil
	}

	if err := d.sessions.Set(ctx, adminID, next); err != nil {
		return Response{}, true, fmt.Errorf("failed to save wizard state: %w", err)
	}
	menu := tr.menu
	if nt, ok := transitions[next.Kind]; ok {
		text += "\n\n" + nt.prompt
		menu = nt.menu
	}
	return Response{Text: text, Menu: menu, Next: next}, true, nil
}

// Prompt returns the prompt of kind.
func Prompt(kind Kind) string {
	return transitions[kind].prompt
}

func applySetting(name, label string) handlerFunc {
	return func(ctx context.Context, d *Dialog, actor int64, _ State, input string) (string, State, error) {
		if _, err := d.settings.Apply(ctx, actor, name, input); err != nil {
			return "", State{}, err
		}
		value := strings.TrimSpace(input)
		if name == settings.NameProxyKey {
			value = "set"
		}
		return fmt.Sprintf("✅ %s updated: %s", label, value), State{Kind: Idle}, nil
	}
}

type listFunc func(AccessEditor, context.Context, int64, int64) (bool, error)

func editList(fn listFunc, done, unchanged string) handlerFunc {
	return func(ctx context.Context, d *Dialog, actor int64, _ State, input string) (string, State, error) {
		id, err := ParseUserID(input)
		if err != nil {
			return "", State{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		changed, err := fn(d.access, ctx, id, actor)
		if err != nil {
			return "", State{}, err
		}
		if !changed {
			return fmt.Sprintf("ℹ️ User %d %s.", id, unchanged), State{Kind: Idle}, nil
		}
		return fmt.Sprintf("✅ User %d %s.", id, done), State{Kind: Idle}, nil
	}
}

func chooseUser(ctx context.Context, d *Dialog, _ int64, _ State, input string) (string, State, error) {
	id, err := ParseUserID(input)
	if err != nil {
		return "", State{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p, err := d.quota.GetOrCreate(ctx, id, "", "")
	if err != nil {
		return "", State{}, err
	}
	name := p.DisplayName()
	if name == "" {
		name = "user " + strconv.FormatInt(id, 10)
	}
	text := fmt.Sprintf("Selected %s (ID: %d). Used %d of %d today.", name, id, p.RequestsUsed, p.RequestsLimit)
	return text, State{Kind: AwaitingNewLimit, Target: id}, nil
}

func setUserLimit(ctx context.Context, d *Dialog, _ int64, st State, input string) (string, State, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || limit < 0 || limit > MaxUserLimit {
		return "", State{}, fmt.Errorf("%w: enter a number from 0 to %d", ErrInvalidInput, MaxUserLimit)
	}
	if err := d.quota.SetLimit(ctx, st.Target, limit); err != nil {
		return "", State{}, err
	}
	return fmt.Sprintf("✅ New limit %d set for user %d.", limit, st.Target), State{Kind: Idle}, nil
}

// isRejection separates bad input from store failures.
func isRejection(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, settings.ErrInvalidSetting) ||
		errors.Is(err, quota.ErrInvalidLimit) ||
		errors.Is(err, quota.ErrUnknownUser) ||
		errors.Is(err, settings.ErrNotAdmin) ||
		errors.Is(err, access.ErrCannotBlockAdmin)
}

func rejectionText(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{ErrInvalidInput, settings.ErrInvalidSetting} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	if msg == "" {
		return "Invalid input."
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func menuTitle(m Menu) string {
	switch m {
	case MenuSettings:
		return "settings"
	case MenuRateLimit:
		return "rate limit settings"
	case MenuProxy:
		return "proxy settings"
	case MenuAccess:
		return "access management"
	case MenuUser:
		return "user management"
	default:
		return "admin panel"
	}
}
