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

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/admin"
	"github.com/kadirpekel/chatgate/pkg/assistant"
	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// MaintenanceText is the reply to non-admins while maintenance mode is on.
const MaintenanceText = "🔧 The bot is under maintenance. Please try again later."

// NotAdminText is the reply to admin commands from regular users.
const NotAdminText = "❌ You do not have admin rights."

// Assistant answers free text.
type Assistant interface {
	Handle(ctx context.Context, msg assistant.Message) (assistant.Reply, error)
}

// NextRunner reports the next scheduled quota reset.
type NextRunner interface {
	NextRun() time.Time
}

// RouterConfig holds the router's collaborators. Scheduler is optional.
type RouterConfig struct {
	Assistant Assistant
	Settings  *settings.Service
	Access    *access.Service
	Quota     *quota.Tracker
	Contexts  *history.Manager
	Limiter   *ratelimit.SlidingWindowLimiter
	Dialog    *admin.Dialog
	Scheduler NextRunner
}

// Router implements Handler: access gate, maintenance mode, admin wizard,
// slash commands and finally the assistant.
type Router struct {
	assistant Assistant
	settings  *settings.Service
	access    *access.Service
	quota     *quota.Tracker
	contexts  *history.Manager
	limiter   *ratelimit.SlidingWindowLimiter
	dialog    *admin.Dialog
	scheduler NextRunner

	commands      map[string]commandFunc
	adminCommands map[string]commandFunc
}

type commandFunc func(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error)

// NewRouter validates cfg and builds the command tables.
func NewRouter(cfg RouterConfig) (*Router, error) {
	switch {
	case cfg.Assistant == nil:
		return nil, fmt.Errorf("assistant is required")
	case cfg.Settings == nil:
		return nil, fmt.Errorf("settings service is required")
	case cfg.Access == nil:
		return nil, fmt.Errorf("access service is required")
	case cfg.Quota == nil:
		return nil, fmt.Errorf("quota tracker is required")
	case cfg.Contexts == nil:
		return nil, fmt.Errorf("context manager is required")
	case cfg.Limiter == nil:
		return nil, fmt.Errorf("limiter is required")
	case cfg.Dialog == nil:
		return nil, fmt.Errorf("admin dialog is required")
	}
	return &Router{
		assistant:     cfg.Assistant,
		settings:      cfg.Settings,
		access:        cfg.Access,
		quota:         cfg.Quota,
		contexts:      cfg.Contexts,
		limiter:       cfg.Limiter,
		dialog:        cfg.Dialog,
		scheduler:     cfg.Scheduler,
		commands:      userCommands(),
		adminCommands: adminCommands(),
	}, nil
}

// Handle routes one message.
func (r *Router) Handle(ctx context.Context, in Incoming) (Outgoing, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Outgoing{}, nil
	}

	allowed, err := r.access.IsAllowed(ctx, in.UserID)
	if err != nil {
		return Outgoing{}, fmt.Errorf("access check failed: %w", err)
	}
	if !allowed {
		msg, err := r.access.DeniedMessage(ctx, in.UserID)
		if err != nil {
			return Outgoing{}, err
		}
		slog.Info("Access denied", "user_id", in.UserID)
		return Outgoing{Text: msg}, nil
	}

	isAdmin := r.settings.IsAdmin(in.UserID)
	if isAdmin {
		resp, handled, err := r.dialog.Handle(ctx, in.UserID, text)
		if err != nil {
			return Outgoing{}, err
		}
		if handled {
			return Outgoing{Text: resp.Text, Menu: resp.Menu}, nil
		}
	}

	if name, args, ok := parseCommand(text); ok {
		if cmd, ok := r.commands[name]; ok {
			return cmd(ctx, r, in, args)
		}
		if cmd, ok := r.adminCommands[name]; ok {
			if !isAdmin {
				return Outgoing{Text: NotAdminText}, nil
			}
			return cmd(ctx, r, in, args)
		}
		return Outgoing{Text: fmt.Sprintf("Unknown command /%s. Send /help for the list of commands.", name)}, nil
	}

	if !isAdmin {
		bs, err := r.settings.Get(ctx)
		if err != nil {
			slog.Warn("Settings unavailable, skipping maintenance check", "error", err)
		} else if bs.MaintenanceMode {
			return Outgoing{Text: MaintenanceText}, nil
		}
	}

	reply, err := r.assistant.Handle(ctx, assistant.Message{
		UserID:    in.UserID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Text:      text,
	})
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Text: reply.Text}, nil
}

// parseCommand splits "/name arg..." into its parts. Bare words used by
// keyboard transports ("start", "help", "status", "admin") count too.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	head := strings.ToLower(fields[0])
	if strings.HasPrefix(head, "/") {
		name := strings.TrimPrefix(head, "/")
		// Strip a "@botname" suffix.
		if i := strings.IndexByte(name, '@'); i >= 0 {
			name = name[:i]
		}
		return name, fields[1:], name != ""
	}
	if len(fields) == 1 {
		switch head {
		case "start", "help", "status", "admin":
			return head, nil, true
		}
	}
	return "", nil, false
}

func isRejection(err error) bool {
	return errors.Is(err, settings.ErrInvalidSetting) ||
		errors.Is(err, settings.ErrNotAdmin) ||
		errors.Is(err, access.ErrInvalidMode) ||
		errors.Is(err, access.ErrCannotBlockAdmin) ||
		errors.Is(err, quota.ErrUnknownUser) ||
		errors.Is(err, quota.ErrInvalidLimit)
}

// replyErr renders rejections as replies and passes other errors through.
func replyErr(err error, menu admin.Menu) (Outgoing, error) {
	if isRejection(err) {
		return Outgoing{Text: "❌ " + err.Error(), Menu: menu}, nil
	}
	return Outgoing{}, err
}
