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
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/admin"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/settings"
)

// DefaultBypass is the /bypass duration when none is given.
const DefaultBypass = 5 * time.Minute

func userCommands() map[string]commandFunc {
	return map[string]commandFunc{
		"start":  cmdStart,
		"help":   cmdHelp,
		"status": cmdStatus,
		"clear":  cmdClear,
		"cancel": cmdCancel,
	}
}

func adminCommands() map[string]commandFunc {
	return map[string]commandFunc{
		"admin":     cmdAdmin,
		"mode":      cmdMode,
		"allow":     cmdAllow,
		"deny":      cmdDeny,
		"set":       cmdSet,
		"model":     cmdModel,
		"proxy":     cmdProxy,
		"user":      cmdUser,
		"reset":     cmdReset,
		"reset_all": cmdResetAll,
		"bypass":    cmdBypass,
		"toggle":    cmdToggle,
		"sweep":     cmdSweep,
		"refresh":   cmdRefresh,
	}
}

func cmdStart(ctx context.Context, r *Router, in Incoming, _ []string) (Outgoing, error) {
	p, err := r.quota.GetOrCreate(ctx, in.UserID, in.FirstName, in.LastName)
	if err != nil {
		return Outgoing{}, err
	}
	bs, err := r.settings.Get(ctx)
	if err != nil {
		return Outgoing{}, err
	}
	name := p.DisplayName()
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🤖 Hi, %s!\n\n%s\n\n", name, bs.WelcomeMessage)
	fmt.Fprintf(&b, "🔹 You have %d requests left today\n", p.Remaining())
	fmt.Fprintf(&b, "🔹 I remember the last %d messages of our conversation", bs.ContextSize)
	return Outgoing{Text: b.String()}, nil
}

func cmdHelp(_ context.Context, r *Router, in Incoming, _ []string) (Outgoing, error) {
	text := `📖 How to use the bot:

• Just write your question and the assistant answers
• /status shows your limits
• /clear forgets the conversation so far
• /help shows this message`
	if r.settings.IsAdmin(in.UserID) {
		text += `

⚙️ Admin commands:
• /admin overview
• /mode public|whitelist|admin_only
• /allow [remove] [id], /deny [remove] [id]
• /set ` + strings.Join(admin.SettingNames(), "|") + `
• /model <name>, /proxy on|off
• /user [id], /reset <id>, /reset_all
• /bypass <id> [seconds]
• /toggle ratelimit|maintenance
• /sweep, /refresh, /cancel`
	}
	return Outgoing{Text: text}, nil
}

func cmdStatus(ctx context.Context, r *Router, in Incoming, _ []string) (Outgoing, error) {
	usage, err := r.quota.Stats(ctx, in.UserID)
	if errors.Is(err, quota.ErrUnknownUser) {
		return Outgoing{Text: "❌ You are not registered yet. Send /start."}, nil
	}
	if err != nil {
		return Outgoing{}, err
	}
	uc, err := r.contexts.Get(ctx, in.UserID)
	if err != nil {
		return Outgoing{}, err
	}
	rl, err := r.limiter.Status(ctx, strconv.FormatInt(in.UserID, 10))
	if err != nil {
		return Outgoing{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Your status (ID: %d)\n\n", in.UserID)
	fmt.Fprintf(&b, "📈 Requests today: %d/%d, %d left\n", usage.Used, usage.Limit, usage.Remaining)
	fmt.Fprintf(&b, "💬 Messages in context: %d\n", uc.Size())
	if rl.Enabled {
		fmt.Fprintf(&b, "⏱️ Rate limit: %d/%d in %ds", rl.Current, rl.Max, int(rl.Period/time.Second))
		if rl.Limited {
			fmt.Fprintf(&b, ", next request in %ds", int(rl.RetryAfter/time.Second))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n🔄 Limits reset daily at midnight.")
	return Outgoing{Text: b.String()}, nil
}

func cmdClear(ctx context.Context, r *Router, in Incoming, _ []string) (Outgoing, error) {
	if err := r.contexts.ClearUser(ctx, in.UserID); err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Text: "🗑️ Conversation cleared. I no longer remember previous messages."}, nil
}

func cmdCancel(_ context.Context, _ *Router, _ Incoming, _ []string) (Outgoing, error) {
	// A pending wizard step is cancelled by the dialog before commands run.
	return Outgoing{Text: "Nothing to cancel."}, nil
}

func cmdAdmin(ctx context.Context, r *Router, _ Incoming, _ []string) (Outgoing, error) {
	bs, err := r.settings.Get(ctx)
	if err != nil {
		return Outgoing{}, err
	}
	sum, err := r.quota.Summarize(ctx)
	if err != nil {
		return Outgoing{}, err
	}
	as, err := r.access.Stats(ctx)
	if err != nil {
		return Outgoing{}, err
	}
	gs, err := r.limiter.GlobalStats(ctx)
	if err != nil {
		return Outgoing{}, err
	}

	var b strings.Builder
	b.WriteString("⚙️ Admin panel\n\n")
	fmt.Fprintf(&b, "👥 Users: %d total, %d active, %d requests today, %d exhausted\n", sum.Users, sum.Active, sum.UsedToday, sum.Exhausted)
	fmt.Fprintf(&b, "🔐 Access: %s, %d whitelisted, %d blocked\n", as.Mode, as.WhitelistCount, as.BlacklistCount)
	fmt.Fprintf(&b, "⏱️ Rate limit: %s (%s)\n", onOff(bs.RateLimitEnabled), gs.Settings.Description())
	fmt.Fprintf(&b, "   active %d, limited %d, allowed %d, blocked %d\n", gs.ActiveKeys, gs.LimitedKeys, gs.TotalAllowed, gs.TotalBlocked)
	fmt.Fprintf(&b, "🧠 Model: %s, context %d, default limit %d\n", bs.Model, bs.ContextSize, bs.DefaultUserLimit)
	fmt.Fprintf(&b, "🌐 Proxy: %s\n", onOff(bs.UseProxy))
	fmt.Fprintf(&b, "🔧 Maintenance: %s", onOff(bs.MaintenanceMode))
	if r.scheduler != nil {
		fmt.Fprintf(&b, "\n🔄 Next quota reset: %s", r.scheduler.NextRun().Format("2006-01-02 15:04 MST"))
	}
	return Outgoing{Text: b.String(), Menu: admin.MenuAdmin}, nil
}

func cmdMode(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	if len(args) != 1 {
		return Outgoing{Text: "Usage: /mode public|whitelist|admin_only", Menu: admin.MenuAccess}, nil
	}
	mode := access.Mode(strings.ToLower(args[0]))
	if err := r.access.SetMode(ctx, mode, in.UserID); err != nil {
		return replyErr(err, admin.MenuAccess)
	}
	return Outgoing{Text: fmt.Sprintf("✅ Access mode set to %s.", mode), Menu: admin.MenuAccess}, nil
}

type listOp struct {
	apply     func(ctx context.Context, userID, actor int64) (bool, error)
	wizard    admin.Kind
	done      string
	unchanged string
}

func editAccessList(ctx context.Context, r *Router, in Incoming, args []string, add, remove listOp) (Outgoing, error) {
	op := add
	if len(args) > 0 && strings.EqualFold(args[0], "remove") {
		op = remove
		args = args[1:]
	}
	if len(args) == 0 {
		resp, err := r.dialog.Begin(ctx, in.UserID, admin.State{Kind: op.wizard})
		if err != nil {
			return Outgoing{}, err
		}
		return Outgoing{Text: resp.Text, Menu: resp.Menu}, nil
	}
	id, err := admin.ParseUserID(args[0])
	if err != nil {
		return Outgoing{Text: "❌ " + err.Error(), Menu: admin.MenuAccess}, nil
	}
	changed, err := op.apply(ctx, id, in.UserID)
	if err != nil {
		return replyErr(err, admin.MenuAccess)
	}
	if !changed {
		return Outgoing{Text: fmt.Sprintf("ℹ️ User %d %s.", id, op.unchanged), Menu: admin.MenuAccess}, nil
	}
	return Outgoing{Text: fmt.Sprintf("✅ User %d %s.", id, op.done), Menu: admin.MenuAccess}, nil
}

func cmdAllow(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	return editAccessList(ctx, r, in, args,
		listOp{r.access.AddToWhitelist, admin.AwaitingWhitelistAdd, "added to the whitelist", "is already whitelisted"},
		listOp{r.access.RemoveFromWhitelist, admin.AwaitingWhitelistRemove, "removed from the whitelist", "is not whitelisted"},
	)
}

func cmdDeny(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	return editAccessList(ctx, r, in, args,
		listOp{r.access.AddToBlacklist, admin.AwaitingBlacklistAdd, "blocked", "is already blocked"},
		listOp{r.access.RemoveFromBlacklist, admin.AwaitingBlacklistRemove, "unblocked", "is not blocked"},
	)
}

func cmdSet(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	if len(args) == 0 {
		bs, err := r.settings.Get(ctx)
		if err != nil {
			return Outgoing{}, err
		}
		text := fmt.Sprintf(`⚙️ Settings:
• context: %d
• limit: %d
• welcome: %s
• calls: %d
• period: %ds
• proxy_url: %s
• proxy_key: %s

Usage: /set <name>`, bs.ContextSize, bs.DefaultUserLimit, bs.WelcomeMessage, bs.RateLimitCalls, bs.RateLimitPeriod, valueOrNone(bs.ProxyURL), maskKey(bs.ProxyKey))
		return Outgoing{Text: text, Menu: admin.MenuSettings}, nil
	}
	kind, ok := admin.KindForSetting(args[0])
	if !ok {
		return Outgoing{Text: fmt.Sprintf("❌ Unknown setting %q. Choose one of: %s", args[0], strings.Join(admin.SettingNames(), ", ")), Menu: admin.MenuSettings}, nil
	}
	resp, err := r.dialog.Begin(ctx, in.UserID, admin.State{Kind: kind})
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Text: resp.Text, Menu: resp.Menu}, nil
}

func cmdModel(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	if len(args) != 1 {
		bs, err := r.settings.Get(ctx)
		if err != nil {
			return Outgoing{}, err
		}
		return Outgoing{Text: fmt.Sprintf("🧠 Current model: %s\nAvailable: %s\n\nUsage: /model <name>", bs.Model, strings.Join(r.settings.Models(), ", ")), Menu: admin.MenuSettings}, nil
	}
	bs, err := r.settings.Apply(ctx, in.UserID, settings.NameModel, args[0])
	if err != nil {
		return replyErr(err, admin.MenuSettings)
	}
	return Outgoing{Text: fmt.Sprintf("✅ Model set to %s.", bs.Model), Menu: admin.MenuSettings}, nil
}

func cmdProxy(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return Outgoing{Text: "Usage: /proxy on|off", Menu: admin.MenuProxy}, nil
	}
	bs, err := r.settings.SetUseProxy(ctx, in.UserID, args[0] == "on")
	if err != nil {
		return replyErr(err, admin.MenuProxy)
	}
	return Outgoing{Text: fmt.Sprintf("✅ Proxy %s.", onOff(bs.UseProxy)), Menu: admin.MenuProxy}, nil
}

func cmdUser(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	resp, err := r.dialog.Begin(ctx, in.UserID, admin.State{Kind: admin.AwaitingUserTarget})
	if err != nil {
		return Outgoing{}, err
	}
	if len(args) == 0 {
		return Outgoing{Text: resp.Text, Menu: resp.Menu}, nil
	}
	resp, _, err = r.dialog.Handle(ctx, in.UserID, args[0])
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Text: resp.Text, Menu: resp.Menu}, nil
}

func cmdReset(ctx context.Context, r *Router, _ Incoming, args []string) (Outgoing, error) {
	if len(args) != 1 {
		return Outgoing{Text: "Usage: /reset <id>", Menu: admin.MenuUser}, nil
	}
	id, err := admin.ParseUserID(args[0])
	if err != nil {
		return Outgoing{Text: "❌ " + err.Error(), Menu: admin.MenuUser}, nil
	}
	if err := r.quota.Reset(ctx, id); err != nil {
		return replyErr(err, admin.MenuUser)
	}
	return Outgoing{Text: fmt.Sprintf("✅ Quota reset for user %d.", id), Menu: admin.MenuUser}, nil
}

func cmdResetAll(ctx context.Context, r *Router, _ Incoming, _ []string) (Outgoing, error) {
	n, err := r.quota.ResetAll(ctx)
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{Text: fmt.Sprintf("✅ Daily limits reset for all users (%d changed).", n), Menu: admin.MenuAdmin}, nil
}

func cmdBypass(_ context.Context, r *Router, _ Incoming, args []string) (Outgoing, error) {
	if len(args) < 1 || len(args) > 2 {
		return Outgoing{Text: "Usage: /bypass <id> [seconds]", Menu: admin.MenuRateLimit}, nil
	}
	id, err := admin.ParseUserID(args[0])
	if err != nil {
		return Outgoing{Text: "❌ " + err.Error(), Menu: admin.MenuRateLimit}, nil
	}
	d := DefaultBypass
	if len(args) == 2 {
		secs, err := strconv.Atoi(args[1])
		if err != nil || secs <= 0 {
			return Outgoing{Text: "❌ Seconds must be a positive number.", Menu: admin.MenuRateLimit}, nil
		}
		d = time.Duration(secs) * time.Second
	}
	until := r.limiter.DisableTemporarily(strconv.FormatInt(id, 10), d)
	return Outgoing{Text: fmt.Sprintf("✅ Rate limit bypassed for user %d until %s.", id, until.Format("15:04:05")), Menu: admin.MenuRateLimit}, nil
}

func cmdToggle(ctx context.Context, r *Router, in Incoming, args []string) (Outgoing, error) {
	if len(args) != 1 {
		return Outgoing{Text: "Usage: /toggle ratelimit|maintenance", Menu: admin.MenuAdmin}, nil
	}
	switch strings.ToLower(args[0]) {
	case "ratelimit", "rate_limit":
		on, err := r.settings.ToggleRateLimit(ctx, in.UserID)
		if err != nil {
			return replyErr(err, admin.MenuRateLimit)
		}
		r.limiter.RefreshSettings()
		return Outgoing{Text: fmt.Sprintf("✅ Rate limiting %s.", onOff(on)), Menu: admin.MenuRateLimit}, nil
	case "maintenance":
		on, err := r.settings.ToggleMaintenance(ctx, in.UserID)
		if err != nil {
			return replyErr(err, admin.MenuSettings)
		}
		return Outgoing{Text: fmt.Sprintf("✅ Maintenance mode %s.", onOff(on)), Menu: admin.MenuSettings}, nil
	default:
		return Outgoing{Text: "Usage: /toggle ratelimit|maintenance", Menu: admin.MenuAdmin}, nil
	}
}

func cmdSweep(ctx context.Context, r *Router, _ Incoming, _ []string) (Outgoing, error) {
	res, err := r.limiter.SweepStale(ctx, 2)
	if err != nil {
		return Outgoing{}, err
	}
	return Outgoing{
		Text: fmt.Sprintf("🧹 Sweep done: %d requests removed, %d users cleaned, %d empty records dropped, %d remaining.",
			res.RemovedRequests, res.KeysCleaned, res.EmptyKeysRemoved, res.RemainingKeys),
		Menu: admin.MenuRateLimit,
	}, nil
}

func cmdRefresh(ctx context.Context, r *Router, _ Incoming, _ []string) (Outgoing, error) {
	r.limiter.RefreshSettings()
	s := r.limiter.Settings(ctx)
	return Outgoing{Text: "🔄 Limiter settings reloaded: " + s.Description() + ".", Menu: admin.MenuRateLimit}, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func valueOrNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func maskKey(key string) string {
	if key == "" {
		return "none"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
