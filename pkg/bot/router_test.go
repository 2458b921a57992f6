package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/admin"
	"github.com/kadirpekel/chatgate/pkg/assistant"
	"github.com/kadirpekel/chatgate/pkg/history"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/ratelimit"
	"github.com/kadirpekel/chatgate/pkg/settings"
	"github.com/kadirpekel/chatgate/pkg/users"
)

const (
	adminID int64 = 1
	userID  int64 = 100
)

type echoAssistant struct {
	calls int
}

func (a *echoAssistant) Handle(_ context.Context, msg assistant.Message) (assistant.Reply, error) {
	a.calls++
	return assistant.Reply{Outcome: assistant.OutcomeAnswered, Text: "echo: " + msg.Text}, nil
}

type fixedNext time.Time

func (f fixedNext) NextRun() time.Time { return time.Time(f) }

type routerFixture struct {
	router    *Router
	assistant *echoAssistant
	settings  *settings.Service
	access    *access.Service
	quota     *quota.Tracker
	contexts  *history.Manager
	limiter   *ratelimit.SlidingWindowLimiter
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	st := settings.NewService(settings.NewMemoryStore(), settings.Defaults(), []int64{adminID})
	ac := access.NewService(access.NewMemoryStore(), st.IsAdmin)
	qt := quota.NewTracker(users.NewMemoryStore(), st.DefaultUserLimit)
	cm := history.NewManager(history.NewMemoryStore(), st.ContextSize)
	lim, err := ratelimit.NewSlidingWindowLimiter(ratelimit.NewMemoryStore(), ratelimit.NewSettingsCache(st))
	require.NoError(t, err)
	dialog := admin.NewDialog(admin.NewMemorySessionStore(), st, ac, qt)
	echo := &echoAssistant{}

	r, err := NewRouter(RouterConfig{
		Assistant: echo,
		Settings:  st,
		Access:    ac,
		Quota:     qt,
		Contexts:  cm,
		Limiter:   lim,
		Dialog:    dialog,
		Scheduler: fixedNext(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	return &routerFixture{router: r, assistant: echo, settings: st, access: ac, quota: qt, contexts: cm, limiter: lim}
}

func (f *routerFixture) send(t *testing.T, from int64, text string) Outgoing {
	t.Helper()
	out, err := f.router.Handle(context.Background(), Incoming{UserID: from, Text: text})
	require.NoError(t, err)
	return out
}

func TestRouter_FreeTextGoesToAssistant(t *testing.T) {
	f := newRouterFixture(t)
	out := f.send(t, userID, "  hello  ")
	assert.Equal(t, "echo: hello", out.Text)
	assert.Equal(t, 1, f.assistant.calls)
}

func TestRouter_EmptyTextIgnored(t *testing.T) {
	f := newRouterFixture(t)
	out := f.send(t, userID, "   ")
	assert.Empty(t, out.Text)
}

func TestRouter_AccessDenied(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()
	require.NoError(t, f.access.SetMode(ctx, access.ModeWhitelist, adminID))

	out := f.send(t, userID, "hello")
	assert.Equal(t, access.DefaultWhitelistMessage, out.Text)
	assert.Equal(t, 0, f.assistant.calls)

	// Admins pass regardless of the mode.
	out = f.send(t, adminID, "hello")
	assert.Equal(t, "echo: hello", out.Text)
}

func TestRouter_Maintenance(t *testing.T) {
	f := newRouterFixture(t)
	out := f.send(t, adminID, "/toggle maintenance")
	assert.Contains(t, out.Text, "Maintenance mode on")

	out = f.send(t, userID, "hello")
	assert.Equal(t, MaintenanceText, out.Text)

	// Commands still work.
	out = f.send(t, userID, "/help")
	assert.Contains(t, out.Text, "/status")

	out = f.send(t, adminID, "hello")
	assert.Equal(t, "echo: hello", out.Text)
}

func TestRouter_UserCommands(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	out := f.send(t, userID, "/status")
	assert.Contains(t, out.Text, "Send /start")

	out = f.send(t, userID, "start")
	assert.Contains(t, out.Text, settings.DefaultWelcome)
	assert.Contains(t, out.Text, "50 requests left")

	out = f.send(t, userID, "/status")
	assert.Contains(t, out.Text, "Requests today: 0/50")
	assert.Contains(t, out.Text, "Rate limit: 0/5 in 60s")

	require.NoError(t, f.contexts.Append(ctx, userID, history.RoleUser, "remember me"))
	out = f.send(t, userID, "/clear")
	assert.Contains(t, out.Text, "cleared")
	msgs, err := f.contexts.Snapshot(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	out = f.send(t, userID, "/help")
	assert.NotContains(t, out.Text, "Admin commands")
	out = f.send(t, adminID, "/help")
	assert.Contains(t, out.Text, "Admin commands")

	out = f.send(t, userID, "/nope")
	assert.Contains(t, out.Text, "Unknown command /nope")
}

func TestRouter_AdminCommandsRequireAdmin(t *testing.T) {
	f := newRouterFixture(t)
	for _, cmd := range []string{"/admin", "admin", "/reset_all", "/mode public", "/sweep"} {
		out := f.send(t, userID, cmd)
		assert.Equal(t, NotAdminText, out.Text, cmd)
	}
}

func TestRouter_AdminOverview(t *testing.T) {
	f := newRouterFixture(t)
	f.send(t, userID, "/start")

	out := f.send(t, adminID, "/admin")
	assert.Equal(t, admin.MenuAdmin, out.Menu)
	assert.Contains(t, out.Text, "Users: 1 total")
	assert.Contains(t, out.Text, "Access: public")
	assert.Contains(t, out.Text, "5 requests per 60 seconds")
	assert.Contains(t, out.Text, "Next quota reset: 2026-01-02 00:00 UTC")
}

func TestRouter_ModeAndLists(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	out := f.send(t, adminID, "/mode whitelist")
	assert.Contains(t, out.Text, "whitelist")
	out = f.send(t, adminID, "/mode bogus")
	assert.Contains(t, out.Text, "invalid access mode")

	out = f.send(t, adminID, "/allow 100")
	assert.Contains(t, out.Text, "added to the whitelist")
	assert.Equal(t, "echo: hi", f.send(t, userID, "hi").Text)

	out = f.send(t, adminID, "/allow remove 100")
	assert.Contains(t, out.Text, "removed from the whitelist")

	out = f.send(t, adminID, "/deny 200")
	assert.Contains(t, out.Text, "blocked")
	c, err := f.access.Control(ctx)
	require.NoError(t, err)
	assert.Contains(t, c.Blacklist, int64(200))

	out = f.send(t, adminID, "/deny 1")
	assert.Contains(t, out.Text, "cannot be blacklisted")

	// Without an id the wizard asks for one.
	out = f.send(t, adminID, "/deny remove")
	assert.Contains(t, out.Text, admin.Prompt(admin.AwaitingBlacklistRemove))
	out = f.send(t, adminID, "200")
	assert.Contains(t, out.Text, "unblocked")
}

func TestRouter_SetWizard(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	out := f.send(t, adminID, "/set")
	assert.Contains(t, out.Text, "context: 10")

	out = f.send(t, adminID, "/set context")
	assert.Contains(t, out.Text, admin.Prompt(admin.AwaitingContextSize))

	out = f.send(t, adminID, "99")
	assert.Contains(t, out.Text, "between 1 and 50")

	out = f.send(t, adminID, "25")
	assert.Contains(t, out.Text, "Context size updated: 25")

	bs, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, bs.ContextSize)

	// Back to normal routing.
	assert.Equal(t, "echo: hi", f.send(t, adminID, "hi").Text)

	out = f.send(t, adminID, "/set colour")
	assert.Contains(t, out.Text, "Unknown setting")
}

func TestRouter_UserLimit(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	out := f.send(t, adminID, "/user 100")
	assert.Contains(t, out.Text, "ID: 100")
	out = f.send(t, adminID, "7")
	assert.Contains(t, out.Text, "New limit 7")

	usage, err := f.quota.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 7, usage.Limit)

	_, err = f.quota.Use(ctx, userID)
	require.NoError(t, err)
	out = f.send(t, adminID, "/reset 100")
	assert.Contains(t, out.Text, "Quota reset for user 100")
	usage, err = f.quota.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)

	out = f.send(t, adminID, "/reset 999")
	assert.Contains(t, out.Text, "unknown user")

	out = f.send(t, adminID, "/reset_all")
	assert.Contains(t, out.Text, "reset for all users")
}

func TestRouter_LimiterCommands(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	out := f.send(t, adminID, "/bypass 100 30")
	assert.Contains(t, out.Text, "bypassed for user 100")
	st, err := f.limiter.Status(ctx, "100")
	require.NoError(t, err)
	assert.NotNil(t, st.BypassedTo)

	out = f.send(t, adminID, "/bypass 100 -1")
	assert.Contains(t, out.Text, "positive")

	out = f.send(t, adminID, "/toggle ratelimit")
	assert.Contains(t, out.Text, "Rate limiting off")
	assert.False(t, f.limiter.Settings(ctx).Enabled)

	out = f.send(t, adminID, "/sweep")
	assert.Contains(t, out.Text, "Sweep done")

	out = f.send(t, adminID, "/refresh")
	assert.Contains(t, out.Text, "Limiter settings reloaded")
}

func TestRouter_ModelAndProxy(t *testing.T) {
	f := newRouterFixture(t)

	out := f.send(t, adminID, "/model gpt-4o")
	assert.Contains(t, out.Text, "Model set to gpt-4o")
	out = f.send(t, adminID, "/model unknown-model")
	assert.Contains(t, out.Text, "❌")

	out = f.send(t, adminID, "/proxy on")
	assert.Contains(t, out.Text, "no proxy URL")

	f.send(t, adminID, "/set proxy_url")
	f.send(t, adminID, "https://proxy.example.com")
	out = f.send(t, adminID, "/proxy on")
	assert.Contains(t, out.Text, "Proxy on")
}

func TestRouter_CancelWithoutWizard(t *testing.T) {
	f := newRouterFixture(t)
	out := f.send(t, adminID, "/cancel")
	assert.Equal(t, "Nothing to cancel.", out.Text)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		args []string
		ok   bool
	}{
		{"/start", "start", []string{}, true},
		{"/Mode Whitelist", "mode", []string{"Whitelist"}, true},
		{"/status@chatgate_bot", "status", []string{}, true},
		{"help", "help", nil, true},
		{"help me please", "", nil, false},
		{"hello", "", nil, false},
		{"/", "", []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, args, ok := parseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.name, name)
				assert.Equal(t, tt.args, args)
			}
		})
	}
}
