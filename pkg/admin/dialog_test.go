package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/access"
	"github.com/kadirpekel/chatgate/pkg/quota"
	"github.com/kadirpekel/chatgate/pkg/settings"
	"github.com/kadirpekel/chatgate/pkg/users"
)

const adminID int64 = 1

type fixture struct {
	dialog   *Dialog
	sessions *MemorySessionStore
	settings *settings.Service
	access   *access.Service
	quota    *quota.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := settings.NewService(settings.NewMemoryStore(), settings.Defaults(), []int64{adminID})
	ac := access.NewService(access.NewMemoryStore(), st.IsAdmin)
	qt := quota.NewTracker(users.NewMemoryStore(), st.DefaultUserLimit)
	sessions := NewMemorySessionStore()
	return &fixture{
		dialog:   NewDialog(sessions, st, ac, qt),
		sessions: sessions,
		settings: st,
		access:   ac,
		quota:    qt,
	}
}

func TestDialog_NotInWizard(t *testing.T) {
	f := newFixture(t)
	_, handled, err := f.dialog.Handle(context.Background(), adminID, "hello")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDialog_Settings(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		input string
		check func(t *testing.T, s settings.BotSettings)
	}{
		{"context size", AwaitingContextSize, "20", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, 20, s.ContextSize)
		}},
		{"default limit", AwaitingDefaultLimit, "100", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, 100, s.DefaultUserLimit)
		}},
		{"welcome", AwaitingWelcome, "Welcome aboard", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, "Welcome aboard", s.WelcomeMessage)
		}},
		{"rate calls", AwaitingRateLimitCalls, "9", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, 9, s.RateLimitCalls)
			assert.Equal(t, settings.DefaultRatePeriodSec, s.RateLimitPeriod)
		}},
		{"rate period", AwaitingRateLimitPeriod, "120", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, 120, s.RateLimitPeriod)
		}},
		{"proxy url", AwaitingProxyURL, "https://proxy.example.com/v1/", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, "https://proxy.example.com", s.ProxyURL)
		}},
		{"proxy key", AwaitingProxyKey, "sk-proxy-0123456789", func(t *testing.T, s settings.BotSettings) {
			assert.Equal(t, "sk-proxy-0123456789", s.ProxyKey)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			resp, err := f.dialog.Begin(ctx, adminID, State{Kind: tt.kind})
			require.NoError(t, err)
			assert.Contains(t, resp.Text, Prompt(tt.kind))

			resp, handled, err := f.dialog.Handle(ctx, adminID, tt.input)
			require.NoError(t, err)
			assert.True(t, handled)
			assert.True(t, resp.Next.IsIdle())
			assert.Contains(t, resp.Text, "✅")
			assert.NotContains(t, resp.Text, "sk-proxy")

			s, err := f.settings.Get(ctx)
			require.NoError(t, err)
			tt.check(t, s)

			st, err := f.sessions.Get(ctx, adminID)
			require.NoError(t, err)
			assert.True(t, st.IsIdle())
		})
	}
}

func TestDialog_RejectedInputKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.dialog.Begin(ctx, adminID, State{Kind: AwaitingContextSize})
	require.NoError(t, err)

	resp, handled, err := f.dialog.Handle(ctx, adminID, "500")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, AwaitingContextSize, resp.Next.Kind)
	assert.Contains(t, resp.Text, "between 1 and 50")
	assert.Equal(t, MenuSettings, resp.Menu)

	resp, _, err = f.dialog.Handle(ctx, adminID, "15")
	require.NoError(t, err)
	assert.True(t, resp.Next.IsIdle())

	s, err := f.settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, s.ContextSize)
}

func TestDialog_Cancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.dialog.Begin(ctx, adminID, State{Kind: AwaitingRateLimitPeriod})
	require.NoError(t, err)

	resp, handled, err := f.dialog.Handle(ctx, adminID, "/cancel")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, MenuRateLimit, resp.Menu)
	assert.Contains(t, resp.Text, "Cancelled")

	_, handled, err = f.dialog.Handle(ctx, adminID, "30")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestDialog_AccessLists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.dialog.Begin(ctx, adminID, State{Kind: AwaitingWhitelistAdd})
	require.NoError(t, err)
	resp, _, err := f.dialog.Handle(ctx, adminID, "id42")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "User 42 added to the whitelist")

	_, err = f.dialog.Begin(ctx, adminID, State{Kind: AwaitingWhitelistAdd})
	require.NoError(t, err)
	resp, _, err = f.dialog.Handle(ctx, adminID, "42")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "already whitelisted")

	_, err = f.dialog.Begin(ctx, adminID, State{Kind: AwaitingBlacklistAdd})
	require.NoError(t, err)
	resp, _, err = f.dialog.Handle(ctx, adminID, "42")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "blocked")

	c, err := f.access.Control(ctx)
	require.NoError(t, err)
	assert.NotContains(t, c.Whitelist, int64(42))
	assert.Contains(t, c.Blacklist, int64(42))

	// Admins cannot be blocked; the wizard asks again.
	_, err = f.dialog.Begin(ctx, adminID, State{Kind: AwaitingBlacklistAdd})
	require.NoError(t, err)
	resp, _, err = f.dialog.Handle(ctx, adminID, "1")
	require.NoError(t, err)
	assert.Equal(t, AwaitingBlacklistAdd, resp.Next.Kind)

	resp, _, err = f.dialog.Handle(ctx, adminID, "not-a-number")
	require.NoError(t, err)
	assert.Equal(t, AwaitingBlacklistAdd, resp.Next.Kind)
	assert.Contains(t, resp.Text, "is not a user id")
}

func TestDialog_UserLimitFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.dialog.Begin(ctx, adminID, State{Kind: AwaitingUserTarget})
	require.NoError(t, err)

	resp, handled, err := f.dialog.Handle(ctx, adminID, "77")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, State{Kind: AwaitingNewLimit, Target: 77}, resp.Next)
	assert.Equal(t, MenuUser, resp.Menu)
	assert.Contains(t, resp.Text, "ID: 77")
	assert.Contains(t, resp.Text, Prompt(AwaitingNewLimit))

	resp, _, err = f.dialog.Handle(ctx, adminID, "250")
	require.NoError(t, err)
	assert.True(t, resp.Next.IsIdle())
	assert.Contains(t, resp.Text, "New limit 250 set for user 77")

	usage, err := f.quota.Stats(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, 250, usage.Limit)
}

func TestDialog_NewLimitOutOfRangeLeavesWizard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.quota.GetOrCreate(ctx, 5, "", "")
	require.NoError(t, err)
	_, err = f.dialog.Begin(ctx, adminID, State{Kind: AwaitingNewLimit, Target: 5})
	require.NoError(t, err)

	resp, handled, err := f.dialog.Handle(ctx, adminID, "20000")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, resp.Next.IsIdle())
	assert.Contains(t, resp.Text, "0 to 10000")
}

func TestDialog_BeginUnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := f.dialog.Begin(context.Background(), adminID, State{Kind: Idle})
	assert.Error(t, err)
}

func TestMemorySessionStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemorySessionStore(WithSessionTTL(time.Minute), WithSessionClock(func() time.Time { return now }))

	require.NoError(t, s.Set(ctx, 1, State{Kind: AwaitingWelcome}))
	st, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, AwaitingWelcome, st.Kind)

	now = now.Add(2 * time.Minute)
	st, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.IsIdle())
	assert.Equal(t, 0, s.Len())
}

func TestParseUserID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{" id42 ", 42, false},
		{"@id7", 7, false},
		{"ID9", 9, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"durov", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUserID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindForSetting(t *testing.T) {
	for _, name := range SettingNames() {
		k, ok := KindForSetting(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, Prompt(k))
	}
	_, ok := KindForSetting("colour")
	assert.False(t, ok)
}
