package access

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chatgate/pkg/settings"
)

const admin int64 = 1

func isAdmin(id int64) bool { return id == admin }

func TestControl_Allows(t *testing.T) {
	c := DefaultControl()
	c.Whitelist = []int64{10}
	c.Blacklist = []int64{20, admin}

	tests := []struct {
		name    string
		mode    Mode
		user    int64
		isAdmin bool
		want    bool
	}{
		{"public stranger", ModePublic, 30, false, true},
		{"public blacklisted", ModePublic, 20, false, false},
		{"blacklist beats admin", ModePublic, admin, true, false},
		{"whitelist member", ModeWhitelist, 10, false, true},
		{"whitelist stranger", ModeWhitelist, 30, false, false},
		{"admin only admin", ModeAdminOnly, 99, true, true},
		{"admin only member", ModeAdminOnly, 10, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.Mode = tt.mode
			assert.Equal(t, tt.want, c.Allows(tt.user, tt.isAdmin))
		})
	}
}

func TestControl_DeniedMessage(t *testing.T) {
	c := DefaultControl()
	c.Blacklist = []int64{5}
	assert.Equal(t, DefaultBlockedMessage, c.DeniedMessage(5))
	c.Mode = ModeWhitelist
	assert.Equal(t, DefaultWhitelistMessage, c.DeniedMessage(6))
	c.Mode = ModeAdminOnly
	assert.Equal(t, DefaultAdminOnlyMessage, c.DeniedMessage(6))
}

func TestService_Lists(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), isAdmin)

	allowed, err := svc.IsAllowed(ctx, 42)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, svc.SetMode(ctx, ModeWhitelist, admin))
	allowed, err = svc.IsAllowed(ctx, 42)
	require.NoError(t, err)
	assert.False(t, allowed)
	allowed, err = svc.IsAllowed(ctx, admin)
	require.NoError(t, err)
	assert.True(t, allowed)

	added, err := svc.AddToWhitelist(ctx, 42, admin)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = svc.AddToWhitelist(ctx, 42, admin)
	require.NoError(t, err)
	assert.False(t, added, "already listed")

	allowed, err = svc.IsAllowed(ctx, 42)
	require.NoError(t, err)
	assert.True(t, allowed)

	blocked, err := svc.AddToBlacklist(ctx, 42, admin)
	require.NoError(t, err)
	assert.True(t, blocked)

	c, err := svc.Control(ctx)
	require.NoError(t, err)
	assert.NotContains(t, c.Whitelist, int64(42), "blacklisting removes from whitelist")
	assert.Contains(t, c.Blacklist, int64(42))

	msg, err := svc.DeniedMessage(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockedMessage, msg)

	removed, err := svc.RemoveFromBlacklist(ctx, 42, admin)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = svc.RemoveFromWhitelist(ctx, 42, admin)
	require.NoError(t, err)
	assert.False(t, removed)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeWhitelist, stats.Mode)
	assert.Equal(t, 0, stats.BlacklistCount)
	assert.Equal(t, 4, stats.HistoryCount)
}

func TestService_Authorization(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), isAdmin)

	assert.ErrorIs(t, svc.SetMode(ctx, ModeAdminOnly, 7), ErrNotAdmin)
	_, err := svc.AddToWhitelist(ctx, 8, 7)
	assert.ErrorIs(t, err, ErrNotAdmin)

	assert.ErrorIs(t, svc.SetMode(ctx, Mode("secret"), admin), ErrInvalidMode)

	_, err = svc.AddToBlacklist(ctx, admin, admin)
	assert.ErrorIs(t, err, ErrCannotBlockAdmin)

	require.NoError(t, svc.SetMode(ctx, ModeAdminOnly, settings.APIActor))
	c, err := svc.Control(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeAdminOnly, c.Mode)
	assert.Equal(t, settings.APIActor, c.UpdatedBy)
}

func TestService_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := NewService(store, isAdmin)
	_, err := first.AddToWhitelist(ctx, 5, admin)
	require.NoError(t, err)

	second := NewService(store, isAdmin)
	c, err := second.Control(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, c.Whitelist)
}

func TestMemoryStore_HistoryCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for i := 0; i < historyCap+1; i++ {
		require.NoError(t, store.AddHistory(ctx, HistoryRecord{ID: fmt.Sprint(i), Action: fmt.Sprint(i)}))
	}
	all, err := store.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, historyKeep)
	assert.Equal(t, fmt.Sprint(historyCap), all[0].Action, "newest first")
	assert.Equal(t, fmt.Sprint(historyCap+1-historyKeep), all[len(all)-1].Action)

	three, err := store.History(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, three, 3)
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := NewSQLStore(db, "sqlite")
	require.NoError(t, err)

	_, err = store.GetControl(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	svc := NewService(store, isAdmin)
	require.NoError(t, svc.SetMode(ctx, ModeWhitelist, admin))
	_, err = svc.AddToWhitelist(ctx, 77, admin)
	require.NoError(t, err)

	c, err := store.GetControl(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeWhitelist, c.Mode)
	assert.Equal(t, []int64{77}, c.Whitelist)

	history, err := store.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user 77 added to whitelist", history[0].Action)
}

func TestSQLStore_HistoryCap(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := NewSQLStore(db, "sqlite3")
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < historyCap+1; i++ {
		require.NoError(t, store.AddHistory(ctx, HistoryRecord{
			ID:        fmt.Sprintf("rec-%03d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Action:    fmt.Sprint(i),
			AdminID:   admin,
		}))
	}
	all, err := store.History(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, historyKeep)
	assert.Equal(t, fmt.Sprint(historyCap), all[0].Action)
}

func TestService_DefaultMode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), isAdmin, WithDefaultMode(ModeAdminOnly))

	allowed, err := svc.IsAllowed(ctx, 42)
	require.NoError(t, err)
	assert.False(t, allowed)

	ignored := NewService(NewMemoryStore(), isAdmin, WithDefaultMode(Mode("bogus")))
	c, err := ignored.Control(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModePublic, c.Mode)
}
