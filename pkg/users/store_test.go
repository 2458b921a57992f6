package users

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Derived(t *testing.T) {
	tests := []struct {
		name      string
		p         Profile
		remaining int
		can       bool
	}{
		{"fresh", Profile{RequestsLimit: 5, IsActive: true}, 5, true},
		{"exhausted", Profile{RequestsLimit: 2, RequestsUsed: 2, IsActive: true}, 0, false},
		{"overdrawn after limit drop", Profile{RequestsLimit: 1, RequestsUsed: 3, IsActive: true}, 0, false},
		{"inactive", Profile{RequestsLimit: 5, IsActive: false}, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.remaining, tt.p.Remaining())
			assert.Equal(t, tt.can, tt.p.CanRequest())
		})
	}

	p := Profile{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", p.DisplayName())
}

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	sqlStore, err := NewSQLStore(db, "sqlite3")
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    sqlStore,
	}
}

func TestStores_Lifecycle(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, 1)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Create(ctx, &Profile{UserID: 1, FirstName: "Ada", RequestsLimit: 3, IsActive: true}))
			assert.ErrorIs(t, store.Create(ctx, &Profile{UserID: 1}), ErrExists)

			used, err := store.IncrementRequests(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 1, used)
			used, err = store.IncrementRequests(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 2, used)

			p, err := store.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "Ada", p.FirstName)
			assert.Equal(t, 1, p.Remaining())
			require.NotNil(t, p.LastRequestAt)
			assert.False(t, p.CreatedAt.IsZero())

			require.NoError(t, store.SetLimit(ctx, 1, 10))
			p, err = store.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 8, p.Remaining())

			p.LastName = "Lovelace"
			p.IsActive = false
			require.NoError(t, store.Update(ctx, p))
			p, err = store.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "Lovelace", p.LastName)
			assert.False(t, p.CanRequest())

			require.NoError(t, store.ResetRequests(ctx, 1))
			p, err = store.Get(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 0, p.RequestsUsed)

			_, err = store.IncrementRequests(ctx, 99)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.ResetRequests(ctx, 99), ErrNotFound)
			assert.ErrorIs(t, store.SetLimit(ctx, 99, 1), ErrNotFound)
			assert.ErrorIs(t, store.Update(ctx, &Profile{UserID: 99}), ErrNotFound)
		})
	}
}

func TestStores_ResetAll(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for id := int64(1); id <= 3; id++ {
				require.NoError(t, store.Create(ctx, &Profile{UserID: id, RequestsLimit: 5, IsActive: true}))
			}
			_, err := store.IncrementRequests(ctx, 1)
			require.NoError(t, err)
			_, err = store.IncrementRequests(ctx, 3)
			require.NoError(t, err)

			n, err := store.ResetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			all, err := store.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			for _, p := range all {
				assert.Equal(t, 0, p.RequestsUsed)
			}
			assert.Equal(t, int64(1), all[0].UserID)
		})
	}
}

func TestStores_NoOpUpdatesFindUser(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &Profile{UserID: 9, FirstName: "Ada", RequestsLimit: 3, IsActive: true}
			require.NoError(t, store.Create(ctx, p))

			// Each of these leaves the row unchanged.
			assert.NoError(t, store.ResetRequests(ctx, 9))
			assert.NoError(t, store.SetLimit(ctx, 9, 3))
			current, err := store.Get(ctx, 9)
			require.NoError(t, err)
			assert.NoError(t, store.Update(ctx, current))

			assert.ErrorIs(t, store.ResetRequests(ctx, 10), ErrNotFound)
			assert.ErrorIs(t, store.SetLimit(ctx, 10, 3), ErrNotFound)
		})
	}
}

// changedRowsResult mimics a driver that counts changed rather than matched
// rows.
type changedRowsResult struct{ n int64 }

func (r changedRowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r changedRowsResult) RowsAffected() (int64, error) { return r.n, nil }

func TestSQLStore_ZeroChangedRows(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store, err := NewSQLStore(db, "sqlite3")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &Profile{UserID: 4, RequestsLimit: 3, IsActive: true}))

	assert.NoError(t, store.requireAffected(ctx, changedRowsResult{n: 0}, 4))
	assert.NoError(t, store.requireAffected(ctx, changedRowsResult{n: 1}, 99))
	assert.ErrorIs(t, store.requireAffected(ctx, changedRowsResult{n: 0}, 99), ErrNotFound)
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, &Profile{UserID: 1, RequestsLimit: 1000, IsActive: true}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.IncrementRequests(ctx, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 100, p.RequestsUsed)
}
