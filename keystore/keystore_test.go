package keystore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"bolt": func(t *testing.T) Store {
			s, err := OpenBoltStore(filepath.Join(t.TempDir(), "keys.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func sampleRecord(id, hash string, created time.Time) *Record {
	return &Record{
		ID:          id,
		Name:        "name-" + id,
		KeyHash:     hash,
		Prefix:      "tg_abcde",
		CreatedAt:   created,
		IsActive:    true,
		Permissions: []string{"tool:*:call"},
	}
}

func TestStore_InsertLookupGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { require.NoError(t, store.Close()) }()
			ctx := context.Background()

			created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			rec := sampleRecord("k1", "hash1", created)
			require.NoError(t, store.Insert(ctx, rec))

			got, err := store.Lookup(ctx, "hash1")
			require.NoError(t, err)
			require.NotNil(t, got)
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
			}

			byID, err := store.Get(ctx, "k1")
			require.NoError(t, err)
			require.Equal(t, "name-k1", byID.Name)

			missing, err := store.Lookup(ctx, "nope")
			require.NoError(t, err)
			require.Nil(t, missing)

			_, err = store.Get(ctx, "nope")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_InsertDuplicate(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { require.NoError(t, store.Close()) }()
			ctx := context.Background()
			now := time.Now().UTC()

			require.NoError(t, store.Insert(ctx, sampleRecord("k1", "h1", now)))
			require.ErrorIs(t, store.Insert(ctx, sampleRecord("k1", "h2", now)), ErrDuplicate)
			require.ErrorIs(t, store.Insert(ctx, sampleRecord("k2", "h1", now)), ErrDuplicate)
			require.ErrorIs(t, store.Insert(ctx, &Record{ID: "x"}), ErrInvalid)
		})
	}
}

func TestStore_UpdateKeepsIdentity(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { require.NoError(t, store.Close()) }()
			ctx := context.Background()

			require.NoError(t, store.Insert(ctx, sampleRecord("k1", "h1", time.Now().UTC())))

			used := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			err := store.Update(ctx, "k1", func(r *Record) error {
				r.IsActive = false
				r.LastUsedAt = &used
				r.ID = "hijack"
				r.KeyHash = "other"
				return nil
			})
			require.NoError(t, err)

			got, err := store.Get(ctx, "k1")
			require.NoError(t, err)
			require.False(t, got.IsActive)
			require.NotNil(t, got.LastUsedAt)
			require.True(t, got.LastUsedAt.Equal(used))
			require.Equal(t, "h1", got.KeyHash)

			// Hash index still resolves.
			byHash, err := store.Lookup(ctx, "h1")
			require.NoError(t, err)
			require.Equal(t, "k1", byHash.ID)

			require.ErrorIs(t, store.Update(ctx, "missing", func(*Record) error { return nil }), ErrNotFound)
		})
	}
}

func TestStore_UpdateMutateErrorAborts(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { require.NoError(t, store.Close()) }()
			ctx := context.Background()
			require.NoError(t, store.Insert(ctx, sampleRecord("k1", "h1", time.Now().UTC())))

			boom := errors.New("boom")
			err := store.Update(ctx, "k1", func(r *Record) error {
				r.Name = "changed"
				return boom
			})
			require.ErrorIs(t, err, boom)

			got, err := store.Get(ctx, "k1")
			require.NoError(t, err)
			require.Equal(t, "name-k1", got.Name)
		})
	}
}

func TestStore_ListOrdered(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer func() { require.NoError(t, store.Close()) }()
			ctx := context.Background()
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

			require.NoError(t, store.Insert(ctx, sampleRecord("b", "hb", base.Add(2*time.Hour))))
			require.NoError(t, store.Insert(ctx, sampleRecord("a", "ha", base.Add(time.Hour))))
			require.NoError(t, store.Insert(ctx, sampleRecord("c", "hc", base.Add(2*time.Hour))))

			recs, err := store.List(ctx)
			require.NoError(t, err)
			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			require.Equal(t, []string{"a", "b", "c"}, ids)
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleRecord("k1", "h1", time.Now())))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	got.Permissions[0] = "*"
	got.IsActive = false

	again, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []string{"tool:*:call"}, again.Permissions)
	require.True(t, again.IsActive)
}

func TestStore_Closed(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			require.NoError(t, store.Close())
			require.NoError(t, store.Close())

			_, err := store.Lookup(context.Background(), "h")
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Lookup(ctx, "h")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keys.db")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.Equal(t, path, store.Path())
	require.NoError(t, store.Insert(context.Background(), sampleRecord("k1", "h1", time.Now().UTC())))
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	got, err := reopened.Lookup(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "k1", got.ID)
}

func TestOpenBoltStore_EmptyPath(t *testing.T) {
	_, err := OpenBoltStore("  ")
	require.Error(t, err)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, sampleRecord("k1", "h1", time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			_ = store.Update(ctx, "k1", func(r *Record) error {
				r.LastUsedAt = &now
				return nil
			})
			_, _ = store.Lookup(ctx, "h1")
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
}
