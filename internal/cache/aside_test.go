package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadThroughMissThenHit(t *testing.T) {
	db := openCacheTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	key := ReposKey("octocat")
	policy := NewPolicy(nil)

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"alpha"}, nil
	}

	first, err := ReadThrough(ctx, store, policy, key, false, fetch)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Nil(t, first.CachedAt)
	require.Equal(t, []string{"alpha"}, first.Payload)

	second, err := ReadThrough(ctx, store, policy, key, false, fetch)
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.NotNil(t, second.CachedAt)
	require.Equal(t, []string{"alpha"}, second.Payload)
	require.Equal(t, 1, calls)
}

func TestReadThroughServesFirstWriterUntilExpiry(t *testing.T) {
	db := openCacheTestDB(t)

	current := time.Now()
	store, err := NewStore(db, WithNow(func() time.Time { return current }))
	require.NoError(t, err)

	ctx := context.Background()
	key := FileKey("octocat", "hub", "README.md")
	policy := NewPolicy(map[Endpoint]time.Duration{EndpointFile: time.Minute})

	value := "v1"
	fetch := func(context.Context) (string, error) { return value, nil }

	_, err = ReadThrough(ctx, store, policy, key, false, fetch)
	require.NoError(t, err)

	// The origin moved on, but the cached value keeps winning until the TTL
	// lapses.
	value = "v2"
	res, err := ReadThrough(ctx, store, policy, key, false, fetch)
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, "v1", res.Payload)

	current = current.Add(2 * time.Minute)
	res, err = ReadThrough(ctx, store, policy, key, false, fetch)
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, "v2", res.Payload)
}

func TestReadThroughBypassSkipsLookupButRefreshes(t *testing.T) {
	db := openCacheTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	key := ReposKey("octocat")
	policy := NewPolicy(nil)

	_, err = store.Put(ctx, key, "stale", time.Minute)
	require.NoError(t, err)

	res, err := ReadThrough(ctx, store, policy, key, true, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, "fresh", res.Payload)

	// The bypass result replaced the stale entry.
	after, err := ReadThrough(ctx, store, policy, key, false, func(context.Context) (string, error) {
		t.Fatal("fetch must not run on a warm cache")
		return "", nil
	})
	require.NoError(t, err)
	require.True(t, after.Cached)
	require.Equal(t, "fresh", after.Payload)
}

func TestReadThroughFetchFailurePropagatesAndCachesNothing(t *testing.T) {
	db := openCacheTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	key := CommitsKey("octocat", "hub", 10)
	wantErr := errors.New("origin down")

	_, err = ReadThrough(ctx, store, NewPolicy(nil), key, false, func(context.Context) ([]string, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok, err := store.Get(ctx, key.String())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadThroughStoreFailureForcesMiss(t *testing.T) {
	db := openCacheTestDB(t)
	store, err := NewStore(db)
	require.NoError(t, err)

	// Kill the underlying connection so every store operation fails.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	res, err := ReadThrough(context.Background(), store, NewPolicy(nil), ReposKey("octocat"), false,
		func(context.Context) (string, error) {
			return "live", nil
		})
	require.NoError(t, err)
	require.False(t, res.Cached)
	require.Equal(t, "live", res.Payload)
}
