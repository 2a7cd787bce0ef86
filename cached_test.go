package stillsuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seb7887/stillsuit/internal/testutils"
)

func newCachedAccountRepo(t *testing.T, strategy CacheStrategy) (*CachedRepository[testutils.Account, string], *MemoryConnector[testutils.Account, string], *MemoryConnector[testutils.Account, string]) {
	t.Helper()
	base := newAccountRepo(t)
	cache := newAccountRepo(t)
	return NewCachedRepositoryWithStrategy[testutils.Account, string](base, cache, strategy), base, cache
}

func TestCachedRepository_WriteThrough(t *testing.T) {
	repo, base, cache := newCachedAccountRepo(t, CacheStrategyWriteThrough)
	ctx := context.Background()

	acc := testutils.Account{ID: "a1", Owner: "paul"}
	_, err := repo.Add(ctx, &acc)
	require.NoError(t, err)

	_, err = base.Get(ctx, "a1")
	assert.NoError(t, err, "base should hold the entity")
	_, err = cache.Get(ctx, "a1")
	assert.NoError(t, err, "write-through should populate the cache synchronously")
}

func TestCachedRepository_WriteAround(t *testing.T) {
	repo, _, cache := newCachedAccountRepo(t, CacheStrategyWriteAround)
	ctx := context.Background()

	_, err := repo.Add(ctx, &testutils.Account{ID: "a1"})
	require.NoError(t, err)

	_, err = cache.Get(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound, "write-around must not touch the cache")
}

func TestCachedRepository_WriteBack(t *testing.T) {
	repo, _, cache := newCachedAccountRepo(t, CacheStrategyWriteBack)
	ctx := context.Background()

	_, err := repo.Add(ctx, &testutils.Account{ID: "a1"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := cache.Get(context.Background(), "a1")
		return err == nil
	}, time.Second, 10*time.Millisecond, "write-back should populate the cache asynchronously")
}

func TestCachedRepository_GetFallsBackToBase(t *testing.T) {
	repo, base, cache := newCachedAccountRepo(t, CacheStrategyWriteThrough)
	ctx := context.Background()

	// Seed the base only, simulating a cold cache.
	_, err := base.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "paul", got.Owner)

	// The read path repopulates asynchronously.
	assert.Eventually(t, func() bool {
		_, err := cache.Get(context.Background(), "a1")
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestCachedRepository_GetPrefersCache(t *testing.T) {
	repo, _, cache := newCachedAccountRepo(t, CacheStrategyWriteThrough)
	ctx := context.Background()

	// Only the cache holds the entity; a cache hit must not consult the base.
	_, err := cache.Add(ctx, &testutils.Account{ID: "a1", Owner: "cached"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Owner)
}

func TestCachedRepository_DeleteInvalidates(t *testing.T) {
	repo, _, cache := newCachedAccountRepo(t, CacheStrategyWriteThrough)
	ctx := context.Background()

	_, err := repo.Add(ctx, &testutils.Account{ID: "a1"})
	require.NoError(t, err)

	_, err = repo.Delete(ctx, "a1")
	require.NoError(t, err)

	_, err = cache.Get(ctx, "a1")
	assert.ErrorIs(t, err, ErrNotFound, "delete should evict the cache entry")

	_, err = repo.Get(ctx, "a1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCachedRepository_PredicateQueriesBypassCache(t *testing.T) {
	repo, base, cache := newCachedAccountRepo(t, CacheStrategyWriteThrough)
	ctx := context.Background()

	_, err := base.Add(ctx, &testutils.Account{ID: "a1", Owner: "paul"})
	require.NoError(t, err)
	// A stale cache entry must not leak into predicate results.
	_, err = cache.Add(ctx, &testutils.Account{ID: "stale", Owner: "paul"})
	require.NoError(t, err)

	items, total, err := repo.ListAndCount(ctx, Eq("owner", "paul"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, "a1", items[0].ID)
}
