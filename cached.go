package stillsuit

import "context"

// CacheStrategy defines how writes propagate to the cache layer.
type CacheStrategy string

const (
	// CacheStrategyWriteThrough writes to the cache synchronously after
	// the base write succeeds.
	CacheStrategyWriteThrough CacheStrategy = "write_through"

	// CacheStrategyWriteAround skips the cache on writes; the next read
	// repopulates it.
	CacheStrategyWriteAround CacheStrategy = "write_around"

	// CacheStrategyWriteBack writes to the cache asynchronously.
	CacheStrategyWriteBack CacheStrategy = "write_back"
)

// CachedRepository layers a cache repository (typically Redis) over a
// base repository (typically SQL). Identifier reads try the cache first;
// predicate queries always hit the base, since caching them is rarely
// worthwhile.
type CachedRepository[T any, ID comparable] struct {
	base     Repository[T, ID]
	cache    Repository[T, ID]
	strategy CacheStrategy
}

func NewCachedRepository[T any, ID comparable](base, cache Repository[T, ID]) *CachedRepository[T, ID] {
	return NewCachedRepositoryWithStrategy(base, cache, CacheStrategyWriteThrough)
}

func NewCachedRepositoryWithStrategy[T any, ID comparable](base, cache Repository[T, ID], strategy CacheStrategy) *CachedRepository[T, ID] {
	return &CachedRepository[T, ID]{base: base, cache: cache, strategy: strategy}
}

// fill propagates a stored entity to the cache per the strategy.
// Cache failures never fail the operation.
func (r *CachedRepository[T, ID]) fill(ctx context.Context, item *T) {
	if item == nil {
		return
	}
	switch r.strategy {
	case CacheStrategyWriteThrough:
		_, _ = r.cache.Upsert(ctx, item)
	case CacheStrategyWriteAround:
		// Let the next Get repopulate.
	case CacheStrategyWriteBack:
		go func() {
			_, _ = r.cache.Upsert(context.Background(), item)
		}()
	}
}

func (r *CachedRepository[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	item, err := r.base.Add(ctx, data)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, item)
	return item, nil
}

func (r *CachedRepository[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	items, err := r.base.AddMany(ctx, data)
	if err != nil {
		return nil, err
	}
	for i := range items {
		r.fill(ctx, &items[i])
	}
	return items, nil
}

func (r *CachedRepository[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	if item, err := r.cache.Get(ctx, id, matchers...); err == nil {
		return item, nil
	}
	item, err := r.base.Get(ctx, id, matchers...)
	if err != nil {
		return nil, err
	}
	// Populate the cache off the read path.
	go func() {
		_, _ = r.cache.Upsert(context.Background(), item)
	}()
	return item, nil
}

func (r *CachedRepository[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	return r.base.GetOne(ctx, matchers...)
}

func (r *CachedRepository[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	return r.base.GetOneOrNone(ctx, matchers...)
}

func (r *CachedRepository[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	item, created, err := r.base.GetOrCreate(ctx, matchers...)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.fill(ctx, item)
	}
	return item, created, nil
}

func (r *CachedRepository[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	return r.base.Exists(ctx, matchers...)
}

func (r *CachedRepository[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	return r.base.Count(ctx, filters...)
}

func (r *CachedRepository[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	return r.base.List(ctx, filters...)
}

func (r *CachedRepository[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	return r.base.ListAndCount(ctx, filters...)
}

func (r *CachedRepository[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	item, err := r.base.Update(ctx, data)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, item)
	return item, nil
}

func (r *CachedRepository[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	items, err := r.base.UpdateMany(ctx, data)
	if err != nil {
		return nil, err
	}
	for i := range items {
		r.fill(ctx, &items[i])
	}
	return items, nil
}

func (r *CachedRepository[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	item, err := r.base.Upsert(ctx, data)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, item)
	return item, nil
}

func (r *CachedRepository[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	item, err := r.base.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	// Invalidation failure is not data loss; the entry expires.
	_, _ = r.cache.Delete(ctx, id)
	return item, nil
}

func (r *CachedRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	items, err := r.base.DeleteMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	_, _ = r.cache.DeleteMany(ctx, ids)
	return items, nil
}

var _ Repository[struct{ ID string }, string] = (*CachedRepository[struct{ ID string }, string])(nil)
