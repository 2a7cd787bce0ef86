package stillsuit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConnector is the key-value implementation of Repository. Entities
// are JSON documents stored under keyFunc(id). Identifier-based
// operations are fully supported; predicate queries over non-id fields
// are not and return ErrUnsupportedOperation.
//
// SET is atomic per key, so Upsert is atomic; GetOrCreate is
// check-then-set and only best-effort under concurrent callers.
type RedisConnector[T any, ID comparable] struct {
	client     *redis.Client
	defaultTTL time.Duration
	identity   Identity[T, ID]
	keyFunc    func(ID) string
	name       string
}

// DefaultKeyFunc namespaces keys as "<prefix>:<id>".
func DefaultKeyFunc[ID comparable](prefix string) func(ID) string {
	return func(id ID) string {
		return fmt.Sprintf("%s:%v", prefix, id)
	}
}

func NewRedisConnector[T any, ID comparable](client *redis.Client, defaultTTL time.Duration, identity Identity[T, ID], keyFunc func(ID) string) *RedisConnector[T, ID] {
	if keyFunc == nil {
		keyFunc = DefaultKeyFunc[ID](entityName[T]())
	}
	return &RedisConnector[T, ID]{
		client:     client,
		defaultTTL: defaultTTL,
		identity:   identity,
		keyFunc:    keyFunc,
		name:       entityName[T](),
	}
}

func (r *RedisConnector[T, ID]) encode(item *T) (string, []byte, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return "", nil, err
	}
	return r.keyFunc(r.identity.ID(item)), data, nil
}

func (r *RedisConnector[T, ID]) decode(data []byte) (*T, error) {
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *RedisConnector[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	key, payload, err := r.encode(data)
	if err != nil {
		return nil, opError(r.name, "add", err)
	}
	ok, err := r.client.SetNX(ctx, key, payload, r.defaultTTL).Result()
	if err != nil {
		return nil, opError(r.name, "add", err)
	}
	if !ok {
		return nil, opError(r.name, "add", ErrConflict)
	}
	return clone(data), nil
}

func (r *RedisConnector[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	pipe := r.client.TxPipeline()
	cmds := make([]*redis.BoolCmd, 0, len(data))
	for i := range data {
		key, payload, err := r.encode(&data[i])
		if err != nil {
			return nil, opError(r.name, "add_many", err)
		}
		cmds = append(cmds, pipe.SetNX(ctx, key, payload, r.defaultTTL))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, opError(r.name, "add_many", err)
	}
	for _, cmd := range cmds {
		if !cmd.Val() {
			return nil, opError(r.name, "add_many", ErrConflict)
		}
	}
	return append([]T(nil), data...), nil
}

func (r *RedisConnector[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	data, err := r.client.Get(ctx, r.keyFunc(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, opError(r.name, "get", ErrNotFound)
		}
		return nil, opError(r.name, "get", err)
	}
	item, err := r.decode(data)
	if err != nil {
		return nil, opError(r.name, "get", err)
	}
	if len(matchers) > 0 {
		sch, err := schemaOf[T]()
		if err != nil {
			return nil, opError(r.name, "get", err)
		}
		match, err := sch.matches(item, whereFilters(matchers))
		if err != nil {
			return nil, opError(r.name, "get", err)
		}
		if !match {
			return nil, opError(r.name, "get", ErrNotFound)
		}
	}
	return item, nil
}

// idMatcher returns the id when matchers reduce to a single equality on
// the id attribute, the only predicate a key-value store can serve.
func (r *RedisConnector[T, ID]) idMatcher(matchers []Where) (ID, bool) {
	var zero ID
	if len(matchers) != 1 || matchers[0].Field != r.identity.attribute() {
		return zero, false
	}
	id, ok := matchers[0].Value.(ID)
	return id, ok
}

func (r *RedisConnector[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	id, ok := r.idMatcher(matchers)
	if !ok {
		return nil, opError(r.name, "get_one", ErrUnsupportedOperation)
	}
	return r.Get(ctx, id)
}

func (r *RedisConnector[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	item, err := r.GetOne(ctx, matchers...)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

func (r *RedisConnector[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	id, ok := r.idMatcher(matchers)
	if !ok {
		return nil, false, opError(r.name, "get_or_create", ErrUnsupportedOperation)
	}
	item, err := r.GetOneOrNone(ctx, matchers...)
	if err != nil {
		return nil, false, err
	}
	if item != nil {
		return item, false, nil
	}
	created := new(T)
	r.identity.Set(created, id)
	if _, err := r.Add(ctx, created); err != nil {
		// A concurrent caller may have created the key meanwhile.
		if errors.Is(err, ErrConflict) {
			item, err = r.Get(ctx, id)
			return item, false, err
		}
		return nil, false, err
	}
	return created, true, nil
}

func (r *RedisConnector[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	id, ok := r.idMatcher(matchers)
	if !ok {
		return false, opError(r.name, "exists", ErrUnsupportedOperation)
	}
	n, err := r.client.Exists(ctx, r.keyFunc(id)).Result()
	if err != nil {
		return false, opError(r.name, "exists", err)
	}
	return n > 0, nil
}

func (r *RedisConnector[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	key, payload, err := r.encode(data)
	if err != nil {
		return nil, opError(r.name, "update", err)
	}
	// XX: only set keys that already exist, giving Update its
	// ErrNotFound semantics in one round trip.
	set, err := r.client.SetXX(ctx, key, payload, r.defaultTTL).Result()
	if err != nil {
		return nil, opError(r.name, "update", err)
	}
	if !set {
		return nil, opError(r.name, "update", ErrNotFound)
	}
	return clone(data), nil
}

func (r *RedisConnector[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	pipe := r.client.TxPipeline()
	cmds := make([]*redis.BoolCmd, 0, len(data))
	for i := range data {
		key, payload, err := r.encode(&data[i])
		if err != nil {
			return nil, opError(r.name, "update_many", err)
		}
		cmds = append(cmds, pipe.SetXX(ctx, key, payload, r.defaultTTL))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, opError(r.name, "update_many", err)
	}
	for _, cmd := range cmds {
		if !cmd.Val() {
			return nil, opError(r.name, "update_many", ErrNotFound)
		}
	}
	return append([]T(nil), data...), nil
}

func (r *RedisConnector[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	key, payload, err := r.encode(data)
	if err != nil {
		return nil, opError(r.name, "upsert", err)
	}
	if err := r.client.Set(ctx, key, payload, r.defaultTTL).Err(); err != nil {
		return nil, opError(r.name, "upsert", err)
	}
	return clone(data), nil
}

func (r *RedisConnector[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	item, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, opError(r.name, "delete", ErrNotFound)
		}
		return nil, err
	}
	if err := r.client.Del(ctx, r.keyFunc(id)).Err(); err != nil {
		return nil, opError(r.name, "delete", err)
	}
	return item, nil
}

func (r *RedisConnector[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	var out []T
	for _, id := range ids {
		item, err := r.Delete(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // best-effort
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, nil
}

// Count is not supported by the key-value backend.
func (r *RedisConnector[T, ID]) Count(_ context.Context, _ ...Filter) (int64, error) {
	return 0, opError(r.name, "count", ErrUnsupportedOperation)
}

// List is not supported by the key-value backend.
func (r *RedisConnector[T, ID]) List(_ context.Context, _ ...Filter) ([]T, error) {
	return nil, opError(r.name, "list", ErrUnsupportedOperation)
}

// ListAndCount is not supported by the key-value backend.
func (r *RedisConnector[T, ID]) ListAndCount(_ context.Context, _ ...Filter) ([]T, int64, error) {
	return nil, 0, opError(r.name, "list_and_count", ErrUnsupportedOperation)
}

var _ Repository[struct{ ID string }, string] = (*RedisConnector[struct{ ID string }, string])(nil)
