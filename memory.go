package stillsuit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryConnector is the in-memory implementation of Repository. It is
// the reference backend: every operation is served under a single lock,
// so GetOrCreate and Upsert are atomic against concurrent callers.
//
// Listing order is insertion order, which keeps LimitOffset pagination
// stable across calls.
type MemoryConnector[T any, ID comparable] struct {
	identity       Identity[T, ID]
	genID          IDGenerator
	includeDeleted bool

	sch  *fieldSchema
	name string

	mu    sync.RWMutex
	data  map[ID]*T
	order []ID
}

// MemoryOption configures a MemoryConnector.
type MemoryOption[T any, ID comparable] func(*MemoryConnector[T, ID])

// WithMemoryIDGenerator fills blank string ids on Add, AddMany, Upsert
// and GetOrCreate.
func WithMemoryIDGenerator[T any, ID comparable](gen IDGenerator) MemoryOption[T, ID] {
	return func(r *MemoryConnector[T, ID]) { r.genID = gen }
}

// WithIncludeDeleted makes reads return soft-deleted entities too.
func WithIncludeDeleted[T any, ID comparable]() MemoryOption[T, ID] {
	return func(r *MemoryConnector[T, ID]) { r.includeDeleted = true }
}

func NewMemoryConnector[T any, ID comparable](identity Identity[T, ID], opts ...MemoryOption[T, ID]) (*MemoryConnector[T, ID], error) {
	sch, err := schemaOf[T]()
	if err != nil {
		return nil, err
	}
	r := &MemoryConnector[T, ID]{
		identity: identity,
		sch:      sch,
		name:     entityName[T](),
		data:     make(map[ID]*T),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func clone[T any](item *T) *T {
	c := *item
	return &c
}

// visible applies the soft-delete veil.
func (r *MemoryConnector[T, ID]) visible(item *T) bool {
	return r.includeDeleted || !isSoftDeleted(item)
}

// lookup must be called with the lock held.
func (r *MemoryConnector[T, ID]) lookup(id ID) (*T, bool) {
	item, ok := r.data[id]
	if !ok || !r.visible(item) {
		return nil, false
	}
	return item, true
}

// insert must be called with the write lock held.
func (r *MemoryConnector[T, ID]) insert(item *T) (*T, error) {
	fillID(r.identity, item, r.genID)
	id := r.identity.ID(item)
	if existing, exists := r.data[id]; exists {
		if r.visible(existing) {
			return nil, opError(r.name, "add", ErrConflict)
		}
		// A soft-deleted entity still occupies its id and its slot in
		// the insertion order; re-inserting revives it in place.
		stored := clone(item)
		r.data[id] = stored
		return clone(stored), nil
	}
	stored := clone(item)
	r.data[id] = stored
	r.order = append(r.order, id)
	return clone(stored), nil
}

func (r *MemoryConnector[T, ID]) Add(_ context.Context, data *T) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(data)
}

func (r *MemoryConnector[T, ID]) AddMany(_ context.Context, data []T) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(data))
	for i := range data {
		stored, err := r.insert(&data[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	return out, nil
}

func (r *MemoryConnector[T, ID]) Get(_ context.Context, id ID, matchers ...Where) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.lookup(id)
	if !ok {
		return nil, opError(r.name, "get", ErrNotFound)
	}
	match, err := r.sch.matches(item, whereFilters(matchers))
	if err != nil {
		return nil, opError(r.name, "get", err)
	}
	if !match {
		return nil, opError(r.name, "get", ErrNotFound)
	}
	return clone(item), nil
}

// scan iterates visible entities in insertion order. Must be called with
// the lock held.
func (r *MemoryConnector[T, ID]) scan(predicates []Filter) ([]*T, error) {
	var out []*T
	for _, id := range r.order {
		item, ok := r.lookup(id)
		if !ok {
			continue
		}
		match, err := r.sch.matches(item, predicates)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *MemoryConnector[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	item, err := r.GetOneOrNone(ctx, matchers...)
	if err != nil {
		return nil, err
	}
	item, err = CheckNotFound(item)
	return item, opError(r.name, "get_one", err)
}

func (r *MemoryConnector[T, ID]) GetOneOrNone(_ context.Context, matchers ...Where) (*T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found, err := r.scan(whereFilters(matchers))
	if err != nil {
		return nil, opError(r.name, "get_one_or_none", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return clone(found[0]), nil
}

func (r *MemoryConnector[T, ID]) Exists(_ context.Context, matchers ...Where) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found, err := r.scan(whereFilters(matchers))
	if err != nil {
		return false, opError(r.name, "exists", err)
	}
	return len(found) > 0, nil
}

func (r *MemoryConnector[T, ID]) Count(_ context.Context, filters ...Filter) (int64, error) {
	predicates, _ := splitFilters(filters)

	r.mu.RLock()
	defer r.mu.RUnlock()

	found, err := r.scan(predicates)
	if err != nil {
		return 0, opError(r.name, "count", err)
	}
	return int64(len(found)), nil
}

func (r *MemoryConnector[T, ID]) List(_ context.Context, filters ...Filter) ([]T, error) {
	predicates, page := splitFilters(filters)

	r.mu.RLock()
	defer r.mu.RUnlock()

	found, err := r.scan(predicates)
	if err != nil {
		return nil, opError(r.name, "list", err)
	}
	out := make([]T, 0, len(found))
	for _, item := range paginate(found, page) {
		out = append(out, *clone(item))
	}
	return out, nil
}

func (r *MemoryConnector[T, ID]) ListAndCount(_ context.Context, filters ...Filter) ([]T, int64, error) {
	predicates, page := splitFilters(filters)

	r.mu.RLock()
	defer r.mu.RUnlock()

	found, err := r.scan(predicates)
	if err != nil {
		return nil, 0, opError(r.name, "list_and_count", err)
	}
	total := int64(len(found))
	out := make([]T, 0, len(found))
	for _, item := range paginate(found, page) {
		out = append(out, *clone(item))
	}
	return out, total, nil
}

func (r *MemoryConnector[T, ID]) GetOrCreate(_ context.Context, matchers ...Where) (*T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found, err := r.scan(whereFilters(matchers))
	if err != nil {
		return nil, false, opError(r.name, "get_or_create", err)
	}
	if len(found) > 0 {
		return clone(found[0]), false, nil
	}

	created := new(T)
	for _, m := range matchers {
		if err := r.sch.setValue(created, m.Field, m.Value); err != nil {
			return nil, false, opError(r.name, "get_or_create", err)
		}
	}
	stored, err := r.insert(created)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *MemoryConnector[T, ID]) Update(_ context.Context, data *T) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replace(data)
}

// replace must be called with the write lock held.
func (r *MemoryConnector[T, ID]) replace(data *T) (*T, error) {
	id := r.identity.ID(data)
	if _, ok := r.lookup(id); !ok {
		return nil, opError(r.name, "update", ErrNotFound)
	}
	stored := clone(data)
	r.data[id] = stored
	return clone(stored), nil
}

func (r *MemoryConnector[T, ID]) UpdateMany(_ context.Context, data []T) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate every id up front so the bulk update is all-or-nothing.
	for i := range data {
		if _, ok := r.lookup(r.identity.ID(&data[i])); !ok {
			return nil, opError(r.name, "update_many", ErrNotFound)
		}
	}
	out := make([]T, 0, len(data))
	for i := range data {
		stored, err := r.replace(&data[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	return out, nil
}

func (r *MemoryConnector[T, ID]) Upsert(_ context.Context, data *T) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fillID(r.identity, data, r.genID)
	id := r.identity.ID(data)
	if _, ok := r.lookup(id); ok {
		return r.replace(data)
	}
	return r.insert(data)
}

func (r *MemoryConnector[T, ID]) Delete(_ context.Context, id ID) (*T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.remove(id)
	if !ok {
		return nil, opError(r.name, "delete", ErrNotFound)
	}
	return item, nil
}

// remove must be called with the write lock held. Soft-deletable
// entities are marked and retained; others leave the map.
func (r *MemoryConnector[T, ID]) remove(id ID) (*T, bool) {
	item, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	if markSoftDeleted(item) {
		return clone(item), true
	}
	delete(r.data, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return item, true
}

func (r *MemoryConnector[T, ID]) DeleteMany(_ context.Context, ids []ID) ([]T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []T
	for _, id := range ids {
		if item, ok := r.remove(id); ok {
			out = append(out, *item)
		}
	}
	return out, nil
}

// FilterSlice is the synchronous collection-filtering hook: it narrows
// an in-memory collection by equality matchers with AND semantics.
// A matcher naming a field that T does not carry returns ErrUnknownField.
func (r *MemoryConnector[T, ID]) FilterSlice(collection []T, matchers ...Where) ([]T, error) {
	for _, m := range matchers {
		if !r.sch.has(m.Field) {
			return nil, opError(r.name, "filter_collection", fmt.Errorf("%w: %q", ErrUnknownField, m.Field))
		}
	}
	var out []T
	for i := range collection {
		match, err := r.sch.matches(&collection[i], whereFilters(matchers))
		if err != nil {
			return nil, opError(r.name, "filter_collection", err)
		}
		if match {
			out = append(out, collection[i])
		}
	}
	return out, nil
}

// WithTx simulates a transaction by snapshotting the map, running fn and
// restoring the snapshot when fn errors or panics.
func (r *MemoryConnector[T, ID]) WithTx(_ context.Context, fn TxFunc[T, ID]) error {
	r.mu.Lock()
	snapshot := make(map[ID]*T, len(r.data))
	for k, v := range r.data {
		snapshot[k] = clone(v)
	}
	orderSnapshot := append([]ID(nil), r.order...)
	r.mu.Unlock()

	restore := func() {
		r.mu.Lock()
		r.data = snapshot
		r.order = orderSnapshot
		r.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(r); err != nil {
		restore()
		return err
	}
	return nil
}

var (
	_ Repository[struct{ ID string }, string]    = (*MemoryConnector[struct{ ID string }, string])(nil)
	_ Transactional[struct{ ID string }, string] = (*MemoryConnector[struct{ ID string }, string])(nil)
)
