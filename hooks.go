package stillsuit

import "context"

// Hook defines lifecycle callbacks around repository mutations and
// listings. Before-hooks abort the operation by returning an error;
// after-hook errors are ignored and never affect the result.
type Hook[T any, ID comparable] interface {
	BeforeAdd(ctx context.Context, item *T) error
	AfterAdd(ctx context.Context, item *T) error

	BeforeUpdate(ctx context.Context, item *T) error
	AfterUpdate(ctx context.Context, item *T) error

	BeforeDelete(ctx context.Context, id ID) error
	AfterDelete(ctx context.Context, item *T) error

	BeforeList(ctx context.Context, filters []Filter) error
	AfterList(ctx context.Context, results []T) error
}

// BaseHook is a no-op Hook. Embed it to implement only the callbacks a
// custom hook needs.
type BaseHook[T any, ID comparable] struct{}

func (BaseHook[T, ID]) BeforeAdd(context.Context, *T) error        { return nil }
func (BaseHook[T, ID]) AfterAdd(context.Context, *T) error         { return nil }
func (BaseHook[T, ID]) BeforeUpdate(context.Context, *T) error     { return nil }
func (BaseHook[T, ID]) AfterUpdate(context.Context, *T) error      { return nil }
func (BaseHook[T, ID]) BeforeDelete(context.Context, ID) error     { return nil }
func (BaseHook[T, ID]) AfterDelete(context.Context, *T) error      { return nil }
func (BaseHook[T, ID]) BeforeList(context.Context, []Filter) error { return nil }
func (BaseHook[T, ID]) AfterList(context.Context, []T) error       { return nil }

// HookRegistry holds an ordered collection of hooks.
type HookRegistry[T any, ID comparable] struct {
	hooks []Hook[T, ID]
}

func NewHookRegistry[T any, ID comparable]() *HookRegistry[T, ID] {
	return &HookRegistry[T, ID]{}
}

func (r *HookRegistry[T, ID]) Add(hook Hook[T, ID]) {
	r.hooks = append(r.hooks, hook)
}

func (r *HookRegistry[T, ID]) before(ctx context.Context, fn func(Hook[T, ID]) error) error {
	for _, h := range r.hooks {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}

func (r *HookRegistry[T, ID]) after(ctx context.Context, fn func(Hook[T, ID]) error) {
	for _, h := range r.hooks {
		_ = fn(h)
	}
}

// HookedRepository runs registered hooks around a base repository's
// mutations. Query operations other than List pass through untouched.
type HookedRepository[T any, ID comparable] struct {
	base  Repository[T, ID]
	hooks *HookRegistry[T, ID]
}

func NewHookedRepository[T any, ID comparable](base Repository[T, ID], hooks *HookRegistry[T, ID]) *HookedRepository[T, ID] {
	if hooks == nil {
		hooks = NewHookRegistry[T, ID]()
	}
	return &HookedRepository[T, ID]{base: base, hooks: hooks}
}

func (r *HookedRepository[T, ID]) Hooks() *HookRegistry[T, ID] {
	return r.hooks
}

func (r *HookedRepository[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeAdd(ctx, data) }); err != nil {
		return nil, err
	}
	item, err := r.base.Add(ctx, data)
	if err != nil {
		return nil, err
	}
	r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterAdd(ctx, item) })
	return item, nil
}

func (r *HookedRepository[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	for i := range data {
		if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeAdd(ctx, &data[i]) }); err != nil {
			return nil, err
		}
	}
	items, err := r.base.AddMany(ctx, data)
	if err != nil {
		return nil, err
	}
	for i := range items {
		r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterAdd(ctx, &items[i]) })
	}
	return items, nil
}

func (r *HookedRepository[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeUpdate(ctx, data) }); err != nil {
		return nil, err
	}
	item, err := r.base.Update(ctx, data)
	if err != nil {
		return nil, err
	}
	r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterUpdate(ctx, item) })
	return item, nil
}

func (r *HookedRepository[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	for i := range data {
		if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeUpdate(ctx, &data[i]) }); err != nil {
			return nil, err
		}
	}
	items, err := r.base.UpdateMany(ctx, data)
	if err != nil {
		return nil, err
	}
	for i := range items {
		r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterUpdate(ctx, &items[i]) })
	}
	return items, nil
}

func (r *HookedRepository[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeUpdate(ctx, data) }); err != nil {
		return nil, err
	}
	item, err := r.base.Upsert(ctx, data)
	if err != nil {
		return nil, err
	}
	r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterUpdate(ctx, item) })
	return item, nil
}

func (r *HookedRepository[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeDelete(ctx, id) }); err != nil {
		return nil, err
	}
	item, err := r.base.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterDelete(ctx, item) })
	return item, nil
}

func (r *HookedRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	for _, id := range ids {
		if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeDelete(ctx, id) }); err != nil {
			return nil, err
		}
	}
	items, err := r.base.DeleteMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterDelete(ctx, &items[i]) })
	}
	return items, nil
}

func (r *HookedRepository[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	if err := r.hooks.before(ctx, func(h Hook[T, ID]) error { return h.BeforeList(ctx, filters) }); err != nil {
		return nil, err
	}
	items, err := r.base.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterList(ctx, items) })
	return items, nil
}

func (r *HookedRepository[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	item, created, err := r.base.GetOrCreate(ctx, matchers...)
	if err != nil {
		return nil, false, err
	}
	if created {
		r.hooks.after(ctx, func(h Hook[T, ID]) error { return h.AfterAdd(ctx, item) })
	}
	return item, created, nil
}

func (r *HookedRepository[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	return r.base.Count(ctx, filters...)
}

func (r *HookedRepository[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	return r.base.Exists(ctx, matchers...)
}

func (r *HookedRepository[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	return r.base.Get(ctx, id, matchers...)
}

func (r *HookedRepository[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	return r.base.GetOne(ctx, matchers...)
}

func (r *HookedRepository[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	return r.base.GetOneOrNone(ctx, matchers...)
}

func (r *HookedRepository[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	return r.base.ListAndCount(ctx, filters...)
}

var _ Repository[struct{ ID string }, string] = (*HookedRepository[struct{ ID string }, string])(nil)
