// Package stillsuit provides a generic persistence contract: a single
// Repository interface that interchangeable storage backends implement,
// plus the filter value types callers use to query them.
//
// Backends included: in-memory (reference implementation), PostgreSQL
// (pgx) and Redis (key-value only). Decorators layer caching, lifecycle
// hooks, change events, metrics and logging on top of any backend.
package stillsuit

import "context"

// Repository defines the uniform contract every persistence backend must
// implement so callers stay backend-agnostic.
// T is the entity type, ID its identifier type.
//
// Filters and matchers AND-combine in argument order. Backend-native
// errors (constraint violations, connectivity) pass through unwrapped;
// the only errors defined at this layer are ErrNotFound, ErrUnknownField
// and ErrUnsupportedOperation.
type Repository[T any, ID comparable] interface {
	// Add inserts one entity and returns the stored instance, including
	// any backend-populated attributes such as a generated id.
	Add(ctx context.Context, data *T) (*T, error)

	// AddMany inserts multiple entities. Result order matches input order.
	AddMany(ctx context.Context, data []T) ([]T, error)

	// Count returns the number of entities matching the filters.
	// LimitOffset filters carry no meaning for a count and are ignored.
	Count(ctx context.Context, filters ...Filter) (int64, error)

	// Delete removes the entity identified by id and returns it.
	// Returns ErrNotFound when absent.
	Delete(ctx context.Context, id ID) (*T, error)

	// DeleteMany removes the entities identified by ids, best-effort.
	// It returns only the entities actually deleted and never ErrNotFound.
	DeleteMany(ctx context.Context, ids []ID) ([]T, error)

	// Exists reports whether any entity matches the matchers.
	// It never returns ErrNotFound.
	Exists(ctx context.Context, matchers ...Where) (bool, error)

	// Get fetches the entity identified by id, optionally constrained by
	// additional equality matchers. Returns ErrNotFound when absent.
	Get(ctx context.Context, id ID, matchers ...Where) (*T, error)

	// GetOne fetches a single entity matching the matchers.
	// Returns ErrNotFound when nothing matches. When more than one entity
	// matches, which one is returned is backend-defined.
	GetOne(ctx context.Context, matchers ...Where) (*T, error)

	// GetOneOrNone is GetOne returning (nil, nil) instead of ErrNotFound
	// when nothing matches.
	GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error)

	// GetOrCreate fetches the entity matching the matchers, creating it
	// from the matcher field/value pairs when absent. The boolean reports
	// whether a new entity was created. Atomicity against concurrent
	// callers is a backend guarantee; see the backend's documentation.
	GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error)

	// Update replaces the stored entity identified by data's id attribute.
	// Returns ErrNotFound when no stored entity matches.
	Update(ctx context.Context, data *T) (*T, error)

	// UpdateMany replaces multiple stored entities with per-item Update
	// semantics. Returns ErrNotFound when any id is absent.
	UpdateMany(ctx context.Context, data []T) ([]T, error)

	// Upsert updates the entity identified by data's id attribute, or
	// inserts it when absent. Never returns ErrNotFound.
	Upsert(ctx context.Context, data *T) (*T, error)

	// List returns the entities matching the filters.
	List(ctx context.Context, filters ...Filter) ([]T, error)

	// ListAndCount returns the entities matching the filters together
	// with the total count ignoring any LimitOffset filter, so callers
	// can paginate without a second round trip.
	ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error)
}

// TxFunc runs repository operations within a transaction scope.
type TxFunc[T any, ID comparable] func(repo Repository[T, ID]) error

// Transactional is an optional interface for backends with transaction
// support. Callers discover it by type assertion:
//
//	if tx, ok := repo.(Transactional[T, ID]); ok { ... }
type Transactional[T any, ID comparable] interface {
	// WithTx executes fn within a transaction. The transaction is rolled
	// back when fn returns an error or panics, committed otherwise.
	WithTx(ctx context.Context, fn TxFunc[T, ID]) error
}
