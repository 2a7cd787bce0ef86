package stillsuit

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// OperationLogger receives one record per repository operation.
type OperationLogger interface {
	LogOperation(ctx context.Context, entity, op string, duration time.Duration, err error)
}

// ZerologLogger logs operations through zerolog. Successes and not-found
// results log at debug, everything else at error.
type ZerologLogger struct {
	log zerolog.Logger
}

func NewZerologLogger(w io.Writer) *ZerologLogger {
	return &ZerologLogger{
		log: zerolog.New(w).With().Timestamp().Logger(),
	}
}

func (l *ZerologLogger) LogOperation(_ context.Context, entity, op string, duration time.Duration, err error) {
	evt := l.log.Debug()
	if err != nil && !errors.Is(err, ErrNotFound) {
		evt = l.log.Error().Err(err)
	}
	evt.
		Str("entity", entity).
		Str("operation", op).
		Dur("duration", duration).
		Bool("not_found", errors.Is(err, ErrNotFound)).
		Msg("repository operation")
}

// NopLogger discards every record.
type NopLogger struct{}

func (NopLogger) LogOperation(context.Context, string, string, time.Duration, error) {}

// LoggedRepository logs every operation on its way through.
type LoggedRepository[T any, ID comparable] struct {
	base   Repository[T, ID]
	logger OperationLogger
	entity string
}

func NewLoggedRepository[T any, ID comparable](base Repository[T, ID], logger OperationLogger) *LoggedRepository[T, ID] {
	if logger == nil {
		logger = NopLogger{}
	}
	return &LoggedRepository[T, ID]{
		base:   base,
		logger: logger,
		entity: entityName[T](),
	}
}

func (r *LoggedRepository[T, ID]) logged(ctx context.Context, op string) func(error) {
	start := time.Now()
	return func(err error) {
		r.logger.LogOperation(ctx, r.entity, op, time.Since(start), err)
	}
}

func (r *LoggedRepository[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	done := r.logged(ctx, "add")
	item, err := r.base.Add(ctx, data)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	done := r.logged(ctx, "add_many")
	items, err := r.base.AddMany(ctx, data)
	done(err)
	return items, err
}

func (r *LoggedRepository[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	done := r.logged(ctx, "count")
	n, err := r.base.Count(ctx, filters...)
	done(err)
	return n, err
}

func (r *LoggedRepository[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	done := r.logged(ctx, "delete")
	item, err := r.base.Delete(ctx, id)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	done := r.logged(ctx, "delete_many")
	items, err := r.base.DeleteMany(ctx, ids)
	done(err)
	return items, err
}

func (r *LoggedRepository[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	done := r.logged(ctx, "exists")
	ok, err := r.base.Exists(ctx, matchers...)
	done(err)
	return ok, err
}

func (r *LoggedRepository[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	done := r.logged(ctx, "get")
	item, err := r.base.Get(ctx, id, matchers...)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	done := r.logged(ctx, "get_one")
	item, err := r.base.GetOne(ctx, matchers...)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	done := r.logged(ctx, "get_one_or_none")
	item, err := r.base.GetOneOrNone(ctx, matchers...)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	done := r.logged(ctx, "get_or_create")
	item, created, err := r.base.GetOrCreate(ctx, matchers...)
	done(err)
	return item, created, err
}

func (r *LoggedRepository[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	done := r.logged(ctx, "update")
	item, err := r.base.Update(ctx, data)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	done := r.logged(ctx, "update_many")
	items, err := r.base.UpdateMany(ctx, data)
	done(err)
	return items, err
}

func (r *LoggedRepository[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	done := r.logged(ctx, "upsert")
	item, err := r.base.Upsert(ctx, data)
	done(err)
	return item, err
}

func (r *LoggedRepository[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	done := r.logged(ctx, "list")
	items, err := r.base.List(ctx, filters...)
	done(err)
	return items, err
}

func (r *LoggedRepository[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	done := r.logged(ctx, "list_and_count")
	items, total, err := r.base.ListAndCount(ctx, filters...)
	done(err)
	return items, total, err
}

var _ Repository[struct{ ID string }, string] = (*LoggedRepository[struct{ ID string }, string])(nil)
