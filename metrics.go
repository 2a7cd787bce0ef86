package stillsuit

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// MetricsCollector holds the Prometheus instruments shared by
// instrumented repositories.
type MetricsCollector struct {
	opDuration  *prometheus.HistogramVec
	opsInFlight *prometheus.GaugeVec
	notFound    *prometheus.CounterVec
}

// NewMetricsCollector registers the repository instruments. A nil
// registry means the default Prometheus registry.
func NewMetricsCollector(registry prometheus.Registerer) *MetricsCollector {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &MetricsCollector{
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repository_operation_duration_seconds",
				Help:    "Repository operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"entity", "operation", "status"},
		),
		opsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "repository_operations_in_flight",
				Help: "Repository operations currently executing",
			},
			[]string{"entity"},
		),
		notFound: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_not_found_total",
				Help: "Total identifier lookups that matched nothing",
			},
			[]string{"entity", "operation"},
		),
	}
}

func (m *MetricsCollector) observe(entity, op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
		m.notFound.WithLabelValues(entity, op).Inc()
	case err != nil:
		status = "error"
	}
	m.opDuration.WithLabelValues(entity, op, status).Observe(time.Since(start).Seconds())
}

// InstrumentedRepository records a Prometheus histogram sample and an
// OpenTelemetry span per operation, then delegates.
type InstrumentedRepository[T any, ID comparable] struct {
	base    Repository[T, ID]
	metrics *MetricsCollector
	tracer  trace.Tracer
	entity  string
}

func NewInstrumentedRepository[T any, ID comparable](base Repository[T, ID], metrics *MetricsCollector) *InstrumentedRepository[T, ID] {
	return &InstrumentedRepository[T, ID]{
		base:    base,
		metrics: metrics,
		tracer:  otel.Tracer("stillsuit"),
		entity:  entityName[T](),
	}
}

// instrument opens a span and returns the closure that settles it.
func (r *InstrumentedRepository[T, ID]) instrument(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := r.tracer.Start(ctx, "repository."+op)
	start := time.Now()
	r.metrics.opsInFlight.WithLabelValues(r.entity).Inc()

	return ctx, func(err error) {
		r.metrics.opsInFlight.WithLabelValues(r.entity).Dec()
		r.metrics.observe(r.entity, op, start, err)
		if err != nil && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		span.End()
	}
}

func (r *InstrumentedRepository[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	ctx, done := r.instrument(ctx, "add")
	item, err := r.base.Add(ctx, data)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	ctx, done := r.instrument(ctx, "add_many")
	items, err := r.base.AddMany(ctx, data)
	done(err)
	return items, err
}

func (r *InstrumentedRepository[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	ctx, done := r.instrument(ctx, "count")
	n, err := r.base.Count(ctx, filters...)
	done(err)
	return n, err
}

func (r *InstrumentedRepository[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	ctx, done := r.instrument(ctx, "delete")
	item, err := r.base.Delete(ctx, id)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	ctx, done := r.instrument(ctx, "delete_many")
	items, err := r.base.DeleteMany(ctx, ids)
	done(err)
	return items, err
}

func (r *InstrumentedRepository[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	ctx, done := r.instrument(ctx, "exists")
	ok, err := r.base.Exists(ctx, matchers...)
	done(err)
	return ok, err
}

func (r *InstrumentedRepository[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	ctx, done := r.instrument(ctx, "get")
	item, err := r.base.Get(ctx, id, matchers...)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	ctx, done := r.instrument(ctx, "get_one")
	item, err := r.base.GetOne(ctx, matchers...)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	ctx, done := r.instrument(ctx, "get_one_or_none")
	item, err := r.base.GetOneOrNone(ctx, matchers...)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	ctx, done := r.instrument(ctx, "get_or_create")
	item, created, err := r.base.GetOrCreate(ctx, matchers...)
	done(err)
	return item, created, err
}

func (r *InstrumentedRepository[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	ctx, done := r.instrument(ctx, "update")
	item, err := r.base.Update(ctx, data)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	ctx, done := r.instrument(ctx, "update_many")
	items, err := r.base.UpdateMany(ctx, data)
	done(err)
	return items, err
}

func (r *InstrumentedRepository[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	ctx, done := r.instrument(ctx, "upsert")
	item, err := r.base.Upsert(ctx, data)
	done(err)
	return item, err
}

func (r *InstrumentedRepository[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	ctx, done := r.instrument(ctx, "list")
	items, err := r.base.List(ctx, filters...)
	done(err)
	return items, err
}

func (r *InstrumentedRepository[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	ctx, done := r.instrument(ctx, "list_and_count")
	items, total, err := r.base.ListAndCount(ctx, filters...)
	done(err)
	return items, total, err
}

var _ Repository[struct{ ID string }, string] = (*InstrumentedRepository[struct{ ID string }, string])(nil)
