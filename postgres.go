package stillsuit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is the subset of pgx satisfied by both *pgxpool.Pool and
// pgx.Tx, so every operation can transparently join a transaction found
// in the context.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConnector is the pgx-backed implementation of Repository.
// Column lists derive from the entity's `db` struct tags; the identity
// attribute must name one of those columns.
//
// Upsert is a single INSERT .. ON CONFLICT DO UPDATE statement and
// therefore atomic. GetOrCreate runs SELECT-then-INSERT inside one
// transaction and retries the SELECT once when the insert loses a
// unique-constraint race.
type PostgresConnector[T any, ID comparable] struct {
	pool     *pgxpool.Pool
	table    string
	identity Identity[T, ID]
	genID    IDGenerator

	sch   *fieldSchema
	name  string
	idCol string
}

// PostgresOption configures a PostgresConnector.
type PostgresOption[T any, ID comparable] func(*PostgresConnector[T, ID])

// WithPostgresIDGenerator fills blank string ids before inserts.
func WithPostgresIDGenerator[T any, ID comparable](gen IDGenerator) PostgresOption[T, ID] {
	return func(r *PostgresConnector[T, ID]) { r.genID = gen }
}

// NewPostgresPool opens a pgx connection pool for the given DSN.
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

func NewPostgresConnector[T any, ID comparable](pool *pgxpool.Pool, table string, identity Identity[T, ID], opts ...PostgresOption[T, ID]) (*PostgresConnector[T, ID], error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if identity.Get == nil || identity.Set == nil {
		return nil, fmt.Errorf("identity accessors cannot be nil")
	}
	if err := sanitizeIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	sch, err := schemaOf[T]()
	if err != nil {
		return nil, err
	}
	for _, col := range sch.columns {
		if err := sanitizeIdentifier(col); err != nil {
			return nil, fmt.Errorf("invalid column name %q: %w", col, err)
		}
	}
	idCol := identity.attribute()
	if !sch.has(idCol) {
		return nil, fmt.Errorf("id attribute %q is not a db-tagged field", idCol)
	}

	r := &PostgresConnector[T, ID]{
		pool:     pool,
		table:    table,
		identity: identity,
		sch:      sch,
		name:     entityName[T](),
		idCol:    idCol,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func sanitizeIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return fmt.Errorf("invalid character in identifier: %c", r)
		}
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

func joinQuotedColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}
	return strings.Join(quoted, ", ")
}

func buildPlaceholders(from, n int) string {
	placeholders := make([]string, n)
	for i := 0; i < n; i++ {
		placeholders[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(placeholders, ", ")
}

// db returns the transaction found in ctx, or the pool.
func (r *PostgresConnector[T, ID]) db(ctx context.Context) pgxQuerier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return r.pool
}

// withTx runs fn inside the ambient transaction when one is present,
// otherwise inside a new one that commits iff fn returns nil.
func (r *PostgresConnector[T, ID]) withTx(ctx context.Context, fn func(q pgxQuerier) error) error {
	if tx, ok := txFrom(ctx); ok {
		return fn(tx)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// values returns item's column values in schema column order.
func (r *PostgresConnector[T, ID]) values(item *T) []any {
	v := reflect.ValueOf(item).Elem()
	out := make([]any, len(r.sch.columns))
	for i, col := range r.sch.columns {
		out[i] = v.Field(r.sch.index[col]).Interface()
	}
	return out
}

// scanDests returns addressable scan targets in schema column order.
func (r *PostgresConnector[T, ID]) scanDests(ptr *T) []any {
	v := reflect.ValueOf(ptr).Elem()
	out := make([]any, len(r.sch.columns))
	for i, col := range r.sch.columns {
		out[i] = v.Field(r.sch.index[col]).Addr().Interface()
	}
	return out
}

func (r *PostgresConnector[T, ID]) scanRow(row pgx.Row) (*T, error) {
	var item T
	if err := row.Scan(r.scanDests(&item)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *PostgresConnector[T, ID]) scanRows(rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		var item T
		if err := rows.Scan(r.scanDests(&item)...); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SelectQuery is an incrementally-built SELECT over the connector's
// table. It is the "collection" the synchronous filter hook operates on.
type SelectQuery struct {
	table    string
	columns  []string
	selected string // overrides the column list, e.g. count(*)
	where    []string
	args     []any
	orderBy  string
	limit    *int
	offset   *int
}

// NewSelect starts a SELECT over all entity columns, ordered by the id
// column so pagination is stable.
func (r *PostgresConnector[T, ID]) NewSelect() *SelectQuery {
	return &SelectQuery{
		table:   r.table,
		columns: r.sch.columns,
		orderBy: r.idCol,
	}
}

func (q *SelectQuery) addWhere(clause string, args ...any) {
	q.args = append(q.args, args...)
	q.where = append(q.where, clause)
}

// SQL renders the query and its positional arguments.
func (q *SelectQuery) SQL() (string, []any) {
	cols := q.selected
	if cols == "" {
		cols = joinQuotedColumns(q.columns)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quoteIdentifier(q.table))
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(q.where, " AND "))
	}
	if q.selected == "" && q.orderBy != "" {
		fmt.Fprintf(&b, " ORDER BY %s", quoteIdentifier(q.orderBy))
	}
	if q.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.limit)
	}
	if q.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.offset)
	}
	return b.String(), q.args
}

// FilterQuery is the synchronous collection-filtering hook: it narrows a
// SelectQuery by equality matchers with AND semantics. A matcher naming
// a field that T does not carry returns ErrUnknownField.
func (r *PostgresConnector[T, ID]) FilterQuery(q *SelectQuery, matchers ...Where) (*SelectQuery, error) {
	for _, m := range matchers {
		if !r.sch.has(m.Field) {
			return nil, opError(r.name, "filter_collection", fmt.Errorf("%w: %q", ErrUnknownField, m.Field))
		}
		q.addWhere(fmt.Sprintf("%s = $%d", quoteIdentifier(m.Field), len(q.args)+1), m.Value)
	}
	return q, nil
}

// applyFilters translates the filter union into WHERE/LIMIT/OFFSET.
func (r *PostgresConnector[T, ID]) applyFilters(q *SelectQuery, filters []Filter) error {
	for _, f := range filters {
		switch f := f.(type) {
		case Where:
			if _, err := r.FilterQuery(q, f); err != nil {
				return err
			}
		case InSet:
			if !r.sch.has(f.Field) {
				return fmt.Errorf("%w: %q", ErrUnknownField, f.Field)
			}
			q.addWhere(fmt.Sprintf("%s = ANY($%d)", quoteIdentifier(f.Field), len(q.args)+1), f.Values)
		case BeforeAfter:
			if !r.sch.has(f.Field) {
				return fmt.Errorf("%w: %q", ErrUnknownField, f.Field)
			}
			if f.Before != nil {
				q.addWhere(fmt.Sprintf("%s < $%d", quoteIdentifier(f.Field), len(q.args)+1), *f.Before)
			}
			if f.After != nil {
				q.addWhere(fmt.Sprintf("%s > $%d", quoteIdentifier(f.Field), len(q.args)+1), *f.After)
			}
		case LimitOffset:
			limit, offset := f.Limit, f.Offset
			if limit > 0 {
				q.limit = &limit
			}
			if offset > 0 {
				q.offset = &offset
			}
		default:
			return fmt.Errorf("%w: filter %T", ErrUnsupportedOperation, f)
		}
	}
	return nil
}

func (r *PostgresConnector[T, ID]) insertSQL() string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdentifier(r.table),
		joinQuotedColumns(r.sch.columns),
		buildPlaceholders(1, len(r.sch.columns)),
		joinQuotedColumns(r.sch.columns),
	)
}

func (r *PostgresConnector[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	fillID(r.identity, data, r.genID)
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, r.insertSQL(), r.values(data)...))
	return item, opError(r.name, "add", err)
}

func (r *PostgresConnector[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	var out []T
	err := r.withTx(ctx, func(q pgxQuerier) error {
		sql := r.insertSQL()
		for i := range data {
			fillID(r.identity, &data[i], r.genID)
			item, err := r.scanRow(q.QueryRow(ctx, sql, r.values(&data[i])...))
			if err != nil {
				return err
			}
			out = append(out, *item)
		}
		return nil
	})
	if err != nil {
		return nil, opError(r.name, "add_many", err)
	}
	return out, nil
}

func (r *PostgresConnector[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	q := r.NewSelect()
	q.addWhere(fmt.Sprintf("%s = $1", quoteIdentifier(r.idCol)), id)
	if _, err := r.FilterQuery(q, matchers...); err != nil {
		return nil, err
	}
	one := 1
	q.limit = &one
	sql, args := q.SQL()
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, sql, args...))
	return item, opError(r.name, "get", err)
}

func (r *PostgresConnector[T, ID]) getOne(ctx context.Context, op string, matchers []Where) (*T, error) {
	q := r.NewSelect()
	if _, err := r.FilterQuery(q, matchers...); err != nil {
		return nil, err
	}
	one := 1
	q.limit = &one
	sql, args := q.SQL()
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, sql, args...))
	return item, opError(r.name, op, err)
}

func (r *PostgresConnector[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	return r.getOne(ctx, "get_one", matchers)
}

func (r *PostgresConnector[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	item, err := r.getOne(ctx, "get_one_or_none", matchers)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return item, err
}

func (r *PostgresConnector[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	q := r.NewSelect()
	if _, err := r.FilterQuery(q, matchers...); err != nil {
		return false, err
	}
	q.selected = "1"
	inner, args := q.SQL()
	var exists bool
	err := r.db(ctx).QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (%s)", inner), args...).Scan(&exists)
	return exists, opError(r.name, "exists", err)
}

func (r *PostgresConnector[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	predicates, _ := splitFilters(filters)
	n, err := r.count(ctx, predicates)
	return n, opError(r.name, "count", err)
}

func (r *PostgresConnector[T, ID]) count(ctx context.Context, predicates []Filter) (int64, error) {
	q := r.NewSelect()
	if err := r.applyFilters(q, predicates); err != nil {
		return 0, err
	}
	q.selected = "count(*)"
	sql, args := q.SQL()
	var n int64
	err := r.db(ctx).QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

func (r *PostgresConnector[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	q := r.NewSelect()
	if err := r.applyFilters(q, filters); err != nil {
		return nil, opError(r.name, "list", err)
	}
	sql, args := q.SQL()
	rows, err := r.db(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, opError(r.name, "list", err)
	}
	out, err := r.scanRows(rows)
	return out, opError(r.name, "list", err)
}

func (r *PostgresConnector[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	predicates, _ := splitFilters(filters)
	total, err := r.count(ctx, predicates)
	if err != nil {
		return nil, 0, opError(r.name, "list_and_count", err)
	}
	items, err := r.List(ctx, filters...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PostgresConnector[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	var (
		item    *T
		created bool
	)
	err := r.withTx(ctx, func(q pgxQuerier) error {
		sel := r.NewSelect()
		if _, err := r.FilterQuery(sel, matchers...); err != nil {
			return err
		}
		one := 1
		sel.limit = &one
		sql, args := sel.SQL()

		found, err := r.scanRow(q.QueryRow(ctx, sql, args...))
		if err == nil {
			item = found
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		fresh := new(T)
		for _, m := range matchers {
			if err := r.sch.setValue(fresh, m.Field, m.Value); err != nil {
				return err
			}
		}
		fillID(r.identity, fresh, r.genID)

		// DO NOTHING instead of erroring on a unique violation: an error
		// would poison the transaction, while a zero-row result lets us
		// re-read whatever the concurrent winner inserted.
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING RETURNING %s",
			quoteIdentifier(r.table),
			joinQuotedColumns(r.sch.columns),
			buildPlaceholders(1, len(r.sch.columns)),
			joinQuotedColumns(r.sch.columns),
		)
		inserted, err := r.scanRow(q.QueryRow(ctx, insert, r.values(fresh)...))
		if errors.Is(err, ErrNotFound) {
			item, err = r.scanRow(q.QueryRow(ctx, sql, args...))
			return err
		}
		if err != nil {
			return err
		}
		item, created = inserted, true
		return nil
	})
	if err != nil {
		return nil, false, opError(r.name, "get_or_create", err)
	}
	return item, created, nil
}

// updateSQL renders "UPDATE .. SET <non-id cols> WHERE id = $n RETURNING ..".
func (r *PostgresConnector[T, ID]) updateSQL() (string, []string) {
	setCols := make([]string, 0, len(r.sch.columns)-1)
	clauses := make([]string, 0, len(r.sch.columns)-1)
	n := 1
	for _, col := range r.sch.columns {
		if col == r.idCol {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", quoteIdentifier(col), n))
		setCols = append(setCols, col)
		n++
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		quoteIdentifier(r.table),
		strings.Join(clauses, ", "),
		quoteIdentifier(r.idCol),
		n,
		joinQuotedColumns(r.sch.columns),
	)
	return sql, setCols
}

func (r *PostgresConnector[T, ID]) updateArgs(data *T, setCols []string) []any {
	args := make([]any, 0, len(setCols)+1)
	v := reflect.ValueOf(data).Elem()
	for _, col := range setCols {
		args = append(args, v.Field(r.sch.index[col]).Interface())
	}
	return append(args, r.identity.ID(data))
}

func (r *PostgresConnector[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	sql, setCols := r.updateSQL()
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, sql, r.updateArgs(data, setCols)...))
	return item, opError(r.name, "update", err)
}

func (r *PostgresConnector[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	var out []T
	err := r.withTx(ctx, func(q pgxQuerier) error {
		sql, setCols := r.updateSQL()
		for i := range data {
			item, err := r.scanRow(q.QueryRow(ctx, sql, r.updateArgs(&data[i], setCols)...))
			if err != nil {
				return err
			}
			out = append(out, *item)
		}
		return nil
	})
	if err != nil {
		return nil, opError(r.name, "update_many", err)
	}
	return out, nil
}

func (r *PostgresConnector[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	fillID(r.identity, data, r.genID)

	setClauses := make([]string, 0, len(r.sch.columns)-1)
	for _, col := range r.sch.columns {
		if col == r.idCol {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdentifier(col), quoteIdentifier(col)))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
		quoteIdentifier(r.table),
		joinQuotedColumns(r.sch.columns),
		buildPlaceholders(1, len(r.sch.columns)),
		quoteIdentifier(r.idCol),
		strings.Join(setClauses, ", "),
		joinQuotedColumns(r.sch.columns),
	)
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, sql, r.values(data)...))
	return item, opError(r.name, "upsert", err)
}

func (r *PostgresConnector[T, ID]) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1 RETURNING %s",
		quoteIdentifier(r.table),
		quoteIdentifier(r.idCol),
		joinQuotedColumns(r.sch.columns),
	)
}

func (r *PostgresConnector[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	item, err := r.scanRow(r.db(ctx).QueryRow(ctx, r.deleteSQL(), id))
	return item, opError(r.name, "delete", err)
}

func (r *PostgresConnector[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	var out []T
	err := r.withTx(ctx, func(q pgxQuerier) error {
		sql := r.deleteSQL()
		for _, id := range ids {
			item, err := r.scanRow(q.QueryRow(ctx, sql, id))
			if errors.Is(err, ErrNotFound) {
				continue // best-effort
			}
			if err != nil {
				return err
			}
			out = append(out, *item)
		}
		return nil
	})
	if err != nil {
		return nil, opError(r.name, "delete_many", err)
	}
	return out, nil
}

// WithTx runs fn against this repository inside a single transaction.
func (r *PostgresConnector[T, ID]) WithTx(ctx context.Context, fn TxFunc[T, ID]) error {
	if _, ok := txFrom(ctx); ok {
		return fn(r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(txRepo[T, ID]{r, tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// txRepo pins every call to one transaction by injecting it into the
// context ahead of delegation.
type txRepo[T any, ID comparable] struct {
	r  *PostgresConnector[T, ID]
	tx pgx.Tx
}

func (t txRepo[T, ID]) Add(ctx context.Context, data *T) (*T, error) {
	return t.r.Add(injectTx(ctx, t.tx), data)
}

func (t txRepo[T, ID]) AddMany(ctx context.Context, data []T) ([]T, error) {
	return t.r.AddMany(injectTx(ctx, t.tx), data)
}

func (t txRepo[T, ID]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	return t.r.Count(injectTx(ctx, t.tx), filters...)
}

func (t txRepo[T, ID]) Delete(ctx context.Context, id ID) (*T, error) {
	return t.r.Delete(injectTx(ctx, t.tx), id)
}

func (t txRepo[T, ID]) DeleteMany(ctx context.Context, ids []ID) ([]T, error) {
	return t.r.DeleteMany(injectTx(ctx, t.tx), ids)
}

func (t txRepo[T, ID]) Exists(ctx context.Context, matchers ...Where) (bool, error) {
	return t.r.Exists(injectTx(ctx, t.tx), matchers...)
}

func (t txRepo[T, ID]) Get(ctx context.Context, id ID, matchers ...Where) (*T, error) {
	return t.r.Get(injectTx(ctx, t.tx), id, matchers...)
}

func (t txRepo[T, ID]) GetOne(ctx context.Context, matchers ...Where) (*T, error) {
	return t.r.GetOne(injectTx(ctx, t.tx), matchers...)
}

func (t txRepo[T, ID]) GetOneOrNone(ctx context.Context, matchers ...Where) (*T, error) {
	return t.r.GetOneOrNone(injectTx(ctx, t.tx), matchers...)
}

func (t txRepo[T, ID]) GetOrCreate(ctx context.Context, matchers ...Where) (*T, bool, error) {
	return t.r.GetOrCreate(injectTx(ctx, t.tx), matchers...)
}

func (t txRepo[T, ID]) Update(ctx context.Context, data *T) (*T, error) {
	return t.r.Update(injectTx(ctx, t.tx), data)
}

func (t txRepo[T, ID]) UpdateMany(ctx context.Context, data []T) ([]T, error) {
	return t.r.UpdateMany(injectTx(ctx, t.tx), data)
}

func (t txRepo[T, ID]) Upsert(ctx context.Context, data *T) (*T, error) {
	return t.r.Upsert(injectTx(ctx, t.tx), data)
}

func (t txRepo[T, ID]) List(ctx context.Context, filters ...Filter) ([]T, error) {
	return t.r.List(injectTx(ctx, t.tx), filters...)
}

func (t txRepo[T, ID]) ListAndCount(ctx context.Context, filters ...Filter) ([]T, int64, error) {
	return t.r.ListAndCount(injectTx(ctx, t.tx), filters...)
}

var (
	_ Repository[struct{ ID string }, string]    = (*PostgresConnector[struct{ ID string }, string])(nil)
	_ Transactional[struct{ ID string }, string] = (*PostgresConnector[struct{ ID string }, string])(nil)
	_ Repository[struct{ ID string }, string]    = txRepo[struct{ ID string }, string]{}
)
