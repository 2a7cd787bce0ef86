package stillsuit

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ColumnType represents SQL column data types.
type ColumnType string

const (
	ColumnTypeInteger   ColumnType = "INTEGER"
	ColumnTypeBigInt    ColumnType = "BIGINT"
	ColumnTypeText      ColumnType = "TEXT"
	ColumnTypeBoolean   ColumnType = "BOOLEAN"
	ColumnTypeTimestamp ColumnType = "TIMESTAMPTZ"
	ColumnTypeJSON      ColumnType = "JSONB"
	ColumnTypeFloat     ColumnType = "FLOAT8"
)

// ColumnDef defines a table column.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	Default    string
}

// IndexDef defines a table index.
type IndexDef struct {
	Name    string
	Columns []string
	Unique  bool
}

// TableDef defines a table schema, mainly for tests and development.
type TableDef struct {
	Name    string
	Columns []ColumnDef
	Indexes []IndexDef
}

// InferTableDef derives a table definition from T's `db` tags. The
// column matching idAttribute becomes the primary key.
func InferTableDef[T any](tableName, idAttribute string) (*TableDef, error) {
	sch, err := schemaOf[T]()
	if err != nil {
		return nil, err
	}
	if idAttribute == "" {
		idAttribute = DefaultIDAttribute
	}
	if !sch.has(idAttribute) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, idAttribute)
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	def := &TableDef{Name: tableName}
	for _, col := range sch.columns {
		field := typ.Field(sch.index[col])
		cd := ColumnDef{
			Name:       col,
			Type:       inferColumnType(field.Type),
			PrimaryKey: col == idAttribute,
			NotNull:    field.Tag.Get("nullable") != "true",
			Unique:     field.Tag.Get("unique") == "true",
			Default:    field.Tag.Get("default"),
		}
		def.Columns = append(def.Columns, cd)
	}
	return def, nil
}

func inferColumnType(t reflect.Type) ColumnType {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int32:
		return ColumnTypeInteger
	case reflect.Int64:
		return ColumnTypeBigInt
	case reflect.String:
		return ColumnTypeText
	case reflect.Bool:
		return ColumnTypeBoolean
	case reflect.Float32, reflect.Float64:
		return ColumnTypeFloat
	case reflect.Map, reflect.Slice:
		return ColumnTypeJSON
	default:
		if t.String() == "time.Time" {
			return ColumnTypeTimestamp
		}
		return ColumnTypeText
	}
}

// GenerateCreateTableSQL renders CREATE TABLE IF NOT EXISTS DDL.
func GenerateCreateTableSQL(def *TableDef) string {
	parts := make([]string, 0, len(def.Columns))
	for _, col := range def.Columns {
		c := fmt.Sprintf("%s %s", quoteIdentifier(col.Name), col.Type)
		if col.PrimaryKey {
			c += " PRIMARY KEY"
		}
		if col.NotNull && !col.PrimaryKey {
			c += " NOT NULL"
		}
		if col.Unique && !col.PrimaryKey {
			c += " UNIQUE"
		}
		if col.Default != "" {
			c += " DEFAULT " + col.Default
		}
		parts = append(parts, c)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteIdentifier(def.Name),
		strings.Join(parts, ",\n  "),
	)
}

// GenerateDropTableSQL renders DROP TABLE DDL.
func GenerateDropTableSQL(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", quoteIdentifier(tableName))
}

// GenerateCreateIndexSQL renders CREATE INDEX DDL.
func GenerateCreateIndexSQL(tableName string, idx *IndexDef) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique,
		quoteIdentifier(idx.Name),
		quoteIdentifier(tableName),
		strings.Join(cols, ", "),
	)
}

// EnsureTable creates T's table and indexes when missing.
func EnsureTable[T any](ctx context.Context, pool *pgxpool.Pool, tableName, idAttribute string) error {
	def, err := InferTableDef[T](tableName, idAttribute)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, GenerateCreateTableSQL(def)); err != nil {
		return err
	}
	for i := range def.Indexes {
		if _, err := pool.Exec(ctx, GenerateCreateIndexSQL(def.Name, &def.Indexes[i])); err != nil {
			return err
		}
	}
	return nil
}

// DropTable removes a table, mainly for test teardown.
func DropTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	_, err := pool.Exec(ctx, GenerateDropTableSQL(tableName))
	return err
}
