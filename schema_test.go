package stillsuit

import (
	"errors"
	"strings"
	"testing"

	"github.com/seb7887/stillsuit/internal/testutils"
)

func TestInferTableDef(t *testing.T) {
	def, err := InferTableDef[testutils.Account]("accounts", "")
	if err != nil {
		t.Fatalf("InferTableDef failed: %v", err)
	}
	if def.Name != "accounts" {
		t.Errorf("name = %q", def.Name)
	}
	if len(def.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(def.Columns))
	}

	byName := make(map[string]ColumnDef, len(def.Columns))
	for _, c := range def.Columns {
		byName[c.Name] = c
	}
	if !byName["id"].PrimaryKey || byName["id"].Type != ColumnTypeText {
		t.Errorf("id column = %+v", byName["id"])
	}
	if byName["balance"].Type != ColumnTypeBigInt {
		t.Errorf("balance column = %+v", byName["balance"])
	}
	if byName["created_at"].Type != ColumnTypeTimestamp {
		t.Errorf("created_at column = %+v", byName["created_at"])
	}
	if byName["owner"].PrimaryKey || !byName["owner"].NotNull {
		t.Errorf("owner column = %+v", byName["owner"])
	}
}

func TestInferTableDef_UnknownIDAttribute(t *testing.T) {
	if _, err := InferTableDef[testutils.Account]("accounts", "ghost"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestGenerateCreateTableSQL(t *testing.T) {
	def, err := InferTableDef[testutils.Account]("accounts", "id")
	if err != nil {
		t.Fatalf("InferTableDef failed: %v", err)
	}
	sql := GenerateCreateTableSQL(def)

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "accounts"`,
		`"id" TEXT PRIMARY KEY`,
		`"owner" TEXT NOT NULL`,
		`"balance" BIGINT NOT NULL`,
		`"created_at" TIMESTAMPTZ NOT NULL`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("DDL missing %q:\n%s", want, sql)
		}
	}
}

func TestGenerateDropTableSQL(t *testing.T) {
	want := `DROP TABLE IF EXISTS "accounts" CASCADE`
	if got := GenerateDropTableSQL("accounts"); got != want {
		t.Errorf("DDL = %q, want %q", got, want)
	}
}

func TestGenerateCreateIndexSQL(t *testing.T) {
	idx := &IndexDef{Name: "accounts_owner_idx", Columns: []string{"owner"}}
	want := `CREATE INDEX IF NOT EXISTS "accounts_owner_idx" ON "accounts" ("owner")`
	if got := GenerateCreateIndexSQL("accounts", idx); got != want {
		t.Errorf("DDL = %q, want %q", got, want)
	}

	idx.Unique = true
	if got := GenerateCreateIndexSQL("accounts", idx); !strings.HasPrefix(got, "CREATE UNIQUE INDEX") {
		t.Errorf("DDL = %q, want a unique index", got)
	}
}

func TestInferColumnType_PointerAndJSON(t *testing.T) {
	def, err := InferTableDef[testutils.Document]("documents", "id")
	if err != nil {
		t.Fatalf("InferTableDef failed: %v", err)
	}
	byName := make(map[string]ColumnDef, len(def.Columns))
	for _, c := range def.Columns {
		byName[c.Name] = c
	}
	if byName["deleted"].Type != ColumnTypeBoolean {
		t.Errorf("deleted column = %+v", byName["deleted"])
	}
	// Pointer fields resolve to their element type.
	if byName["deleted_at"].Type != ColumnTypeTimestamp {
		t.Errorf("deleted_at column = %+v", byName["deleted_at"])
	}
}
