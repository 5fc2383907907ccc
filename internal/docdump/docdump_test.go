package docdump

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/schema"
)

// scriptDB serves only TableScript; the writer never touches the rest.
type scriptDB struct {
	scripts map[string]string
}

func (d *scriptDB) Ping(context.Context) error { return nil }
func (d *scriptDB) Close()                     {}
func (d *scriptDB) Dialect() database.Dialect  { return database.DialectPostgres }
func (d *scriptDB) Query(context.Context, string, ...any) (database.Rows, error) {
	return nil, errs.New(errs.ErrKindQueryFailed, "not implemented")
}
func (d *scriptDB) QueryRow(context.Context, string, ...any) (database.Row, error) {
	return nil, errs.New(errs.ErrKindQueryFailed, "not implemented")
}
func (d *scriptDB) ListTables(context.Context) ([]string, error) { return nil, nil }
func (d *scriptDB) FetchColumns(context.Context, string) ([]database.RawColumn, error) {
	return nil, nil
}
func (d *scriptDB) FetchForeignKeys(context.Context, []string) (map[string][]database.RawForeignKey, error) {
	return nil, nil
}

func (d *scriptDB) TableScript(_ context.Context, table string) (string, error) {
	script, ok := d.scripts[table]
	if !ok {
		return "", errs.New(errs.ErrKindQueryFailed, "no script for "+table)
	}
	return script, nil
}

func usersTable() *schema.Table {
	t := schema.NewTable("users")
	t.AddColumn(&schema.Column{Name: "id", Ordinal: 1, Type: schema.TypeInt, Identity: true, PrimaryKey: true})
	t.AddColumn(&schema.Column{Name: "name", Ordinal: 2, Type: schema.TypeText, Nullable: true})
	t.AddColumn(&schema.Column{
		Name: "team_id", Ordinal: 3, Type: schema.TypeInt,
		ForeignKeys: []schema.ForeignKey{{
			Name: "fk_users_team", Table: "users", Column: "team_id",
			RefTable: "teams", RefColumn: "id", Enforced: true,
		}},
	})
	return t
}

func testWriter(t *testing.T, db database.DB) (*Writer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "schema")
	log := logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
	w := New(schema.NewService(db, log), log, dir)
	w.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return w, dir
}

func TestWriteTable(t *testing.T) {
	db := &scriptDB{scripts: map[string]string{
		"users": "CREATE TABLE users (\n  id serial PRIMARY KEY\n);\n",
	}}
	w, dir := testWriter(t, db)

	require.NoError(t, w.WriteTable(context.Background(), usersTable(), "User"))

	raw, err := os.ReadFile(filepath.Join(dir, "users.md"))
	require.NoError(t, err)
	doc := string(raw)

	assert.Contains(t, doc, "---\ntable: users\nclass: User\ngenerated: \"2024-05-01T12:00:00Z\"")
	assert.Contains(t, doc, "# users\n")
	assert.Contains(t, doc, "```sql\nCREATE TABLE users (\n  id serial PRIMARY KEY\n);\n```")
	assert.Contains(t, doc, "name: fk_users_team")
	assert.Contains(t, doc, "references: teams.id")

	// Mermaid fragment: column list plus one relationship edge.
	assert.Contains(t, doc, "erDiagram\n    users {\n")
	assert.Contains(t, doc, "int id PK")
	assert.Contains(t, doc, "int team_id FK")
	assert.Contains(t, doc, "teams ||--o{ users : team_id")
}

func TestWriteTableScriptFailure(t *testing.T) {
	w, dir := testWriter(t, &scriptDB{})

	err := w.WriteTable(context.Background(), usersTable(), "User")
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))

	_, statErr := os.Stat(filepath.Join(dir, "users.md"))
	assert.True(t, os.IsNotExist(statErr))
}
