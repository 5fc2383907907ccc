package reconcile

import (
	"bytes"
	"go/format"
	"sort"
	"text/template"

	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// GeneratedHeader marks files minfold owns. The sweep phase only ever
// deletes files carrying it; anything else in the tree is the user's.
const GeneratedHeader = "// Code generated by minfold; fields before the dynamic marker are reconciled."

// Marker block names used in the aggregate registry. Content between a
// begin/end pair is regenerated wholesale; everything outside is preserved
// byte for byte.
const (
	RegistryFieldsBlock = "fields"
	RegistryInitBlock   = "init"
)

var modelTemplate = template.Must(template.New("model").Parse(`{{.Header}}
package {{.Package}}
{{if .Imports}}
import (
{{- range .Imports}}
	"{{.}}"
{{- end}}
)
{{end}}
// {{.Class}} mirrors the {{.Table}} table.
type {{.Class}} struct {
{{- range .Columns}}
	{{.Name}} {{.GoType}}
{{- end}}

	// minfold:dynamic
}
{{if .EntityID}}
// EntityID returns the row identity.
func (m *{{.Class}}) EntityID() int64 {
	return int64(m.{{.Identity}})
}
{{end}}`))

var wrapperTemplate = template.Must(template.New("wrapper").Parse(`{{.Header}}
package {{.Package}}

import (
{{- if .GetById}}
	"context"

{{- end}}
	"{{.ModelsImport}}"
)

// {{.Wrapper}} is the data-access handle for the {{.Table}} table.
type {{.Wrapper}} struct {
	Crud[{{.ModelsPkg}}.{{.Class}}]
}
{{if .GetById}}
// GetById fetches the row whose identity column equals id.
func (d *{{.Wrapper}}) GetById(ctx context.Context, id int64) (*{{.ModelsPkg}}.{{.Class}}, error) {
	return d.ByIdentity(ctx, id)
}
{{end}}`))

var baseTemplate = template.Must(template.New("base").Parse(`{{.Header}}
package {{.Package}}

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// Crud is the access surface every generated wrapper embeds. T is the model
// struct; result columns are matched to exported fields by case-insensitive
// name, unmatched columns are ignored.
type Crud[T any] struct {
	DB       *sql.DB
	Table    string
	Identity string
}

// All returns every row of the table.
func (c Crud[T]) All(ctx context.Context) ([]T, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT * FROM "+c.Table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scanInto[T](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// ByIdentity returns the row whose identity column equals id, or nil when
// no such row exists.
func (c Crud[T]) ByIdentity(ctx context.Context, id int64) (*T, error) {
	if c.Identity == "" {
		return nil, fmt.Errorf("%s has no identity column", c.Table)
	}
	rows, err := c.DB.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", c.Table, c.Identity), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanInto[T](rows)
}

func scanInto[T any](rows *sql.Rows) (*T, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	item := new(T)
	v := reflect.ValueOf(item).Elem()
	t := v.Type()

	dest := make([]any, len(cols))
	for i, col := range cols {
		dest[i] = new(any)
		for j := 0; j < t.NumField(); j++ {
			if nameMatch(t.Field(j).Name, col) && v.Field(j).CanAddr() {
				dest[i] = v.Field(j).Addr().Interface()
				break
			}
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return item, nil
}

// nameMatch folds case and underscores so the team_id column binds TeamId.
func nameMatch(field, col string) bool {
	fold := func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", ""))
	}
	return fold(field) == fold(col)
}
`))

var registryTemplate = template.Must(template.New("registry").Parse(`{{.Header}}
package {{.Package}}

import "database/sql"

// Db aggregates one typed handle per reconciled table.
type Db struct {
	// minfold:begin fields
	// minfold:end fields
}

// NewDb wires every handle to the shared connection.
func NewDb(conn *sql.DB) *Db {
	db := &Db{}
	// minfold:begin init
	// minfold:end init
	return db
}
`))

// modelColumn is one rendered struct field of a synthesized model.
type modelColumn struct {
	Name   string
	GoType string
}

// RenderModel synthesizes a fresh model file for a table that has no class
// yet. The struct carries only the reconcilable fields and the dynamic
// marker; constructors and reference annotations are produced by the patch
// passes that follow synthesis.
func RenderModel(pkg, className string, table *schema.Table, uniformIdentity bool) ([]byte, error) {
	imports := map[string]bool{}
	var cols []modelColumn
	for _, col := range table.Ordered() {
		cols = append(cols, modelColumn{
			Name:   source.ToPascalCase(col.Name),
			GoType: col.Type.GoType(col.Nullable),
		})
		if imp := col.Type.GoTypeImport(); imp != "" {
			imports[imp] = true
		}
	}

	identity := table.IdentityColumn()
	data := struct {
		Header, Package, Class, Table, Identity string
		Columns                                 []modelColumn
		Imports                                 []string
		EntityID                                bool
	}{
		Header:  GeneratedHeader,
		Package: pkg,
		Class:   className,
		Table:   table.Name,
		Columns: cols,
		Imports: sortedKeys(imports),
	}
	if uniformIdentity && identity != nil && identity.Type.IsInteger() {
		data.EntityID = true
		data.Identity = source.ToPascalCase(identity.Name)
	}

	var buf bytes.Buffer
	if err := modelTemplate.Execute(&buf, data); err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "model template for "+table.Name, err)
	}
	return gofmt(buf.Bytes())
}

// RenderWrapper synthesizes a fresh data-access wrapper file.
func RenderWrapper(pkg, wrapperName, className, modelsImport, modelsPkg string, table *schema.Table, getById bool) ([]byte, error) {
	data := struct {
		Header, Package, Wrapper, Class, Table, ModelsImport, ModelsPkg string
		GetById                                                         bool
	}{
		Header:       GeneratedHeader,
		Package:      pkg,
		Wrapper:      wrapperName,
		Class:        className,
		Table:        table.Name,
		ModelsImport: modelsImport,
		ModelsPkg:    modelsPkg,
		GetById:      getById,
	}
	var buf bytes.Buffer
	if err := wrapperTemplate.Execute(&buf, data); err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "wrapper template for "+table.Name, err)
	}
	return gofmt(buf.Bytes())
}

// RenderBase synthesizes the shared Crud base file.
func RenderBase(pkg string) ([]byte, error) {
	data := struct{ Header, Package string }{Header: GeneratedHeader, Package: pkg}
	var buf bytes.Buffer
	if err := baseTemplate.Execute(&buf, data); err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "base template", err)
	}
	return gofmt(buf.Bytes())
}

// RenderRegistry synthesizes an empty registry skeleton; RebuildRegistry
// fills the marker blocks. Handles are wired through promoted Crud fields so
// the registry never needs the models import itself.
func RenderRegistry(pkg string) ([]byte, error) {
	data := struct{ Header, Package string }{Header: GeneratedHeader, Package: pkg}
	var buf bytes.Buffer
	if err := registryTemplate.Execute(&buf, data); err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "registry template", err)
	}
	return gofmt(buf.Bytes())
}

// gofmt keeps synthesized files indistinguishable from reconciled ones.
func gofmt(src []byte) ([]byte, error) {
	out, err := format.Source(src)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "synthesized source does not format", err)
	}
	return out, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
