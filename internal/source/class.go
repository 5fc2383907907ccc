package source

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"

	"github.com/lofcz/minfold/internal/schema"
)

// Struct tag keys and markers the generator owns.
const (
	// TagFK is the struct tag key holding reference annotations.
	TagFK = "fk"

	// TagMinfold is the generator's own tag key; the value "-" excludes the
	// field from reconciliation (user opt-out).
	TagMinfold = "minfold"

	// NotMapped is the TagMinfold value marking an excluded field.
	NotMapped = "-"

	// BoundaryMarker is the comment marking the start of the manual/dynamic
	// section of a struct. Fields declared after it are never touched.
	BoundaryMarker = "minfold:dynamic"

	// NoEnforce is the fk tag suffix recording a not-enforced constraint.
	NoEnforce = "noenforce"
)

// PropertyDecl is the engine's view of one struct field.
type PropertyDecl struct {
	Name     string
	GoType   string         // declared type as written
	Type     schema.SqlType // TypeUnknown for identifier types
	Nullable bool
	// Identifier is true when the declared type is an opaque named type
	// (enum modeling) rather than a relational scalar.
	Identifier bool
	// Mapped is false when the field opted out via the minfold:"-" tag,
	// sits after the dynamic boundary, or is not generator-ownable
	// (unexported, embedded, multi-name).
	Mapped bool
	Tags   []Tag

	field *ast.Field
}

// FKTags returns the field's reference annotations, in declaration order.
func (p *PropertyDecl) FKTags() []string {
	return TagValues(p.Tags, TagFK)
}

// ClassModel is the source-side model of one generated class: the struct
// declaration plus the document that owns it.
type ClassModel struct {
	Name       string
	Doc        *Document
	Properties []*PropertyDecl

	strct    *ast.StructType
	boundary token.Pos // position of the dynamic marker, or NoPos
}

// FindClass locates the exported struct type with the given name.
func (d *Document) FindClass(name string) (*ClassModel, bool) {
	for _, cm := range d.Classes() {
		if cm.Name == name {
			return cm, true
		}
	}
	return nil, false
}

// Classes returns a model for every struct type declared in the file.
func (d *Document) Classes() []*ClassModel {
	var out []*ClassModel
	for _, decl := range d.file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			cm := &ClassModel{Name: ts.Name.Name, Doc: d, strct: st}
			cm.boundary = d.findBoundary(st)
			cm.Reload()
			out = append(out, cm)
		}
	}
	return out
}

// findBoundary locates the dynamic marker comment inside the struct body.
func (d *Document) findBoundary(st *ast.StructType) token.Pos {
	for _, cg := range d.file.Comments {
		if cg.Pos() <= st.Pos() || cg.End() >= st.End() {
			continue
		}
		for _, c := range cg.List {
			if strings.Contains(c.Text, BoundaryMarker) {
				return cg.Pos()
			}
		}
	}
	return token.NoPos
}

// Reload recomputes the property list from the underlying struct. Call it
// after structural edits to keep the model and the tree in step.
func (c *ClassModel) Reload() {
	c.Properties = c.Properties[:0]
	for _, field := range c.strct.Fields.List {
		c.Properties = append(c.Properties, c.describe(field)...)
	}
}

// describe turns one ast.Field into property declarations.
func (c *ClassModel) describe(field *ast.Field) []*PropertyDecl {
	goType := c.Doc.exprString(field.Type)

	var tags []Tag
	if field.Tag != nil {
		tags = ParseTags(field.Tag.Value)
	}

	// Embedded fields are structural (e.g. the DAO base) and never mapped.
	if len(field.Names) == 0 {
		return []*PropertyDecl{{
			Name:   goType,
			GoType: goType,
			Mapped: false,
			Tags:   tags,
			field:  field,
		}}
	}

	var out []*PropertyDecl
	for _, ident := range field.Names {
		p := &PropertyDecl{
			Name:   ident.Name,
			GoType: goType,
			Tags:   tags,
			field:  field,
		}

		sqlType, nullable, relational := schema.SqlTypeFromGo(goType)
		p.Type = sqlType
		p.Nullable = nullable
		p.Identifier = !relational && isIdentifierType(goType)

		p.Mapped = ast.IsExported(ident.Name) &&
			len(field.Names) == 1 &&
			(relational || p.Identifier)
		if v, ok := TagValue(tags, TagMinfold); ok && v == NotMapped {
			p.Mapped = false
		}
		if c.boundary.IsValid() && field.Pos() > c.boundary {
			p.Mapped = false
		}
		out = append(out, p)
	}
	return out
}

// isIdentifierType reports whether goType is a plain named type the user may
// use for enum modeling: a bare identifier (optionally pointered) that is
// not a builtin.
func isIdentifierType(goType string) bool {
	goType = strings.TrimPrefix(goType, "*")
	if goType == "" {
		return false
	}
	for _, r := range goType {
		if !(r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Property looks a property up by name. Lookups routinely cross the
// column/property divide, so the match folds case and underscores: asking
// for "team_id" finds TeamId.
func (c *ClassModel) Property(name string) (*PropertyDecl, bool) {
	for _, p := range c.Properties {
		if NamesEqual(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// exprString renders a type expression back to text.
func (d *Document) exprString(expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, d.fset, expr); err != nil {
		return ""
	}
	return buf.String()
}
