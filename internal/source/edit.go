package source

import (
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/lofcz/minfold/internal/errs"
)

// AddProperty appends a new field with the given name, type, and optional
// tag literal. The field lands at the end of the generator-owned section:
// before the dynamic boundary when one exists, at the end otherwise.
func (c *ClassModel) AddProperty(name, goType, tagLiteral string) error {
	typeExpr, err := parseTypeExpr(goType)
	if err != nil {
		return err
	}

	field := &ast.Field{
		Names: []*ast.Ident{ast.NewIdent(name)},
		Type:  typeExpr,
	}
	if tagLiteral != "" {
		field.Tag = &ast.BasicLit{Kind: token.STRING, Value: tagLiteral}
	}

	at := len(c.strct.Fields.List)
	if c.boundary.IsValid() {
		for i, f := range c.strct.Fields.List {
			if f.Pos() > c.boundary {
				at = i
				break
			}
		}
	}
	list := c.strct.Fields.List
	c.strct.Fields.List = append(list[:at], append([]*ast.Field{field}, list[at:]...)...)

	c.Doc.dirty = true
	c.Reload()
	return nil
}

// RemoveProperty deletes the named field and any comments attached to it.
// Reports whether a field was removed.
func (c *ClassModel) RemoveProperty(name string) bool {
	for i, f := range c.strct.Fields.List {
		if len(f.Names) != 1 || f.Names[0].Name != name {
			continue
		}
		start := f.Pos()
		if f.Doc != nil {
			start = f.Doc.Pos()
		}
		c.Doc.stripCommentsIn(start, f.End())
		c.strct.Fields.List = append(c.strct.Fields.List[:i], c.strct.Fields.List[i+1:]...)
		c.Doc.dirty = true
		c.Reload()
		return true
	}
	return false
}

// SetPropertyType rewrites the declared type of the named field in place.
func (c *ClassModel) SetPropertyType(name, goType string) error {
	f, ok := c.findField(name)
	if !ok {
		return errs.New(errs.ErrKindNotFound, "no field "+name+" on "+c.Name)
	}
	typeExpr, err := parseTypeExpr(goType)
	if err != nil {
		return err
	}
	f.Type = typeExpr
	c.Doc.dirty = true
	c.Reload()
	return nil
}

// SetPropertyTags replaces the named field's full tag set. An empty set
// removes the tag literal entirely.
func (c *ClassModel) SetPropertyTags(name string, tags []Tag) error {
	f, ok := c.findField(name)
	if !ok {
		return errs.New(errs.ErrKindNotFound, "no field "+name+" on "+c.Name)
	}
	literal := FormatTags(tags)
	if literal == "" {
		f.Tag = nil
	} else {
		f.Tag = &ast.BasicLit{Kind: token.STRING, Value: literal}
	}
	c.Doc.dirty = true
	c.Reload()
	return nil
}

// SetEmbeddedBase rewrites the struct's (single) embedded field to the given
// type expression. Used to normalize DAO wrappers to their base-with-generic
// pattern. Creates the embedded field as the first member when missing.
func (c *ClassModel) SetEmbeddedBase(goType string) error {
	typeExpr, err := parseTypeExpr(goType)
	if err != nil {
		return err
	}
	for _, f := range c.strct.Fields.List {
		if len(f.Names) == 0 {
			if c.Doc.exprString(f.Type) == goType {
				return nil
			}
			f.Type = typeExpr
			c.Doc.dirty = true
			c.Reload()
			return nil
		}
	}
	field := &ast.Field{Type: typeExpr}
	c.strct.Fields.List = append([]*ast.Field{field}, c.strct.Fields.List...)
	c.Doc.dirty = true
	c.Reload()
	return nil
}

func (c *ClassModel) findField(name string) (*ast.Field, bool) {
	for _, f := range c.strct.Fields.List {
		if len(f.Names) == 1 && f.Names[0].Name == name {
			return f, true
		}
	}
	return nil, false
}

// parseTypeExpr parses a type expression such as "*time.Time" or
// "Crud[models.User]" into a position-free AST node.
func parseTypeExpr(goType string) (ast.Expr, error) {
	expr, err := parser.ParseExpr(goType)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParseFailed, "invalid type expression "+goType, err)
	}
	clearPositions(expr)
	return expr, nil
}
