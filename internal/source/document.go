// Package source is the structural view over generated Go source files. It
// parses a file into a mutable, comment-preserving tree, exposes the class
// model the reconciliation engine works on (struct fields, constructor
// functions, imports, struct tags), and renders the tree back to text.
//
// Edits are localized: members the engine does not own are carried through
// rendering untouched, in their original relative order.
package source

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"strconv"
	"strings"

	"github.com/lofcz/minfold/internal/errs"
)

// Document is the structural, mutable handle over one Go source file.
type Document struct {
	Path string

	fset  *token.FileSet
	file  *ast.File
	dirty bool
}

// Parse builds a Document from raw source. The path is recorded for error
// attribution and later Save calls.
func Parse(path string, src []byte) (*Document, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParseFailed, "failed to parse "+path, err)
	}
	return &Document{Path: path, fset: fset, file: file}, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindNotFound, "failed to read "+path, err)
	}
	return Parse(path, src)
}

// PackageName returns the file's package clause name.
func (d *Document) PackageName() string {
	return d.file.Name.Name
}

// Dirty reports whether any structural edit has been applied since parse.
// Clean documents are never re-rendered, so untouched files stay
// byte-for-byte identical on disk.
func (d *Document) Dirty() bool {
	return d.dirty
}

// MarkDirty forces a render on Save.
func (d *Document) MarkDirty() {
	d.dirty = true
}

// Render pretty-prints the tree back to gofmt-style source text.
func (d *Document) Render() ([]byte, error) {
	var buf bytes.Buffer
	cfg := printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}
	if err := cfg.Fprint(&buf, d.fset, d.file); err != nil {
		return nil, errs.Wrap(errs.ErrKindWriteFailed, "failed to render "+d.Path, err)
	}
	out, err := format.Source(buf.Bytes())
	if err != nil {
		// The printed tree should always reformat; if it does not, return
		// the unformatted render rather than losing the edit.
		return buf.Bytes(), nil
	}
	return out, nil
}

// Save renders the tree and writes it back to Path, but only when dirty.
func (d *Document) Save() error {
	if !d.dirty {
		return nil
	}
	out, err := d.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.Path, out, 0o644); err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "failed to write "+d.Path, err)
	}
	d.dirty = false
	return nil
}

// --- imports ---

// Imports returns the file's import paths.
func (d *Document) Imports() []string {
	var out []string
	for _, imp := range d.file.Imports {
		if p, err := strconv.Unquote(imp.Path.Value); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// HasImport reports whether the file already imports path.
func (d *Document) HasImport(path string) bool {
	for _, p := range d.Imports() {
		if p == path {
			return true
		}
	}
	return false
}

// EnsureImport adds an import for path unless it is already present.
// User-added imports are never duplicated or reordered.
func (d *Document) EnsureImport(path string) {
	if d.HasImport(path) {
		return
	}

	spec := &ast.ImportSpec{
		Path: &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(path)},
	}
	d.file.Imports = append(d.file.Imports, spec)

	// Reuse the first import declaration when one exists.
	for _, decl := range d.file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		gen.Specs = append(gen.Specs, spec)
		if !gen.Lparen.IsValid() && len(gen.Specs) > 1 {
			gen.Lparen = gen.TokPos
			gen.Rparen = gen.TokPos
		}
		d.dirty = true
		return
	}

	// No import block yet: insert one right after the package clause.
	gen := &ast.GenDecl{
		Tok:    token.IMPORT,
		Lparen: token.Pos(1),
		Specs:  []ast.Spec{spec},
		Rparen: token.Pos(1),
	}
	d.file.Decls = append([]ast.Decl{gen}, d.file.Decls...)
	d.dirty = true
}

// --- functions ---

// FindFunc returns the top-level function declaration with the given name.
func (d *Document) FindFunc(name string) (*ast.FuncDecl, bool) {
	for _, decl := range d.file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// FindMethod returns the method with the given receiver base type and name.
func (d *Document) FindMethod(recvType, name string) (*ast.FuncDecl, bool) {
	for _, decl := range d.file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Name.Name == name && recvBaseType(fn) == recvType {
			return fn, true
		}
	}
	return nil, false
}

// RemoveFunc deletes the named top-level function. Reports whether a
// declaration was removed.
func (d *Document) RemoveFunc(name string) bool {
	return d.removeDecl(name, "")
}

// RemoveMethod deletes the method with the given receiver base type and name.
func (d *Document) RemoveMethod(recvType, name string) bool {
	return d.removeDecl(name, recvType)
}

func (d *Document) removeDecl(name, recvType string) bool {
	for i, decl := range d.file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != name || recvBaseType(fn) != recvType {
			continue
		}
		d.stripCommentsIn(declStart(fn), fn.End())
		d.file.Decls = append(d.file.Decls[:i], d.file.Decls[i+1:]...)
		d.dirty = true
		return true
	}
	return false
}

// ReplaceOrAppendFunc parses src (a single function or method declaration)
// and swaps it in for the declaration with the same name and receiver base
// type, or appends it when absent. When inserting fresh, the declaration is
// placed after the declaration named after, or at the end if after is not
// found.
func (d *Document) ReplaceOrAppendFunc(src, after string) error {
	fn, err := parseFuncDecl(src)
	if err != nil {
		return err
	}
	recv := recvBaseType(fn)

	for i, decl := range d.file.Decls {
		existing, ok := decl.(*ast.FuncDecl)
		if !ok || existing.Name.Name != fn.Name.Name || recvBaseType(existing) != recv {
			continue
		}
		d.stripCommentsIn(declStart(existing), existing.End())
		d.file.Decls[i] = fn
		d.dirty = true
		return nil
	}

	at := len(d.file.Decls)
	if after != "" {
		for i, decl := range d.file.Decls {
			if named, ok := declName(decl); ok && named == after {
				at = i + 1
				break
			}
		}
	}
	d.file.Decls = append(d.file.Decls[:at], append([]ast.Decl{fn}, d.file.Decls[at:]...)...)
	d.dirty = true
	return nil
}

// FuncText renders a function declaration to canonical text. Used to
// compare an existing member against a freshly synthesized replacement so
// no-op regenerations do not dirty the file.
func (d *Document) FuncText(fn *ast.FuncDecl) string {
	var buf bytes.Buffer
	if err := format.Node(&buf, d.fset, fn); err != nil {
		return ""
	}
	return buf.String()
}

// parseFuncDecl parses a standalone function declaration from text.
// Routing new members through the parser guarantees well-formed nodes.
func parseFuncDecl(src string) (*ast.FuncDecl, error) {
	wrapped := "package main\n\n" + strings.TrimSpace(src) + "\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "synth.go", wrapped, 0)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindParseFailed, "synthesized function does not parse", err)
	}
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			clearPositions(fn)
			return fn, nil
		}
	}
	return nil, errs.New(errs.ErrKindParseFailed, "synthesized source holds no function")
}

// recvBaseType returns the receiver's base type name ("" for plain funcs).
func recvBaseType(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if idx, ok := expr.(*ast.IndexExpr); ok {
		expr = idx.X
	}
	if ident, ok := expr.(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

// declName extracts the declared name of a top-level decl, if it has one.
func declName(decl ast.Decl) (string, bool) {
	switch v := decl.(type) {
	case *ast.FuncDecl:
		return v.Name.Name, true
	case *ast.GenDecl:
		for _, spec := range v.Specs {
			if ts, ok := spec.(*ast.TypeSpec); ok {
				return ts.Name.Name, true
			}
		}
	}
	return "", false
}

// declStart returns where a function declaration really begins: its doc
// comment when it has one. fn.Pos() is the func keyword, which would leave
// the doc comment orphaned in file.Comments for the printer to interleave
// somewhere else.
func declStart(fn *ast.FuncDecl) token.Pos {
	if fn.Doc != nil {
		return fn.Doc.Pos()
	}
	return fn.Pos()
}

// stripCommentsIn drops comment groups positioned inside [from, to) so that
// comments attached to removed members do not float into unrelated code.
func (d *Document) stripCommentsIn(from, to token.Pos) {
	kept := d.file.Comments[:0]
	for _, cg := range d.file.Comments {
		if cg.Pos() >= from && cg.End() <= to {
			continue
		}
		kept = append(kept, cg)
	}
	d.file.Comments = kept
}

// clearPositions zeroes the position info of a synthesized subtree so the
// printer lays it out relative to its new neighbours.
func clearPositions(node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		switch v := n.(type) {
		case *ast.Ident:
			v.NamePos = token.NoPos
		case *ast.BasicLit:
			v.ValuePos = token.NoPos
		case *ast.FuncDecl:
			v.Type.Func = token.NoPos
		case *ast.BlockStmt:
			v.Lbrace = token.NoPos
			v.Rbrace = token.NoPos
		case *ast.FieldList:
			v.Opening = token.NoPos
			v.Closing = token.NoPos
		case *ast.StructType:
			v.Struct = token.NoPos
		case *ast.StarExpr:
			v.Star = token.NoPos
		case *ast.UnaryExpr:
			v.OpPos = token.NoPos
		case *ast.BinaryExpr:
			v.OpPos = token.NoPos
		case *ast.CallExpr:
			v.Lparen = token.NoPos
			v.Rparen = token.NoPos
		case *ast.CompositeLit:
			v.Lbrace = token.NoPos
			v.Rbrace = token.NoPos
		case *ast.ReturnStmt:
			v.Return = token.NoPos
		case *ast.AssignStmt:
			v.TokPos = token.NoPos
		case *ast.SelectorExpr:
			// positions live on the idents
		case *ast.IndexExpr:
			v.Lbrack = token.NoPos
			v.Rbrack = token.NoPos
		}
		return true
	})
}
