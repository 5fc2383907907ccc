// Package resolve maps class names to table names and back. Resolution uses
// exact matching, English inflection, and a generic-suffix fallback, in that
// order; the first rule that matches wins.
package resolve

import (
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// genericSuffixes is the fixed, ordered list of plural endings tried after
// inflection fails. Order matters: earlier entries win.
var genericSuffixes = []string{
	"i", "es", "oes", "a", "ses", "ves", "ies", "ices", "ice", "en", "zes", "ae", "um",
}

// Resolver resolves class names against a fixed snapshot of the schema.
type Resolver struct {
	tables map[string]*schema.Table // keyed by lowercased table name

	// aggressive enables the expensive reverse scan that strips plural
	// suffixes off table names. Off by default.
	aggressive bool
}

// NewResolver builds a Resolver over the given tables.
func NewResolver(tables []*schema.Table, aggressive bool) *Resolver {
	m := make(map[string]*schema.Table, len(tables))
	for _, t := range tables {
		m[strings.ToLower(t.Name)] = t
	}
	return &Resolver{tables: m, aggressive: aggressive}
}

// ResolveTable finds the table a class name corresponds to. Resolution
// order, first match wins:
//
//  1. exact case-insensitive match
//  2. inflection-based pluralization
//  3. a literal "s" appended
//  4. each generic plural suffix appended, in order
//  5. (aggressive only) strip a plural suffix off the class name and
//     match the remainder, catching tables mistakenly named in singular
//     while the class is plural
//
// A miss leaves the class unmapped; it is neither edited nor deleted.
func (r *Resolver) ResolveTable(className string) (*schema.Table, bool) {
	name := strings.ToLower(className)

	if t, ok := r.tables[name]; ok {
		return t, true
	}

	if plural := strings.ToLower(inflection.Plural(className)); plural != name {
		if t, ok := r.tables[plural]; ok {
			return t, true
		}
	}

	if t, ok := r.tables[name+"s"]; ok {
		return t, true
	}

	for _, suffix := range genericSuffixes {
		if t, ok := r.tables[name+suffix]; ok {
			return t, true
		}
	}

	if r.aggressive {
		for _, suffix := range append([]string{"s"}, genericSuffixes...) {
			stripped, ok := strings.CutSuffix(name, suffix)
			if !ok || stripped == "" {
				continue
			}
			if t, ok := r.tables[stripped]; ok {
				return t, true
			}
		}
	}

	return nil, false
}

// ClassName derives the class name for a table with no existing class:
// the singular form of the table name in PascalCase. When inflection cannot
// singularize, the generic suffixes are stripped instead; a table that
// resists both keeps its own name.
func ClassName(tableName string) string {
	singular := inflection.Singular(tableName)
	if !strings.EqualFold(singular, tableName) {
		return source.ToPascalCase(singular)
	}
	lower := strings.ToLower(tableName)
	for _, suffix := range genericSuffixes {
		if stripped, ok := strings.CutSuffix(lower, suffix); ok && stripped != "" {
			return source.ToPascalCase(stripped)
		}
	}
	return source.ToPascalCase(tableName)
}
