package reconcile

import (
	"strings"

	"github.com/lofcz/minfold/internal/resolve"
	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// ForeignKeyPatch maps property name → the reference annotations it should
// carry after application. A property present with an empty slice means
// "strip all fk tags"; a property absent from the map is left alone.
type ForeignKeyPatch map[string][]string

// Empty reports whether the patch carries no annotation at all. Note that a
// patch of all-empty slices is NOT empty: it still strips stale tags.
func (p ForeignKeyPatch) Empty() bool {
	return len(p) == 0
}

// ComputeForeignKeyPatch derives the full reference-annotation set for every
// mapped property of the class whose column exists on the table. The result
// replaces, never merges: properties whose columns carry no foreign keys get
// an empty entry so that stale annotations are removed.
//
// Annotation form: "Class.Property" qualified by the resolved target class,
// with ",noenforce" appended for constraints the database does not enforce.
// A self-referencing key renders the bare property name. Unresolved targets
// fall back to the raw table/column names from the schema.
func ComputeForeignKeyPatch(class *source.ClassModel, table *schema.Table, tcm *resolve.TableClassMap) ForeignKeyPatch {
	patch := make(ForeignKeyPatch)

	for _, prop := range class.Properties {
		if !prop.Mapped {
			continue
		}
		col := columnFor(table, prop.Name)
		if col == nil {
			continue
		}

		annotations := make([]string, 0, len(col.ForeignKeys))
		for _, fk := range col.ForeignKeys {
			annotations = append(annotations, renderAnnotation(fk, tcm))
		}
		patch[prop.Name] = annotations
	}

	return patch
}

// columnFor finds the column backing a property, folding the snake_case /
// PascalCase naming divide.
func columnFor(table *schema.Table, property string) *schema.Column {
	for _, col := range table.Ordered() {
		if source.NamesEqual(property, col.Name) {
			return col
		}
	}
	return nil
}

// renderAnnotation formats one foreign key as an fk tag value.
func renderAnnotation(fk schema.ForeignKey, tcm *resolve.TableClassMap) string {
	targetProp := fk.RefColumn
	targetClassName := fk.RefTable

	if target, ok := tcm.ClassFor(fk.RefTable); ok {
		targetClassName = target.Name
		if p, ok := target.Property(fk.RefColumn); ok {
			targetProp = p.Name
		}
	}

	var b strings.Builder
	if fk.SelfReferencing() {
		b.WriteString(targetProp)
	} else {
		b.WriteString(targetClassName)
		b.WriteByte('.')
		b.WriteString(targetProp)
	}
	if !fk.Enforced {
		b.WriteByte(',')
		b.WriteString(source.NoEnforce)
	}
	return b.String()
}

// ApplyForeignKeyPatch rewrites each property's fk tag entries to the
// computed set, preserving every non-fk tag key in place. Properties whose
// annotations already match are not touched, keeping clean files clean.
func ApplyForeignKeyPatch(class *source.ClassModel, patch ForeignKeyPatch) error {
	for propName, want := range patch {
		prop, ok := class.Property(propName)
		if !ok {
			continue
		}
		if equalStrings(prop.FKTags(), want) {
			continue
		}
		tags := source.ReplaceTagKey(prop.Tags, source.TagFK, want)
		if err := class.SetPropertyTags(prop.Name, tags); err != nil {
			return err
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
