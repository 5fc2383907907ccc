// Package reconcile implements the structural-patch engine: it computes the
// minimal edits that bring a class in line with its table and applies them
// through the source package, leaving hand-authored members untouched.
package reconcile

import (
	"strings"

	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// PropertyUpdate records one property whose declared type must be rewritten.
type PropertyUpdate struct {
	Property string
	GoType   string
}

// PropertyPatch is the add/update/remove set computed for one class against
// its table. Patches are ephemeral: computed fresh per pass, applied once,
// then discarded.
type PropertyPatch struct {
	Adds    []*schema.Column
	Updates []PropertyUpdate
	Removes []string

	// solved tracks (lowercased) property names accounted for by a column,
	// so leftovers can be detected as orphans.
	solved map[string]bool
}

// Empty reports whether applying the patch would change nothing.
func (p *PropertyPatch) Empty() bool {
	return len(p.Adds) == 0 && len(p.Updates) == 0 && len(p.Removes) == 0
}

// ComputePatch diffs a class against its table.
//
// For every column: a missing property is added; an unmapped property is the
// user's explicit opt-out and stays untouched; a mapped property whose
// rendered type disagrees with the column is updated — unless it declares an
// opaque identifier type over an integer-family column, which is intentional
// enum modeling and is skipped. Mapped properties no column accounts for are
// removed.
func ComputePatch(class *source.ClassModel, table *schema.Table) *PropertyPatch {
	patch := &PropertyPatch{solved: make(map[string]bool)}

	for _, col := range table.Ordered() {
		prop, ok := class.Property(col.Name)
		if !ok {
			patch.Adds = append(patch.Adds, col)
			continue
		}

		key := strings.ToLower(prop.Name)
		patch.solved[key] = true

		if !prop.Mapped {
			continue
		}

		want := col.Type.GoType(col.Nullable)
		if prop.GoType == want {
			continue
		}
		if prop.Identifier && col.Type.IsInteger() {
			// Enum modeling over an integer column: the mismatch is
			// intentional, never patched.
			continue
		}
		patch.Updates = append(patch.Updates, PropertyUpdate{Property: prop.Name, GoType: want})
	}

	for _, prop := range class.Properties {
		if !prop.Mapped {
			continue
		}
		if !patch.solved[strings.ToLower(prop.Name)] {
			patch.Removes = append(patch.Removes, prop.Name)
		}
	}

	return patch
}

// ApplyPatch edits the class in place. Added properties get the capitalized
// column name and the Go type derived from the column; updated properties
// are retyped in place and lose their reference annotations (regenerated by
// the foreign-key pass); removed properties disappear (the constructor pass
// regenerates parameters from the final column set).
func ApplyPatch(class *source.ClassModel, patch *PropertyPatch) error {
	for _, col := range patch.Adds {
		name := source.ToPascalCase(col.Name)
		if err := class.AddProperty(name, col.Type.GoType(col.Nullable), ""); err != nil {
			return err
		}
		if imp := col.Type.GoTypeImport(); imp != "" {
			class.Doc.EnsureImport(imp)
		}
	}

	for _, up := range patch.Updates {
		if err := class.SetPropertyType(up.Property, up.GoType); err != nil {
			return err
		}
		prop, ok := class.Property(up.Property)
		if !ok {
			continue
		}
		if len(prop.FKTags()) > 0 {
			tags := source.ReplaceTagKey(prop.Tags, source.TagFK, nil)
			if err := class.SetPropertyTags(up.Property, tags); err != nil {
				return err
			}
		}
	}

	for _, name := range patch.Removes {
		class.RemoveProperty(name)
	}

	return nil
}
