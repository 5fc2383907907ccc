package reconcile

import (
	"strings"

	"github.com/lofcz/minfold/internal/schema"
	"github.com/lofcz/minfold/internal/source"
)

// knownDefaults maps (lowercased) column names to a literal default
// expression. Matching columns are excluded from constructor parameters and
// assigned the expression in the body instead.
var knownDefaults = map[string]string{
	"created_at":   "time.Now().UTC()",
	"date_created": "time.Now().UTC()",
	"datecreated":  "time.Now().UTC()",
}

// knownDefault returns the default expression for col, if the generator owns
// one. Only temporal columns qualify; a text column named created_at is the
// user's business.
func knownDefault(col *schema.Column) (string, bool) {
	switch col.Type {
	case schema.TypeDate, schema.TypeTime, schema.TypeTimestamp, schema.TypeTimestampTZ:
	default:
		return "", false
	}
	if col.Nullable {
		return "", false
	}
	expr, ok := knownDefaults[strings.ToLower(col.Name)]
	return expr, ok
}

// ReconcileConstructors regenerates the class's constructor pair from the
// final (post property-patch) column set.
//
// The parameterized constructor New<Class> is rebuilt wholesale rather than
// edited incrementally, so the parameter list and the assignment body can
// never drift apart. Parameter order preserves the relative order of a
// pre-existing constructor's surviving parameters, then appends new columns
// in schema ordinal order; without a prior constructor, ordinal order is
// used outright. Identity, computed, and known-default columns take no
// parameter. The parameterless NewEmpty<Class> is created when missing and
// otherwise left alone.
func ReconcileConstructors(class *source.ClassModel, table *schema.Table) error {
	doc := class.Doc
	ctorName := "New" + class.Name
	emptyName := "NewEmpty" + class.Name

	params := constructorColumns(class, table)

	if len(params) == 0 {
		doc.RemoveFunc(ctorName)
	} else {
		src := renderConstructor(class, table, params)
		if existing, ok := doc.FindFunc(ctorName); !ok || doc.FuncText(existing) != src {
			if err := doc.ReplaceOrAppendFunc(src, class.Name); err != nil {
				return err
			}
		}
		if needsTimeImport(class, table) {
			doc.EnsureImport("time")
		}
	}

	if _, ok := doc.FindFunc(emptyName); !ok {
		src := "func " + emptyName + "() *" + class.Name + " {\n\treturn &" + class.Name + "{}\n}"
		after := class.Name
		if len(params) > 0 {
			after = ctorName
		}
		if err := doc.ReplaceOrAppendFunc(src, after); err != nil {
			return err
		}
	}
	return nil
}

// constructorColumns selects and orders the caller-supplied columns.
func constructorColumns(class *source.ClassModel, table *schema.Table) []*schema.Column {
	var cols []*schema.Column
	for _, col := range table.Ordered() {
		if !col.CallerSupplied() {
			continue
		}
		if _, ok := knownDefault(col); ok {
			continue
		}
		// Only columns the class actually maps become parameters; opted-out
		// properties stay the user's responsibility.
		if prop, ok := class.Property(col.Name); !ok || !prop.Mapped {
			continue
		}
		cols = append(cols, col)
	}

	prior := priorParamOrder(class)
	if len(prior) == 0 {
		return cols
	}

	// Prior parameters carry the derived parameter names, reserved-word
	// rename included, so ranking compares against ParamName of the property
	// rather than undoing the rename by hand.
	rank := func(col *schema.Column) (int, bool) {
		prop, ok := class.Property(col.Name)
		if !ok {
			return 0, false
		}
		want := source.ParamName(prop.Name)
		for i, name := range prior {
			if strings.EqualFold(name, want) {
				return i, true
			}
		}
		return 0, false
	}

	var surviving, added []*schema.Column
	for _, col := range cols {
		if _, ok := rank(col); ok {
			surviving = append(surviving, col)
		} else {
			added = append(added, col)
		}
	}
	for i := 0; i < len(surviving); i++ {
		for j := i + 1; j < len(surviving); j++ {
			ri, _ := rank(surviving[i])
			rj, _ := rank(surviving[j])
			if rj < ri {
				surviving[i], surviving[j] = surviving[j], surviving[i]
			}
		}
	}
	return append(surviving, added...)
}

// priorParamOrder extracts the parameter names of an existing parameterized
// constructor, in declaration order.
func priorParamOrder(class *source.ClassModel) []string {
	fn, ok := class.Doc.FindFunc("New" + class.Name)
	if !ok || fn.Type.Params == nil {
		return nil
	}
	var names []string
	for _, field := range fn.Type.Params.List {
		for _, ident := range field.Names {
			names = append(names, ident.Name)
		}
	}
	return names
}

// renderConstructor emits the parameterized constructor as gofmt-shaped
// source text.
func renderConstructor(class *source.ClassModel, table *schema.Table, cols []*schema.Column) string {
	var b strings.Builder
	b.WriteString("func New" + class.Name + "(")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		prop, _ := class.Property(col.Name)
		b.WriteString(source.ParamName(prop.Name))
		b.WriteByte(' ')
		b.WriteString(prop.GoType)
	}
	b.WriteString(") *" + class.Name + " {\n")
	b.WriteString("\tm := &" + class.Name + "{}\n")
	for _, col := range cols {
		prop, _ := class.Property(col.Name)
		b.WriteString("\tm." + prop.Name + " = " + source.ParamName(prop.Name) + "\n")
	}
	for _, col := range table.Ordered() {
		expr, ok := knownDefault(col)
		if !ok {
			continue
		}
		prop, ok := class.Property(col.Name)
		if !ok || !prop.Mapped {
			continue
		}
		b.WriteString("\tm." + prop.Name + " = " + expr + "\n")
	}
	b.WriteString("\treturn m\n}")
	return b.String()
}

// needsTimeImport reports whether the constructor body will reference the
// time package for a known default.
func needsTimeImport(class *source.ClassModel, table *schema.Table) bool {
	for _, col := range table.Ordered() {
		if _, ok := knownDefault(col); !ok {
			continue
		}
		if prop, ok := class.Property(col.Name); ok && prop.Mapped {
			return true
		}
	}
	return false
}
