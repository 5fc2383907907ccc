package reconcile

import (
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/source"
)

// WrapperSpec carries the reconciliation target of one data-access wrapper.
type WrapperSpec struct {
	WrapperName  string // handle type, e.g. "Users"
	ClassName    string // model type, e.g. "User"
	ModelsImport string // import path of the models package
	ModelsPkg    string // package identifier of the models package
	GetById      bool   // emit the per-wrapper identity accessor
}

// UpdateWrapper normalizes an existing wrapper file: the embedded base is
// rewritten to the base-with-generic pattern for the current model class,
// baseline imports are ensured without duplicating user-added ones, and the
// GetById accessor is regenerated or removed according to the project
// convention. User members on the wrapper are untouched.
//
// Wrappers that do not exist yet are synthesized via RenderWrapper instead.
func UpdateWrapper(doc *source.Document, spec WrapperSpec) error {
	class, ok := doc.FindClass(spec.WrapperName)
	if !ok {
		return errs.New(errs.ErrKindNotFound, "no wrapper struct "+spec.WrapperName+" in "+doc.Path)
	}

	base := "Crud[" + spec.ModelsPkg + "." + spec.ClassName + "]"
	if err := class.SetEmbeddedBase(base); err != nil {
		return err
	}
	doc.EnsureImport(spec.ModelsImport)

	if !spec.GetById {
		doc.RemoveMethod(spec.WrapperName, "GetById")
		return nil
	}

	doc.EnsureImport("context")
	src := "func (d *" + spec.WrapperName + ") GetById(ctx context.Context, id int64) (*" +
		spec.ModelsPkg + "." + spec.ClassName + ", error) {\n" +
		"\treturn d.ByIdentity(ctx, id)\n}"
	if existing, ok := doc.FindMethod(spec.WrapperName, "GetById"); ok && doc.FuncText(existing) == src {
		return nil
	}
	return doc.ReplaceOrAppendFunc(src, spec.WrapperName)
}
