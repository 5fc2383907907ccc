package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/source"
)

// modulePath extracts the module path from the target project's go.mod.
func modulePath(projectPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(projectPath, "go.mod"))
	if err != nil {
		return "", errs.WrapStep(errs.StepSource, errs.ErrKindNotFound,
			"target project has no go.mod", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "module "); ok {
			return strings.TrimSpace(rest), nil
		}
	}
	return "", errs.New(errs.ErrKindParseFailed, "go.mod carries no module directive")
}

// loadDocs parses every Go source file directly under dir. A missing
// directory is an empty tree, not an error: first runs start from nothing.
func loadDocs(dir string) ([]*source.Document, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapStep(errs.StepSource, errs.ErrKindQueryFailed, "read "+dir, err)
	}

	var docs []*source.Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		doc, err := source.Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errs.WrapStep(errs.StepSource, errs.ErrKindParseFailed, "parse "+e.Name(), err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// packageName picks the package identifier for a generated directory: the
// one existing files already use, else the directory's base name.
func packageName(docs []*source.Document, dir string) string {
	for _, doc := range docs {
		if name := doc.PackageName(); name != "" {
			return name
		}
	}
	return filepath.Base(dir)
}
