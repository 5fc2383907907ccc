package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lofcz/minfold/internal/reconcile"
	"github.com/lofcz/minfold/internal/source"
)

// sweep is phase 5: delete previously generated model and wrapper files
// whose class was not confirmed this run, plus schema docs for vanished
// tables. Only files carrying the generated header are ever considered;
// hand-written files are invisible to the sweep, as is the allow-list of
// base files.
func (rc *runContext) sweep() {
	rc.sweepGenerated(rc.modelsDir())
	rc.sweepGenerated(rc.daoDir())
	rc.sweepDocs()
}

func (rc *runContext) sweepGenerated(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || sweepAllowlist[name] {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil || !strings.HasPrefix(string(data), reconcile.GeneratedHeader) {
			continue
		}

		owner := owningClass(path, data)
		if owner == "" || rc.synced.Has(owner) {
			continue
		}
		if err := os.Remove(path); err != nil {
			rc.skip("class", owner, "stale file not removable: "+err.Error())
			continue
		}
		rc.mu.Lock()
		rc.result.Deleted = append(rc.result.Deleted, path)
		rc.mu.Unlock()
		rc.log.With().Str("file", path).Str("class", owner).Logger().Info("stale generated file removed")
	}
}

// owningClass extracts the first declared struct name of a generated file.
func owningClass(path string, data []byte) string {
	doc, err := source.Parse(path, data)
	if err != nil {
		return ""
	}
	for _, cm := range doc.Classes() {
		return cm.Name
	}
	return ""
}

func (rc *runContext) sweepDocs() {
	dir := rc.schemaDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		table := strings.TrimSuffix(name, ".md")
		if _, ok := rc.tables[strings.ToLower(table)]; ok {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.Remove(path); err == nil {
			rc.mu.Lock()
			rc.result.Deleted = append(rc.result.Deleted, path)
			rc.mu.Unlock()
		}
	}
}
