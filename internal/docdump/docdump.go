// Package docdump regenerates the per-table schema documentation artifacts:
// one markdown file per table carrying a YAML descriptor front-matter, the
// reconstructed create script, and a Mermaid ER fragment.
package docdump

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
	"github.com/lofcz/minfold/internal/schema"
)

// Writer renders documentation files into one directory.
type Writer struct {
	svc *schema.Service
	log *logger.Logger
	dir string

	// now is swappable so tests get stable output.
	now func() time.Time
}

// New creates a Writer rooted at dir. The directory is created on demand.
func New(svc *schema.Service, log *logger.Logger, dir string) *Writer {
	return &Writer{svc: svc, log: log, dir: dir, now: time.Now}
}

// descriptor is the YAML front-matter of one table's doc file.
type descriptor struct {
	Table     string             `yaml:"table"`
	Class     string             `yaml:"class,omitempty"`
	Generated string             `yaml:"generated"`
	Columns   []columnDescriptor `yaml:"columns"`
	Keys      []keyDescriptor    `yaml:"foreign_keys,omitempty"`
}

type columnDescriptor struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`
	Identity bool   `yaml:"identity,omitempty"`
	Primary  bool   `yaml:"primary_key,omitempty"`
}

type keyDescriptor struct {
	Name     string `yaml:"name"`
	Column   string `yaml:"column"`
	Target   string `yaml:"references"`
	Enforced bool   `yaml:"enforced"`
}

// WriteTable renders the doc file for one table as <dir>/<table>.md. A
// create-script introspection failure fails only this table's artifact; the
// caller treats it as a skip, not a run error.
func (w *Writer) WriteTable(ctx context.Context, table *schema.Table, className string) error {
	script, err := w.svc.TableScript(ctx, table.Name)
	if err != nil {
		return errs.Wrap(errs.ErrKindQueryFailed, "create script for "+table.Name, err)
	}

	front, err := yaml.Marshal(w.describe(table, className))
	if err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "descriptor for "+table.Name, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(front)
	b.WriteString("---\n\n")
	b.WriteString("# " + table.Name + "\n\n")
	b.WriteString("## Create script\n\n```sql\n")
	b.WriteString(strings.TrimRight(script, "\n"))
	b.WriteString("\n```\n\n")
	b.WriteString("## Relationships\n\n")
	b.WriteString(mermaidFragment(table))

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "create doc directory", err)
	}
	path := filepath.Join(w.dir, table.Name+".md")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errs.Wrap(errs.ErrKindWriteFailed, "write "+path, err)
	}
	w.log.With().Str("table", table.Name).Logger().Debug("schema doc written")
	return nil
}

func (w *Writer) describe(table *schema.Table, className string) descriptor {
	d := descriptor{
		Table:     table.Name,
		Class:     className,
		Generated: w.now().UTC().Format(time.RFC3339),
	}
	for _, col := range table.Ordered() {
		d.Columns = append(d.Columns, columnDescriptor{
			Name:     col.Name,
			Type:     col.Type.String(),
			Nullable: col.Nullable,
			Identity: col.Identity,
			Primary:  col.PrimaryKey,
		})
		for _, fk := range col.ForeignKeys {
			d.Keys = append(d.Keys, keyDescriptor{
				Name:     fk.Name,
				Column:   fk.Column,
				Target:   fk.RefTable + "." + fk.RefColumn,
				Enforced: fk.Enforced,
			})
		}
	}
	return d
}

// mermaidFragment renders the table and its outgoing foreign keys as an
// erDiagram block.
func mermaidFragment(table *schema.Table) string {
	var b strings.Builder
	b.WriteString("```mermaid\nerDiagram\n")
	b.WriteString("    " + cleanName(table.Name) + " {\n")
	for _, col := range table.Ordered() {
		marker := ""
		switch {
		case col.PrimaryKey:
			marker = " PK"
		case len(col.ForeignKeys) > 0:
			marker = " FK"
		}
		fmt.Fprintf(&b, "        %s %s%s\n", col.Type.String(), cleanName(col.Name), marker)
	}
	b.WriteString("    }\n")
	for _, col := range table.Ordered() {
		for _, fk := range col.ForeignKeys {
			fmt.Fprintf(&b, "    %s ||--o{ %s : %s\n",
				cleanName(fk.RefTable), cleanName(fk.Table), cleanName(fk.Column))
		}
	}
	b.WriteString("```\n")
	return b.String()
}

// cleanName keeps identifiers inside Mermaid's charset.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, ".", "_")
}
