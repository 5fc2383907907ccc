package reconcile

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/lofcz/minfold/internal/errs"
)

// RegistryEntry describes one table that was actually reconciled in the
// current run. Only such tables enter the registry, so a table whose
// generation failed cannot appear half-initialized.
type RegistryEntry struct {
	Wrapper  string // handle type name, e.g. "Users"
	Table    string
	Identity string // identity column name, "" when the table has none
}

// RebuildRegistry replaces the generated marker blocks of the registry
// source wholesale. The rebuild is textual: members before, between, and
// after the blocks are preserved byte for byte, which is what keeps
// hand-written additions to the registry intact across runs.
func RebuildRegistry(src []byte, entries []RegistryEntry) ([]byte, error) {
	sorted := make([]RegistryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Wrapper < sorted[j].Wrapper })

	var fields, init []string
	for _, e := range sorted {
		fields = append(fields, e.Wrapper+" "+e.Wrapper)
		init = append(init, "db."+e.Wrapper+".DB = conn")
		init = append(init, "db."+e.Wrapper+".Table = "+strconv.Quote(e.Table))
		init = append(init, "db."+e.Wrapper+".Identity = "+strconv.Quote(e.Identity))
	}

	out, err := replaceBlock(src, RegistryFieldsBlock, fields)
	if err != nil {
		return nil, err
	}
	return replaceBlock(out, RegistryInitBlock, init)
}

// replaceBlock rewrites the content between the named begin/end markers,
// re-indenting each line to match the begin marker.
func replaceBlock(src []byte, name string, lines []string) ([]byte, error) {
	begin := "minfold:begin " + name
	end := "minfold:end " + name

	all := strings.Split(string(src), "\n")
	beginAt, endAt := -1, -1
	for i, line := range all {
		switch {
		case strings.Contains(line, begin):
			if beginAt >= 0 {
				return nil, errs.New(errs.ErrKindParseFailed, "duplicate marker "+begin)
			}
			beginAt = i
		case strings.Contains(line, end):
			if beginAt < 0 {
				return nil, errs.New(errs.ErrKindParseFailed, "marker "+end+" before its begin")
			}
			if endAt >= 0 {
				return nil, errs.New(errs.ErrKindParseFailed, "duplicate marker "+end)
			}
			endAt = i
		}
	}
	if beginAt < 0 || endAt < 0 {
		return nil, errs.New(errs.ErrKindParseFailed, "registry is missing the "+name+" marker block")
	}

	indent := all[beginAt][:len(all[beginAt])-len(strings.TrimLeft(all[beginAt], " \t"))]

	var buf bytes.Buffer
	for _, line := range all[:beginAt+1] {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for _, line := range lines {
		buf.WriteString(indent)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for i, line := range all[endAt:] {
		buf.WriteString(line)
		if i < len(all[endAt:])-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}
