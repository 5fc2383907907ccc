package schema

import (
	"context"
	"strings"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
	"github.com/lofcz/minfold/internal/logger"
)

// Service is the schema introspection facade the engine consumes. It turns
// driver-level raw metadata into the typed model, dropping columns whose
// declared type falls outside the closed enumeration.
type Service struct {
	db  database.DB
	log *logger.Logger
}

// NewService creates a Service over an open database connection.
func NewService(db database.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.New(nil)
	}
	return &Service{db: db, log: log}
}

// TestConnection verifies the schema source is reachable and authorized.
// Connection and authorization failures are reported distinctly from an
// empty schema, which is not an error.
func (s *Service) TestConnection(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// GetSchema introspects every user table and returns the typed schema model
// with foreign keys attached to their constrained columns.
func (s *Service) GetSchema(ctx context.Context) ([]*Table, error) {
	names, err := s.db.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		t, err := s.loadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}

	fks, err := s.GetForeignKeys(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		for _, fk := range fks[strings.ToLower(t.Name)] {
			if col, ok := t.Column(fk.Column); ok {
				col.ForeignKeys = append(col.ForeignKeys, fk)
			}
		}
	}

	return tables, nil
}

// GetForeignKeys returns the outgoing foreign keys of the given tables,
// keyed by lowercased owning table name.
func (s *Service) GetForeignKeys(ctx context.Context, tables []string) (map[string][]ForeignKey, error) {
	raw, err := s.db.FetchForeignKeys(ctx, tables)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]ForeignKey, len(raw))
	for table, list := range raw {
		key := strings.ToLower(table)
		for _, r := range list {
			out[key] = append(out[key], ForeignKey{
				Name:      r.Name,
				Table:     r.Table,
				Column:    r.Column,
				RefTable:  r.RefTable,
				RefColumn: r.RefColumn,
				Enforced:  r.Enforced,
			})
		}
	}
	return out, nil
}

// TableScript returns the CREATE TABLE script for one table.
func (s *Service) TableScript(ctx context.Context, table string) (string, error) {
	return s.db.TableScript(ctx, table)
}

// loadTable fetches and types one table's columns. Columns with unparseable
// types are skipped with a warning — exotic engine types are expected and
// must not fail the run.
func (s *Service) loadTable(ctx context.Context, name string) (*Table, error) {
	raw, err := s.db.FetchColumns(ctx, name)
	if err != nil {
		return nil, err
	}

	t := NewTable(name)
	for _, rc := range raw {
		sqlType, ok := ParseSqlType(rc.DataType)
		if !ok {
			s.log.WarnWith("skipping column with unknown scalar type", map[string]any{
				"table":  name,
				"column": rc.Name,
				"type":   rc.DataType,
			})
			continue
		}
		col := &Column{
			Name:         rc.Name,
			Ordinal:      rc.Ordinal,
			Type:         sqlType,
			Nullable:     rc.Nullable,
			Identity:     rc.Identity,
			Computed:     rc.Computed,
			ComputedExpr: rc.ComputedExpr,
			PrimaryKey:   rc.PrimaryKey,
		}
		if !t.AddColumn(col) {
			return nil, errs.New(errs.ErrKindInvalidInput,
				"duplicate column name "+rc.Name+" in table "+name)
		}
	}
	return t, nil
}
