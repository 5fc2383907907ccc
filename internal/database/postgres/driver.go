// Package postgres provides a PostgreSQL implementation of database.DB
// backed by pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
)

// Driver is a PostgreSQL implementation of database.DB.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create connection pool", err)
	}

	d := &Driver{pool: pool}

	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() {
	d.pool.Close()
}

// Dialect reports the Postgres placeholder style.
func (d *Driver) Dialect() database.Dialect {
	return database.DialectPostgres
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

// QueryRow executes a SQL statement expected to return at most one row.
func (d *Driver) QueryRow(ctx context.Context, sql string, args ...any) (database.Row, error) {
	return d.pool.QueryRow(ctx, sql, args...), nil
}

// ListTables returns all user-defined table names in the public schema.
func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := d.pool.Query(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

// FetchColumns returns raw column metadata for one table in ordinal order.
// Identity covers both IDENTITY columns and serial (nextval) defaults.
func (d *Driver) FetchColumns(ctx context.Context, table string) ([]database.RawColumn, error) {
	const q = `
		SELECT c.column_name,
		       c.ordinal_position,
		       c.udt_name,
		       c.is_nullable = 'YES',
		       (c.is_identity = 'YES' OR COALESCE(c.column_default, '') LIKE 'nextval(%'),
		       c.is_generated = 'ALWAYS',
		       COALESCE(c.generation_expression, ''),
		       c.column_default
		FROM information_schema.columns c
		WHERE c.table_schema = 'public'
		  AND c.table_name   = $1
		ORDER BY c.ordinal_position`

	rows, err := d.pool.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.RawColumn
	for rows.Next() {
		var c database.RawColumn
		if err := rows.Scan(&c.Name, &c.Ordinal, &c.DataType, &c.Nullable,
			&c.Identity, &c.Computed, &c.ComputedExpr, &c.Default); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}

	pks, err := d.fetchPrimaryKeys(ctx, table)
	if err != nil {
		return nil, err
	}
	pkSet := toSet(pks)
	for i := range cols {
		cols[i].PrimaryKey = pkSet[cols[i].Name]
	}
	return cols, nil
}

func (d *Driver) fetchPrimaryKeys(ctx context.Context, table string) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema    = 'public'
		  AND tc.table_name      = $1
		ORDER BY kcu.ordinal_position`

	rows, err := d.pool.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch primary keys")
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, mapError(err, "failed to scan primary key column")
		}
		pks = append(pks, s)
	}
	return pks, rows.Err()
}

// FetchForeignKeys returns all outgoing foreign keys of the given tables.
// NOT VALID constraints are reported with Enforced = false.
func (d *Driver) FetchForeignKeys(ctx context.Context, tables []string) (map[string][]database.RawForeignKey, error) {
	const q = `
		SELECT tc.constraint_name,
		       kcu.table_name,
		       kcu.column_name,
		       ccu.table_name  AS ref_table,
		       ccu.column_name AS ref_column,
		       con.convalidated
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name
		 AND tc.table_schema    = ccu.table_schema
		JOIN pg_constraint con
		  ON con.conname = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = 'public'
		  AND kcu.table_name     = ANY($1)
		ORDER BY tc.constraint_name`

	rows, err := d.pool.Query(ctx, q, tables)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	fks := make(map[string][]database.RawForeignKey, len(tables))
	for rows.Next() {
		var fk database.RawForeignKey
		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn, &fk.Enforced); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks[fk.Table] = append(fks[fk.Table], fk)
	}
	return fks, rows.Err()
}

// TableScript reconstructs a CREATE TABLE script from the catalog.
// Postgres has no SHOW CREATE TABLE, so the script is composed from the
// column metadata; constraints other than NOT NULL and PK are omitted.
func (d *Driver) TableScript(ctx context.Context, table string) (string, error) {
	cols, err := d.FetchColumns(ctx, table)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", errs.New(errs.ErrKindNotFound, fmt.Sprintf("table %q has no columns", table))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n", database.QuoteIdent(table))

	var pks []string
	for i, c := range cols {
		fmt.Fprintf(&sb, "    %s %s", database.QuoteIdent(c.Name), c.DataType)
		if c.Identity {
			sb.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
		}
		if c.Computed {
			fmt.Fprintf(&sb, " GENERATED ALWAYS AS (%s) STORED", c.ComputedExpr)
		}
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if c.Default != nil && !c.Identity && !c.Computed {
			fmt.Fprintf(&sb, " DEFAULT %s", *c.Default)
		}
		if c.PrimaryKey {
			pks = append(pks, database.QuoteIdent(c.Name))
		}
		if i < len(cols)-1 || len(pks) > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	if len(pks) > 0 {
		fmt.Fprintf(&sb, "    PRIMARY KEY (%s)\n", strings.Join(pks, ", "))
	}
	sb.WriteString(");\n")
	return sb.String(), nil
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, fd := range descs {
		cols[i] = fd.Name
	}
	return cols, nil
}

// --- error mapping ---

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		// Class 08 — connection errors, class 28 — authorization
		if len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "28") {
			kind = errs.ErrKindConnectionFailed
		}
		return errs.Wrap(kind, fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// --- helpers ---

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
