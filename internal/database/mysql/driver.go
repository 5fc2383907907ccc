// Package mysql provides a MySQL implementation of database.DB backed by
// database/sql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/lofcz/minfold/internal/database"
	"github.com/lofcz/minfold/internal/errs"
)

// Driver is a MySQL implementation of database.DB.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns a
// Driver. It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *database.Config) (*Driver, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "invalid DSN", err)
	}

	db.SetMaxOpenConns(int(cfg.MaxConns))
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Dialect() database.Dialect {
	return database.DialectMySQL
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &mysqlRows{rows: rows}, nil
}

func (d *Driver) QueryRow(ctx context.Context, query string, args ...any) (database.Row, error) {
	return d.db.QueryRowContext(ctx, query, args...), nil
}

func (d *Driver) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := d.db.QueryContext(ctx, q)
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
// Identity maps from auto_increment, Computed from generated columns.
func (d *Driver) FetchColumns(ctx context.Context, table string) ([]database.RawColumn, error) {
	const q = `
		SELECT column_name,
		       ordinal_position,
		       data_type,
		       is_nullable = 'YES',
		       extra LIKE '%auto_increment%',
		       extra LIKE '%GENERATED%',
		       COALESCE(generation_expression, ''),
		       column_key = 'PRI',
		       column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := d.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.RawColumn
	for rows.Next() {
		var c database.RawColumn
		if err := rows.Scan(&c.Name, &c.Ordinal, &c.DataType, &c.Nullable,
			&c.Identity, &c.Computed, &c.ComputedExpr, &c.PrimaryKey, &c.Default); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// FetchForeignKeys returns all outgoing foreign keys of the given tables.
// MySQL foreign keys are always enforced once created.
func (d *Driver) FetchForeignKeys(ctx context.Context, tables []string) (map[string][]database.RawForeignKey, error) {
	fks := make(map[string][]database.RawForeignKey, len(tables))
	if len(tables) == 0 {
		return fks, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tables)), ",")
	q := fmt.Sprintf(`
		SELECT constraint_name,
		       table_name,
		       column_name,
		       referenced_table_name,
		       referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE()
		  AND referenced_table_name IS NOT NULL
		  AND table_name IN (%s)
		ORDER BY constraint_name`, placeholders)

	args := make([]any, len(tables))
	for i, t := range tables {
		args[i] = t
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapError(err, "failed to fetch foreign keys")
	}
	defer rows.Close()

	for rows.Next() {
		fk := database.RawForeignKey{Enforced: true}
		if err := rows.Scan(&fk.Name, &fk.Table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, mapError(err, "failed to scan foreign key")
		}
		fks[fk.Table] = append(fks[fk.Table], fk)
	}
	return fks, rows.Err()
}

// TableScript returns the table's CREATE TABLE statement via SHOW CREATE TABLE.
func (d *Driver) TableScript(ctx context.Context, table string) (string, error) {
	q := fmt.Sprintf("SHOW CREATE TABLE `%s`", strings.ReplaceAll(table, "`", "``"))

	var name, script string
	if err := d.db.QueryRowContext(ctx, q).Scan(&name, &script); err != nil {
		return "", mapError(err, "failed to fetch create script")
	}
	return script + ";\n", nil
}

// --- database/sql type wrappers ---

// mysqlRows wraps *sql.Rows to satisfy database.Rows.
type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }

// --- error mapping ---

// MySQL server error codes relevant to schema introspection.
const (
	mysqlErrAccessDenied   = 1045
	mysqlErrUnknownDB      = 1049
	mysqlErrNoSuchTable    = 1146
	mysqlErrHostNotAllowed = 1130
)

// mapError translates go-sql-driver native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrAccessDenied, mysqlErrUnknownDB, mysqlErrHostNotAllowed:
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case mysqlErrNoSuchTable:
			return errs.Wrap(errs.ErrKindNotFound, msg, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("%s: %s", msg, myErr.Message), err)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
