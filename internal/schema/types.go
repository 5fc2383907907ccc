// Package schema holds the immutable description of the relational schema a
// run reconciles against: tables, typed columns, and foreign keys.
package schema

import (
	"sort"
	"strings"
)

// SqlType is the closed enumeration of relational scalar types minfold
// understands. Engine-specific names are normalized into it; columns whose
// declared type has no member here are dropped from the table.
type SqlType int

const (
	TypeUnknown SqlType = iota
	TypeBool
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeReal
	TypeDouble
	TypeDecimal
	TypeText
	TypeUUID
	TypeDate
	TypeTime
	TypeTimestamp
	TypeTimestampTZ
	TypeBytes
	TypeJSON
)

// typeNames maps engine type names (Postgres udt names and MySQL data_type
// values, lowercased) to the closed enumeration.
var typeNames = map[string]SqlType{
	// boolean
	"bool": TypeBool, "boolean": TypeBool,
	// integer family
	"tinyint": TypeTinyInt,
	"int2":    TypeSmallInt, "smallint": TypeSmallInt,
	"int4": TypeInt, "int": TypeInt, "integer": TypeInt, "mediumint": TypeInt, "serial": TypeInt,
	"int8": TypeBigInt, "bigint": TypeBigInt, "bigserial": TypeBigInt,
	// floating point / exact numeric
	"float4": TypeReal, "real": TypeReal, "float": TypeReal,
	"float8": TypeDouble, "double": TypeDouble, "double precision": TypeDouble,
	"numeric": TypeDecimal, "decimal": TypeDecimal,
	// character
	"text": TypeText, "varchar": TypeText, "char": TypeText, "bpchar": TypeText,
	"character varying": TypeText, "tinytext": TypeText, "mediumtext": TypeText,
	"longtext": TypeText, "nvarchar": TypeText, "citext": TypeText,
	// temporal
	"date": TypeDate,
	"time": TypeTime, "timetz": TypeTime,
	"timestamp": TypeTimestamp, "datetime": TypeTimestamp,
	"timestamptz": TypeTimestampTZ,
	// misc
	"uuid":  TypeUUID,
	"bytea": TypeBytes, "blob": TypeBytes, "varbinary": TypeBytes, "binary": TypeBytes,
	"json": TypeJSON, "jsonb": TypeJSON,
}

// ParseSqlType normalizes an engine type name. ok is false when the type is
// outside the closed enumeration (exotic engine features).
func ParseSqlType(raw string) (SqlType, bool) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

func (t SqlType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeTinyInt:
		return "tinyint"
	case TypeSmallInt:
		return "smallint"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeReal:
		return "real"
	case TypeDouble:
		return "double"
	case TypeDecimal:
		return "decimal"
	case TypeText:
		return "text"
	case TypeUUID:
		return "uuid"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeTimestamp:
		return "timestamp"
	case TypeTimestampTZ:
		return "timestamptz"
	case TypeBytes:
		return "bytes"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// IsInteger reports whether t belongs to the integer family. Properties
// declared with an opaque identifier type (enum modeling) are tolerated only
// over integer-family columns.
func (t SqlType) IsInteger() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeInt, TypeBigInt:
		return true
	}
	return false
}

// GoType returns the Go type the generator emits for a column of this type
// and nullability. Nullability is expressed through pointers; byte-slice and
// JSON types are already nilable.
func (t SqlType) GoType(nullable bool) string {
	var base string
	switch t {
	case TypeBool:
		base = "bool"
	case TypeTinyInt:
		base = "int8"
	case TypeSmallInt:
		base = "int16"
	case TypeInt:
		base = "int32"
	case TypeBigInt:
		base = "int64"
	case TypeReal:
		base = "float32"
	case TypeDouble, TypeDecimal:
		base = "float64"
	case TypeText, TypeUUID:
		base = "string"
	case TypeDate, TypeTime, TypeTimestamp, TypeTimestampTZ:
		base = "time.Time"
	case TypeBytes:
		return "[]byte"
	case TypeJSON:
		return "json.RawMessage"
	default:
		return ""
	}
	if nullable {
		return "*" + base
	}
	return base
}

// GoTypeImport returns the import path the emitted Go type requires, or "".
func (t SqlType) GoTypeImport() string {
	switch t {
	case TypeDate, TypeTime, TypeTimestamp, TypeTimestampTZ:
		return "time"
	case TypeJSON:
		return "encoding/json"
	}
	return ""
}

// SqlTypeFromGo reverses GoType: it resolves a declared Go field type back
// into the enumeration. ok is false for identifier types (named non-builtin
// types such as enums) the generator does not own.
func SqlTypeFromGo(goType string) (t SqlType, nullable, ok bool) {
	if strings.HasPrefix(goType, "*") {
		nullable = true
		goType = goType[1:]
	}
	switch goType {
	case "bool":
		return TypeBool, nullable, true
	case "int8":
		return TypeTinyInt, nullable, true
	case "int16":
		return TypeSmallInt, nullable, true
	case "int32":
		return TypeInt, nullable, true
	case "int64":
		return TypeBigInt, nullable, true
	case "float32":
		return TypeReal, nullable, true
	case "float64":
		return TypeDouble, nullable, true
	case "string":
		return TypeText, nullable, true
	case "time.Time":
		return TypeTimestamp, nullable, true
	case "[]byte":
		return TypeBytes, true, true
	case "json.RawMessage":
		return TypeJSON, true, true
	}
	return TypeUnknown, nullable, false
}

// ForeignKey describes one outgoing foreign key constraint. It is attached
// to exactly the column it constrains.
type ForeignKey struct {
	Name      string // constraint name
	Table     string // owning table
	Column    string // owning column
	RefTable  string
	RefColumn string
	Enforced  bool // not-enforced constraints still drive annotation
}

// SelfReferencing reports whether the key points back into its owning table.
func (fk ForeignKey) SelfReferencing() bool {
	return strings.EqualFold(fk.Table, fk.RefTable)
}

// Column is one typed column of a table.
type Column struct {
	Name         string
	Ordinal      int // declaration order
	Type         SqlType
	Nullable     bool
	Identity     bool
	Computed     bool
	ComputedExpr string
	PrimaryKey   bool
	ForeignKeys  []ForeignKey
}

// CallerSupplied reports whether the column takes a caller-provided value in
// the generated constructor. Identity and computed columns never do.
func (c *Column) CallerSupplied() bool {
	return !c.Identity && !c.Computed
}

// Table is a named relational entity with case-insensitively unique columns.
type Table struct {
	Name    string
	Columns map[string]*Column // keyed by lowercased column name
}

// NewTable creates an empty Table.
func NewTable(name string) *Table {
	return &Table{Name: name, Columns: make(map[string]*Column)}
}

// AddColumn inserts col, enforcing case-insensitive name uniqueness.
// Returns false if a column with the same name already exists.
func (t *Table) AddColumn(col *Column) bool {
	key := strings.ToLower(col.Name)
	if _, dup := t.Columns[key]; dup {
		return false
	}
	t.Columns[key] = col
	return true
}

// Column looks a column up by case-insensitive name.
func (t *Table) Column(name string) (*Column, bool) {
	c, ok := t.Columns[strings.ToLower(name)]
	return c, ok
}

// Ordered returns the columns in ordinal (declaration) order.
func (t *Table) Ordered() []*Column {
	cols := make([]*Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, c)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Ordinal < cols[j].Ordinal })
	return cols
}

// IdentityColumn returns the identity column if the table has a
// single-column primary key backed by one, else nil.
func (t *Table) IdentityColumn() *Column {
	var pk *Column
	n := 0
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = c
			n++
		}
	}
	if n != 1 {
		return nil
	}
	return pk
}
