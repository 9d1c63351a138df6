// Package store defines the relational-store contract used by the importer
// and a registry of backends (MySQL, PostgreSQL, SQL Server).
//
// Backends register themselves from an init function:
//
//	func init() { store.Register("mysql", Open) }
//
// and are selected at runtime with [Open] using Config.Driver.
package store

import (
	"context"
	"log/slog"
	"time"
)

// Cell is a nullable string value bound as a single insert parameter.
type Cell struct {
	Value string
	Valid bool // false means SQL NULL
}

// Text returns a non-null cell.
func Text(v string) Cell { return Cell{Value: v, Valid: true} }

// Null returns a SQL NULL cell.
func Null() Cell { return Cell{} }

// Arg returns the value to bind for this cell: nil for NULL, string otherwise.
func (c Cell) Arg() any {
	if !c.Valid {
		return nil
	}
	return c.Value
}

// NamedCell pairs a cell with the column it is bound to.
type NamedCell struct {
	Column string
	Cell   Cell
}

// NamedRow is an ordered, schema-derived view of a row.
type NamedRow []NamedCell

// Name pairs columns with cells positionally. Extra cells on either side are ignored.
func Name(columns []string, cells []Cell) NamedRow {
	n := min(len(columns), len(cells))
	out := make(NamedRow, n)
	for i := 0; i < n; i++ {
		out[i] = NamedCell{Column: columns[i], Cell: cells[i]}
	}
	return out
}

// LogValue implements slog.LogValuer so a row logs as a group of column=value attrs.
func (r NamedRow) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(r))
	for _, c := range r {
		if c.Cell.Valid {
			attrs = append(attrs, slog.String(c.Column, c.Cell.Value))
		} else {
			attrs = append(attrs, slog.Any(c.Column, nil))
		}
	}
	return slog.GroupValue(attrs...)
}

// Column is one entry of a table's catalog description.
type Column struct {
	Name      string
	Generated bool // identity, auto-increment, or computed
}

// Catalog answers schema questions against the configured database.
type Catalog interface {
	// Columns returns every column of table in declared (ordinal) order.
	// An unknown table yields an empty slice, not an error.
	Columns(ctx context.Context, table string) ([]Column, error)

	// RoutineExists reports whether a stored procedure with exactly this name exists.
	RoutineExists(ctx context.Context, name string) (bool, error)

	// ListTables returns base tables whose names end with suffix, sorted by name.
	ListTables(ctx context.Context, suffix string) ([]string, error)
}

// Inserter appends rows to a table in a single bulk operation.
type Inserter interface {
	// InsertRows inserts rows into table naming exactly columns, in order.
	// Every row must have len(columns) cells. Values are always bound parameters.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]Cell) (int64, error)
}

// Caller invokes zero-argument stored procedures.
type Caller interface {
	CallRoutine(ctx context.Context, name string) error
}

// Store is the full backend contract.
type Store interface {
	Catalog
	Inserter
	Caller
	Close() error
}

// Config holds the connection settings handed to a backend factory.
type Config struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSL             bool
	MaxConns        int
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
}
