// Package sqlserver provides the Microsoft SQL Server store backend.
//
// SQL Server caps a statement at 2100 bind parameters and a VALUES list at
// 1000 rows, so one logical batch may be split into several INSERT
// statements. Those statements run inside a single transaction, keeping the
// batch atomic the way a single statement is on the other backends.
package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/exportappend/internal/store"
	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" driver
)

const (
	maxParams    = 2100 - 1
	maxValueRows = 1000
)

var dialect = store.Dialect{
	QuoteIdent:  QuoteIdent,
	Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
}

var _ store.Store = (*Store)(nil)

func init() {
	store.Register("sqlserver", Open)
}

// Store is a store.Store backed by database/sql and go-mssqldb.
type Store struct {
	db *sql.DB
}

// Open connects using cfg and verifies the connection with a ping.
func Open(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("sqlserver", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlserver: open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlserver: ping: %w", err)
	}
	return New(db), nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ConnString renders cfg as a sqlserver:// URL. SSL enables encryption
// without certificate verification.
func ConnString(cfg store.Config) string {
	q := url.Values{}
	q.Set("database", cfg.Database)
	if cfg.SSL {
		q.Set("encrypt", "true")
		q.Set("TrustServerCertificate", "true")
	} else {
		q.Set("encrypt", "disable")
	}
	if cfg.ConnectTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// QuoteIdent bracket-quotes name, doubling embedded closing brackets.
func QuoteIdent(name string) string {
	return store.QuoteWith("[", "]")(name)
}

// Columns implements store.Catalog. Identity, computed, and rowversion
// columns are reported as generated.
func (s *Store) Columns(ctx context.Context, table string) ([]store.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.name,
		        CAST(CASE WHEN c.is_identity = 1 OR c.is_computed = 1 OR t.name = 'timestamp'
		             THEN 1 ELSE 0 END AS bit)
		 FROM sys.columns c
		 JOIN sys.types t ON t.user_type_id = c.user_type_id
		 WHERE c.object_id = OBJECT_ID(@p1)
		 ORDER BY c.column_id ASC`,
		QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("sqlserver: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []store.Column
	for rows.Next() {
		var c store.Column
		if err := rows.Scan(&c.Name, &c.Generated); err != nil {
			return nil, fmt.Errorf("sqlserver: scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// RoutineExists implements store.Catalog.
func (s *Store) RoutineExists(ctx context.Context, name string) (bool, error) {
	var ok int
	err := s.db.QueryRowContext(ctx,
		`SELECT TOP 1 1
		 FROM INFORMATION_SCHEMA.ROUTINES
		 WHERE ROUTINE_TYPE = 'PROCEDURE'
		   AND ROUTINE_NAME = @p1`,
		name).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlserver: routine %s: %w", name, err)
	}
	return true, nil
}

// ListTables implements store.Catalog.
func (s *Store) ListTables(ctx context.Context, suffix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT TABLE_NAME
		 FROM INFORMATION_SCHEMA.TABLES
		 WHERE TABLE_TYPE = 'BASE TABLE'
		   AND TABLE_NAME LIKE @p1 ESCAPE '\'
		 ORDER BY TABLE_NAME ASC`,
		"%"+store.EscapeLike(suffix))
	if err != nil {
		return nil, fmt.Errorf("sqlserver: list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlserver: scan table: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// InsertRows implements store.Inserter.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]store.Cell) (int64, error) {
	chunks, err := chunkRows(rows, len(columns))
	if err != nil {
		return 0, fmt.Errorf("sqlserver: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlserver: begin: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, chunk := range chunks {
		query, args, err := store.BuildInsert(dialect, table, columns, chunk)
		if err != nil {
			return 0, fmt.Errorf("sqlserver: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("sqlserver: insert into %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(len(chunk))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlserver: commit: %w", err)
	}
	return total, nil
}

// chunkRows splits rows so each statement stays within the parameter and
// VALUES-row limits.
func chunkRows(rows [][]store.Cell, width int) ([][][]store.Cell, error) {
	if width <= 0 {
		return nil, fmt.Errorf("columns is empty")
	}
	if width > maxParams {
		return nil, fmt.Errorf("table has %d columns, more than the %d parameters allowed per statement", width, maxParams)
	}
	per := min(maxParams/width, maxValueRows)

	var out [][][]store.Cell
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out, nil
}

// CallRoutine implements store.Caller.
func (s *Store) CallRoutine(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "EXEC "+QuoteIdent(name)); err != nil {
		return fmt.Errorf("sqlserver: exec %s: %w", name, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
