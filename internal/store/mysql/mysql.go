// Package mysql provides the MySQL/MariaDB store backend.
//
// Catalog lookups go through information_schema scoped to the configured
// database. Identifiers are backtick-quoted with embedded backticks doubled,
// and every value is bound through `?` placeholders.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/JonMunkholm/exportappend/internal/store"
	drv "github.com/go-sql-driver/mysql"
)

// maxPlaceholders is the server-side limit on bind parameters per statement.
const maxPlaceholders = 65535

var dialect = store.Dialect{
	QuoteIdent:  QuoteIdent,
	Placeholder: func(int) string { return "?" },
}

var _ store.Store = (*Store)(nil)

func init() {
	store.Register("mysql", Open)
}

// Store is a store.Store backed by database/sql and go-sql-driver/mysql.
type Store struct {
	db       *sql.DB
	database string
}

// Open connects using cfg and verifies the connection with a ping.
func Open(ctx context.Context, cfg store.Config) (store.Store, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
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
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return New(db, cfg.Database), nil
}

// New wraps an existing handle. database scopes catalog queries.
func New(db *sql.DB, database string) *Store {
	return &Store{db: db, database: database}
}

// DSN renders cfg as a go-sql-driver DSN. SSL uses the driver's
// "skip-verify" TLS profile.
func DSN(cfg store.Config) string {
	c := drv.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	c.DBName = cfg.Database
	c.Timeout = cfg.ConnectTimeout
	if cfg.SSL {
		c.TLSConfig = "skip-verify"
	}
	return c.FormatDSN()
}

// QuoteIdent backtick-quotes name, doubling embedded backticks.
func QuoteIdent(name string) string {
	return store.QuoteWith("`", "`")(name)
}

// Columns implements store.Catalog.
func (s *Store) Columns(ctx context.Context, table string) ([]store.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, extra
		 FROM information_schema.columns
		 WHERE table_schema = ?
		   AND table_name = ?
		 ORDER BY ordinal_position ASC`,
		s.database, table)
	if err != nil {
		return nil, fmt.Errorf("mysql: columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []store.Column
	for rows.Next() {
		var name string
		var extra sql.NullString
		if err := rows.Scan(&name, &extra); err != nil {
			return nil, fmt.Errorf("mysql: scan column: %w", err)
		}
		cols = append(cols, store.Column{Name: name, Generated: isGenerated(extra.String)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mysql: columns of %s: %w", table, err)
	}
	return cols, nil
}

// isGenerated reports whether an information_schema "extra" value marks a
// server-populated column. DEFAULT_GENERATED only marks an expression default
// and stays insertable.
func isGenerated(extra string) bool {
	e := strings.ToLower(extra)
	return strings.Contains(e, "auto_increment") ||
		strings.Contains(e, "virtual generated") ||
		strings.Contains(e, "stored generated")
}

// RoutineExists implements store.Catalog.
func (s *Store) RoutineExists(ctx context.Context, name string) (bool, error) {
	var ok int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1
		 FROM information_schema.routines
		 WHERE routine_schema = ?
		   AND routine_type = 'PROCEDURE'
		   AND routine_name = ?
		 LIMIT 1`,
		s.database, name).Scan(&ok)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mysql: routine %s: %w", name, err)
	}
	return true, nil
}

// ListTables implements store.Catalog.
func (s *Store) ListTables(ctx context.Context, suffix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name
		 FROM information_schema.tables
		 WHERE table_schema = ?
		   AND table_type = 'BASE TABLE'
		   AND table_name LIKE ?
		 ORDER BY table_name ASC`,
		s.database, "%"+store.EscapeLike(suffix))
	if err != nil {
		return nil, fmt.Errorf("mysql: list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("mysql: scan table: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// InsertRows implements store.Inserter with one multi-row INSERT.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]store.Cell) (int64, error) {
	if n := len(rows) * len(columns); n > maxPlaceholders {
		return 0, fmt.Errorf("mysql: batch needs %d placeholders, limit is %d; lower IMPORT_BATCH_SIZE", n, maxPlaceholders)
	}

	query, args, err := store.BuildInsert(dialect, table, columns, rows)
	if err != nil {
		return 0, fmt.Errorf("mysql: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mysql: insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

// CallRoutine implements store.Caller. Result sets produced by the
// procedure are discarded by the driver.
func (s *Store) CallRoutine(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "CALL "+QuoteIdent(name)+"()"); err != nil {
		return fmt.Errorf("mysql: call %s: %w", name, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
