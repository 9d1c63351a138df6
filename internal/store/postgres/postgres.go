// Package postgres provides the PostgreSQL store backend on pgx/v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/JonMunkholm/exportappend/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxParams is the wire-protocol limit on bind parameters per statement.
const maxParams = 65535

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

var dialect = store.Dialect{
	QuoteIdent:  QuoteIdent,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

var _ store.Store = (*Store)(nil)

func init() {
	store.Register("postgres", Open)
}

// Store is a store.Store over a pgx pool. Catalog queries are scoped to
// current_schema().
type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

// Open parses cfg into a pool configuration, connects, and pings.
func Open(ctx context.Context, cfg store.Config) (store.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// New wraps any DBTX (pool, connection, or transaction).
func New(db DBTX) *Store {
	return &Store{db: db}
}

// ConnString renders cfg as a postgres:// URL.
func ConnString(cfg store.Config) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	if cfg.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// QuoteIdent quotes name as a single identifier.
func QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Columns implements store.Catalog. Identity, always-generated, and
// serial (nextval default) columns are reported as generated.
func (s *Store) Columns(ctx context.Context, table string) ([]store.Column, error) {
	rows, err := s.db.Query(ctx,
		`SELECT column_name,
		        (is_identity = 'YES'
		         OR is_generated = 'ALWAYS'
		         OR COALESCE(column_default, '') LIKE 'nextval(%') AS generated
		 FROM information_schema.columns
		 WHERE table_schema = current_schema()
		   AND table_name = $1
		 ORDER BY ordinal_position ASC`,
		table)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns of %s: %w", table, err)
	}

	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Column, error) {
		var c store.Column
		err := row.Scan(&c.Name, &c.Generated)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: columns of %s: %w", table, err)
	}
	return cols, nil
}

// RoutineExists implements store.Catalog.
func (s *Store) RoutineExists(ctx context.Context, name string) (bool, error) {
	var ok int
	err := s.db.QueryRow(ctx,
		`SELECT 1
		 FROM information_schema.routines
		 WHERE routine_schema = current_schema()
		   AND routine_type = 'PROCEDURE'
		   AND routine_name = $1
		 LIMIT 1`,
		name).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: routine %s: %w", name, err)
	}
	return true, nil
}

// ListTables implements store.Catalog.
func (s *Store) ListTables(ctx context.Context, suffix string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT table_name
		 FROM information_schema.tables
		 WHERE table_schema = current_schema()
		   AND table_type = 'BASE TABLE'
		   AND table_name LIKE $1
		 ORDER BY table_name ASC`,
		"%"+store.EscapeLike(suffix))
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	return names, nil
}

// InsertRows implements store.Inserter. String values are sent in text
// format so the server casts them to each column's type.
func (s *Store) InsertRows(ctx context.Context, table string, columns []string, rows [][]store.Cell) (int64, error) {
	if n := len(rows) * len(columns); n > maxParams {
		return 0, fmt.Errorf("postgres: batch needs %d parameters, limit is %d; lower IMPORT_BATCH_SIZE", n, maxParams)
	}

	query, args, err := store.BuildInsert(dialect, table, columns, rows)
	if err != nil {
		return 0, fmt.Errorf("postgres: %w", err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// CallRoutine implements store.Caller.
func (s *Store) CallRoutine(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, "CALL "+QuoteIdent(name)+"()"); err != nil {
		return fmt.Errorf("postgres: call %s: %w", name, err)
	}
	return nil
}

// Close releases the pool, if this Store owns one.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
