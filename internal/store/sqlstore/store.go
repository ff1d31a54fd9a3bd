// Package sqlstore implements auth.Store over database/sql.
//
// The same SQL runs on PostgreSQL (pgx stdlib driver) and SQLite (modernc driver);
// both accept $N placeholders. Referential checks are made explicitly inside each
// transaction so SQLite behaves like PostgreSQL without foreign key enforcement.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/obs"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store persists the permission catalog and users in a SQL database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ auth.Store = (*Store)(nil)

// PoolConfig tunes the connection pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to driver ("postgres" or "sqlite") and verifies the connection.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*Store, error) {
	var sqlDriver string
	switch driver {
	case DriverPostgres:
		sqlDriver = "pgx"
	case DriverSQLite:
		sqlDriver = "sqlite"
	default:
		return nil, fmt.Errorf("sqlstore: unknown driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; in-memory databases live on a single connection
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := pool.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", driver, err)
	}
	return New(db), nil
}

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		log: obs.Logger().With().Str("component", "sqlstore").Logger(),
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

// fail maps driver errors onto the auth taxonomy. Errors that already carry an
// auth sentinel pass through unchanged.
func (s *Store) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		auth.ErrNotFound, auth.ErrReferenceNotFound, auth.ErrBusinessRule, auth.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s: %s", auth.ErrBusinessRule, op, pgErr.ConstraintName)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s: %s", auth.ErrReferenceNotFound, op, pgErr.ConstraintName)
		}
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s: %v", auth.ErrBusinessRule, op, liteErr)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %s: %v", auth.ErrReferenceNotFound, op, liteErr)
		}
		if liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("%w: %s: %v", auth.ErrBusinessRule, op, liteErr)
		}
	}
	s.log.Error().Err(err).Str("op", op).Msg("store operation failed")
	return fmt.Errorf("%w: %s: %w", auth.ErrStoreFailure, op, err)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exists reports whether table has a row with the given id. table is never user input.
func exists(ctx context.Context, q queryer, table string, id any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, fmt.Sprintf(`select 1 from %s where id = $1`, table), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
