package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

type Settings struct {
	Dialect         domain.Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// DB is the process-wide connection pool plus the dialect it was opened
// with. It is the only mutable resource shared across report requests.
type DB struct {
	x       *sqlx.DB
	dialect Dialect
}

func Open(ctx context.Context, settings Settings) (*DB, error) {
	dialect, err := DialectFor(settings.Dialect)
	if err != nil {
		return nil, err
	}
	if settings.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	x, err := sqlx.Open(dialect.DriverName(), dialect.DSN(settings.DSN))
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name(), err)
	}
	db := Wrap(x.DB, dialect)

	if settings.MaxOpenConns > 0 {
		x.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.MaxIdleConns > 0 {
		x.SetMaxIdleConns(settings.MaxIdleConns)
	}
	if settings.ConnMaxLifetime > 0 {
		x.SetConnMaxLifetime(settings.ConnMaxLifetime)
	}

	timeout := settings.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := x.PingContext(pingCtx); err != nil {
		_ = x.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect.Name(), err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("dialect", string(dialect.Name())).
		Int("max_open_conns", settings.MaxOpenConns).
		Msg("database pool opened")

	return db, nil
}

// Wrap binds an existing pool to a dialect. Tests use it with sqlmock.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		x:       sqlx.NewDb(db, dialect.DriverName()),
		dialect: dialect,
	}
}

func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) SQL() *sql.DB {
	return db.x.DB
}

// Stats exposes the pool counters; InUse must return to its previous value
// once a request finishes, whatever its outcome.
func (db *DB) Stats() sql.DBStats {
	return db.x.Stats()
}

func (db *DB) Rebind(query string) string {
	return sqlx.Rebind(db.dialect.BindType(), query)
}

func (db *DB) Close() error {
	return db.x.Close()
}

// Classify converts a driver error into a tagged pipeline error.
func (db *DB) Classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	kind := db.dialect.Classify(err)
	return domain.NewError(kind, fmt.Errorf(format+": %w", append(args, err)...))
}

// ClassifyContext is Classify for errors raised while ctx was in use. Drivers
// report cancellation with their own errors, so a finished ctx takes precedence.
func (db *DB) ClassifyContext(ctx context.Context, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	return db.Classify(err, format, args...)
}
