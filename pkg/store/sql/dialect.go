package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed width so that lexical order matches time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// Dialect hides everything that differs between the supported backends.
// It is chosen once when the store is opened; callers never branch on it.
type Dialect interface {
	Name() domain.Dialect
	DriverName() string
	DSN(dsn string) string
	BindType() int
	BindTime(t time.Time) any
	Classify(err error) domain.ErrorKind
}

func DialectFor(name domain.Dialect) (Dialect, error) {
	switch domain.Dialect(strings.ToLower(string(name))) {
	case domain.DialectSQLite, "sqlite3":
		return sqliteDialect{}, nil
	case domain.DialectPostgres, "postgresql", "pgx":
		return postgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database dialect %q", name)
}

type sqliteDialect struct{}

func (sqliteDialect) Name() domain.Dialect { return domain.DialectSQLite }
func (sqliteDialect) DriverName() string   { return "sqlite" }
func (sqliteDialect) BindType() int        { return sqlx.QUESTION }

func (sqliteDialect) DSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (sqliteDialect) BindTime(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

func (sqliteDialect) Classify(err error) domain.ErrorKind {
	if kind, ok := classifyContext(err); ok {
		return kind
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_ERROR, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE:
			return domain.KindQueryError
		}
	}
	return domain.KindDataUnavailable
}

type postgresDialect struct{}

func (postgresDialect) Name() domain.Dialect  { return domain.DialectPostgres }
func (postgresDialect) DriverName() string    { return "postgres" }
func (postgresDialect) BindType() int         { return sqlx.DOLLAR }
func (postgresDialect) DSN(dsn string) string { return dsn }

func (postgresDialect) BindTime(t time.Time) any {
	return t.UTC()
}

func (postgresDialect) Classify(err error) domain.ErrorKind {
	if kind, ok := classifyContext(err); ok {
		return kind
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		// syntax error or access rule violation, data exception
		case "42", "22":
			return domain.KindQueryError
		}
	}
	return domain.KindDataUnavailable
}

func classifyContext(err error) (domain.ErrorKind, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.KindRequestCancelled, true
	case errors.Is(err, context.DeadlineExceeded):
		return domain.KindDataUnavailable, true
	}
	return "", false
}
