package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/genesis-labs/genesis-api/pkg/models/domain"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Store runs query descriptors against the relational store.
type Store struct {
	db      *DB
	catalog *Catalog
}

func NewStore(db *DB, catalog *Catalog) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Store{db: db, catalog: catalog}, nil
}

// Query validates q against the catalog, runs it as a parameterized
// statement and returns the rows in the entity's schema. The connection is
// returned to the pool before Query returns, including on cancellation.
func (s *Store) Query(ctx context.Context, q domain.QueryDescriptor) (*domain.RowSet, error) {
	entity, stmt, args, err := s.Build(q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, s.db.ClassifyContext(ctx, err, "query %s", entity.Name)
	}

	logger := zerolog.Ctx(ctx)
	start := time.Now()

	rows, err := s.db.x.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, s.db.ClassifyContext(ctx, err, "query %s", entity.Name)
	}
	defer func(rows *sqlx.Rows) {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Str("entity", entity.Name).Msg("failed to close query rows")
		}
	}(rows)

	var data [][]any
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, s.db.ClassifyContext(ctx, err, "scan %s", entity.Name)
		}
		row := make([]any, len(entity.Columns))
		for i, col := range entity.Columns {
			v, err := convertValue(col.Type, raw[i])
			if err != nil {
				return nil, domain.Errorf(domain.KindDataUnavailable, "%s.%s: %v", entity.Name, col.Name, err)
			}
			row[i] = v
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.db.ClassifyContext(ctx, err, "iterate %s", entity.Name)
	}

	logger.Debug().
		Str("entity", entity.Name).
		Int("rows", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("query finished")

	rs, err := domain.NewRowSet(entity.Columns, data)
	if err != nil {
		return nil, domain.NewError(domain.KindDataUnavailable, err)
	}
	return rs, nil
}

// Build produces the statement and bind arguments for q in the store's
// dialect without touching the database.
func (s *Store) Build(q domain.QueryDescriptor) (Entity, string, []any, error) {
	entity, ok := s.catalog.Entity(q.Entity)
	if !ok {
		return Entity{}, "", nil, domain.Errorf(domain.KindQueryError, "unknown entity %q", q.Entity)
	}

	cols := make([]string, len(entity.Columns))
	for i, c := range entity.Columns {
		cols[i] = c.Name
	}

	var (
		where []string
		args  []any
	)
	if q.Range != nil {
		if entity.TimeColumn == "" {
			return Entity{}, "", nil, domain.Errorf(domain.KindQueryError, "entity %q has no time column", entity.Name)
		}
		where = append(where, entity.TimeColumn+" >= ?", entity.TimeColumn+" < ?")
		args = append(args, s.db.dialect.BindTime(q.Range.Start), s.db.dialect.BindTime(q.Range.End))
	}
	for _, p := range q.Predicates {
		clause, pargs, err := buildPredicate(entity, s.db.dialect, p)
		if err != nil {
			return Entity{}, "", nil, err
		}
		where = append(where, clause)
		args = append(args, pargs...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(entity.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if len(entity.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(entity.OrderBy, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	return entity, s.db.Rebind(b.String()), args, nil
}
