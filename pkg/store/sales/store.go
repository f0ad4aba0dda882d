package sales

import (
	"context"
	"fmt"

	"github.com/genesis-labs/genesis-api/pkg/models/store"
	sqlstore "github.com/genesis-labs/genesis-api/pkg/store/sql"
)

// Store ingests sales records. Reads go through the generic query store.
type Store interface {
	Add(ctx context.Context, records []store.Sale) error
	Count(ctx context.Context) (int64, error)
}

type salesStore struct {
	db *sqlstore.DB
}

func NewStore(db *sqlstore.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &salesStore{db: db}, nil
}

func (s *salesStore) Add(ctx context.Context, records []store.Sale) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.InTx(ctx, func(ctx context.Context) error {
		tx := sqlstore.GetTransaction(ctx)
		stmt, err := tx.PreparexContext(ctx, s.db.Rebind(`
			INSERT INTO sales (
				id, sold_at, category, product, region, units, revenue, refunded
			) VALUES (
				?, ?, ?, ?, ?, ?, ?, ?
			)`))
		if err != nil {
			return s.db.Classify(err, "prepare statement")
		}
		defer stmt.Close()

		for _, record := range records {
			_, err = stmt.ExecContext(ctx,
				record.ID,
				s.db.Dialect().BindTime(record.SoldAt),
				record.Category,
				record.Product,
				record.Region,
				record.Units,
				record.Revenue,
				record.Refunded,
			)
			if err != nil {
				return s.db.Classify(err, "insert sale %s", record.ID)
			}
		}
		return nil
	})
}

func (s *salesStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.Get(ctx, &n, `SELECT COUNT(*) FROM sales`); err != nil {
		return 0, s.db.Classify(err, "count sales")
	}
	return n, nil
}
