package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

// SaveScales upserts the accounts of the registry with their scales.
func (s *Store) SaveScales(ctx context.Context, scales api.Scales) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for name, scale := range scales {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts(name, scale) VALUES(?, ?)
				 ON CONFLICT(name) DO UPDATE SET scale = excluded.scale`,
				name, scale.String()); err != nil {
				return fmt.Errorf("upsert account %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("saved account scales", "count", len(scales))
	return nil
}

// Scales returns the registered accounts and their scales.
func (s *Store) Scales(ctx context.Context) (api.Scales, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, scale FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	scales := api.Scales{}
	for rows.Next() {
		var name string
		var scale decimal.Decimal
		if err := rows.Scan(&name, &scale); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		scales[name] = scale
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return scales, nil
}

func ensureAccount(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO accounts(name) VALUES(?)`, name); err != nil {
		return fmt.Errorf("ensure account %q: %w", name, err)
	}
	return nil
}
