package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Inserted int
	Skipped  int
	// Removed counts stored transactions replaced by the import.
	Removed int
}

// transactionID derives a stable id from the identifying fields of a
// transaction. n numbers identical transactions within one batch, so a
// re-import of the same file maps onto the same ids.
func transactionID(t *api.Transaction, n int) string {
	key := strings.Join([]string{
		t.Date.Format(time.DateOnly),
		t.Account,
		t.AmountUnscaled.String(),
		t.Text,
		fmt.Sprint(n),
	}, "\x1f")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("txn:"+key)).String()
}

// Import inserts transactions with their tags. Transactions already stored
// with the same date, account, unscaled amount and text are skipped.
func (s *Store) Import(ctx context.Context, transactions []*api.Transaction) (ImportResult, error) {
	var res ImportResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res = ImportResult{}
		seen := map[string]int{}
		accounts := map[string]bool{}

		for _, t := range transactions {
			if !accounts[t.Account] {
				if err := ensureAccount(ctx, tx, t.Account); err != nil {
					return err
				}
				accounts[t.Account] = true
			}

			base := transactionID(t, 0)
			id := transactionID(t, seen[base])
			seen[base]++

			r, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO transactions(id, date, account, amount, amount_unscaled, text)
				 VALUES(?, ?, ?, ?, ?, ?)`,
				id, t.Date.Format(time.DateOnly), t.Account, t.Amount, t.AmountUnscaled, t.Text)
			if err != nil {
				return fmt.Errorf("insert transaction: %w", err)
			}
			if n, _ := r.RowsAffected(); n == 0 {
				res.Skipped++
				continue
			}
			if err := insertTags(ctx, tx, id, t.Tags); err != nil {
				return err
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	s.logger.Info("Imported transactions", "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

func insertTags(ctx context.Context, tx *sql.Tx, id string, tags []string) error {
	for i, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_tags(transaction_id, position, tag) VALUES(?, ?, ?)`,
			id, i, tag); err != nil {
			return fmt.Errorf("insert tag %q: %w", tag, err)
		}
	}
	return nil
}

// Transactions returns the stored transactions of account in date order,
// or of every account when account is empty.
func (s *Store) Transactions(ctx context.Context, account string) ([]*api.Transaction, error) {
	query := `SELECT id, date, account, amount, amount_unscaled, text FROM transactions`
	var args []any
	if account != "" {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY date, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	var out []*api.Transaction
	byID := map[string]*api.Transaction{}
	for rows.Next() {
		var (
			id, date string
			t        = &api.Transaction{Tags: []string{}}
		)
		if err := rows.Scan(&id, &date, &t.Account, &t.Amount, &t.AmountUnscaled, &t.Text); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = time.Parse(time.DateOnly, date); err != nil {
			rows.Close()
			return nil, fmt.Errorf("transaction %s: invalid date %q: %w", id, date, err)
		}
		out = append(out, t)
		byID[id] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	tags, err := s.db.QueryContext(ctx, `SELECT transaction_id, tag FROM transaction_tags ORDER BY transaction_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query transaction tags: %w", err)
	}
	defer tags.Close()
	for tags.Next() {
		var id, tag string
		if err := tags.Scan(&id, &tag); err != nil {
			return nil, fmt.Errorf("scan transaction tag: %w", err)
		}
		if t, ok := byID[id]; ok {
			t.Tags = append(t.Tags, tag)
		}
	}
	if err := tags.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction tags: %w", err)
	}
	return out, nil
}

// Retag replaces the tags of every stored transaction with the tags c
// assigns to its text. It returns the number of transactions retagged.
func (s *Store) Retag(ctx context.Context, c api.Classifier) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text FROM transactions`)
	if err != nil {
		return 0, fmt.Errorf("query transactions: %w", err)
	}
	texts := map[string]string{}
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan transaction: %w", err)
		}
		texts[id] = text
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate transactions: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_tags`); err != nil {
			return fmt.Errorf("clear transaction tags: %w", err)
		}
		for id, text := range texts {
			if err := insertTags(ctx, tx, id, c.Match(text)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Retagged stored transactions", "count", len(texts))
	return len(texts), nil
}

// DeleteAccountFrom removes the transactions of account dated on or after
// from, sparing those that match keep. Importing keep afterwards leaves the
// account holding exactly keep from that day on, which drops reserved rows
// the bank has since booked on another date.
func (s *Store) DeleteAccountFrom(ctx context.Context, account string, from time.Time, keep []*api.Transaction) (int, error) {
	spared := make(map[string]bool, len(keep))
	seen := map[string]int{}
	for _, t := range keep {
		base := transactionID(t, 0)
		spared[transactionID(t, seen[base])] = true
		seen[base]++
	}

	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n = 0
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM transactions WHERE account = ? AND date >= ?`,
			account, from.Format(time.DateOnly))
		if err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}
		var stale []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan transaction: %w", err)
			}
			if !spared[id] {
				stale = append(stale, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("query transactions: %w", err)
		}

		for _, id := range stale {
			if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete transaction: %w", err)
			}
		}
		n = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Deleted stale transactions", "account", account, "from", from.Format(time.DateOnly), "count", n)
	}
	return n, nil
}

// Reset deletes every stored row, keeping the schema.
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"transaction_tags", "transactions", "tag_patterns", "tags", "accounts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Write imports transactions, so a Store can serve as an export target.
func (s *Store) Write(transactions []*api.Transaction) error {
	_, err := s.Import(context.Background(), transactions)
	return err
}

// Stats summarises the content of the store.
type Stats struct {
	Transactions int
	Tagged       int
	Untagged     int
	Accounts     int
	Tags         int
	Patterns     int
	First        time.Time
	Last         time.Time
	Total        decimal.Decimal
}

// Stats counts the stored rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM transactions`, &st.Transactions},
		{`SELECT COUNT(DISTINCT transaction_id) FROM transaction_tags`, &st.Tagged},
		{`SELECT COUNT(*) FROM accounts`, &st.Accounts},
		{`SELECT COUNT(*) FROM tags`, &st.Tags},
		{`SELECT COUNT(*) FROM tag_patterns`, &st.Patterns},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("%s: %w", c.query, err)
		}
	}
	st.Untagged = st.Transactions - st.Tagged

	var first, last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(date), MAX(date) FROM transactions`).Scan(&first, &last); err != nil {
		return Stats{}, fmt.Errorf("query date range: %w", err)
	}
	if first.Valid {
		st.First, _ = time.Parse(time.DateOnly, first.String)
		st.Last, _ = time.Parse(time.DateOnly, last.String)
	}

	// Amounts are stored as text to stay exact, so they are summed here.
	rows, err := s.db.QueryContext(ctx, `SELECT amount FROM transactions`)
	if err != nil {
		return Stats{}, fmt.Errorf("query amounts: %w", err)
	}
	defer rows.Close()
	st.Total = decimal.Zero
	for rows.Next() {
		var d decimal.Decimal
		if err := rows.Scan(&d); err != nil {
			return Stats{}, fmt.Errorf("scan amount: %w", err)
		}
		st.Total = st.Total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate amounts: %w", err)
	}
	return st, nil
}
