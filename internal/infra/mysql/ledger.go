package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

// bucketFormats maps a granularity to its DATE_FORMAT pattern. The output
// matches store.Granularity.Layout.
var bucketFormats = map[store.Granularity]string{
	store.Day:   "%Y-%m-%d",
	store.Month: "%Y-%m",
	store.Year:  "%Y",
}

// SumByKindCurrency implements store.LedgerReader.
func (s *Store) SumByKindCurrency(ctx context.Context, userID int64, since time.Time) ([]store.GroupTotal, error) {
	query := `
		SELECT transaction_type, currency, COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = ?`
	args := []any{userID}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since)
	}
	query += `
		GROUP BY transaction_type, currency`

	var out []store.GroupTotal
	err := s.withConn(ctx, "SumByKindCurrency", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var g store.GroupTotal
			var kind string
			if err := rows.Scan(&kind, &g.Currency, &g.Total); err != nil {
				return err
			}
			g.Kind = domain.Kind(kind)
			out = append(out, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumByCategory implements store.LedgerReader. NULL and empty categories
// are reported together under the empty string.
func (s *Store) SumByCategory(ctx context.Context, userID int64, kind domain.Kind, since time.Time) ([]store.CategoryTotal, error) {
	query := `
		SELECT COALESCE(category, '') AS cat, currency, COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = ? AND transaction_type = ?`
	args := []any{userID, string(kind)}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since)
	}
	query += `
		GROUP BY cat, currency`

	var out []store.CategoryTotal
	err := s.withConn(ctx, "SumByCategory", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c store.CategoryTotal
			if err := rows.Scan(&c.Category, &c.Currency, &c.Total); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumByBucket implements store.LedgerReader.
func (s *Store) SumByBucket(ctx context.Context, userID int64, kind domain.Kind, g store.Granularity) ([]store.BucketTotal, error) {
	format, ok := bucketFormats[g]
	if !ok {
		format = bucketFormats[store.Day]
	}
	query := `
		SELECT DATE_FORMAT(created_at, ?) AS bucket, currency, COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = ? AND transaction_type = ?
		GROUP BY bucket, currency
		ORDER BY bucket`

	var out []store.BucketTotal
	err := s.withConn(ctx, "SumByBucket", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, format, userID, string(kind))
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var b store.BucketTotal
			if err := rows.Scan(&b.Bucket, &b.Currency, &b.Total); err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FirstLastDate implements store.LedgerReader.
func (s *Store) FirstLastDate(ctx context.Context, userID int64, kind domain.Kind) (*store.DateSpan, error) {
	query := `
		SELECT MIN(created_at), MAX(created_at)
		FROM transactions
		WHERE user_id = ? AND transaction_type = ?`

	var first, last sql.NullTime
	err := s.withConn(ctx, "FirstLastDate", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, userID, string(kind)).Scan(&first, &last)
	})
	if err != nil {
		return nil, err
	}
	if !first.Valid || !last.Valid {
		return nil, classify("FirstLastDate", domain.ErrNotFound)
	}
	return &store.DateSpan{First: first.Time, Last: last.Time}, nil
}

// CurrencyRate implements store.RateReader.
func (s *Store) CurrencyRate(ctx context.Context, code string) (*domain.CurrencyRate, error) {
	query := `
		SELECT currency_code, rate_to_uzs, updated_at
		FROM currency_rates
		WHERE currency_code = ?`

	var (
		r         domain.CurrencyRate
		rate      decimal.NullDecimal
		updatedAt sql.NullTime
	)
	err := s.withConn(ctx, "CurrencyRate", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, code).Scan(&r.Code, &rate, &updatedAt)
	})
	if err != nil {
		return nil, err
	}
	if !rate.Valid {
		return nil, classify("CurrencyRate", domain.ErrNotFound)
	}
	r.Rate = rate.Decimal
	if updatedAt.Valid {
		r.FetchedAt = updatedAt.Time
	}
	return &r, nil
}
