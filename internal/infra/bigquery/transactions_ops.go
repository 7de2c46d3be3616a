package bigquery

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

// bucketFormats maps a granularity to its FORMAT_TIMESTAMP pattern. The
// output matches store.Granularity.Layout.
var bucketFormats = map[store.Granularity]string{
	store.Day:   "%Y-%m-%d",
	store.Month: "%Y-%m",
	store.Year:  "%Y",
}

// SumByKindCurrency implements store.LedgerReader.
func (r *Repository) SumByKindCurrency(ctx context.Context, userID int64, since time.Time) ([]store.GroupTotal, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT transaction_type AS key, currency, SUM(amount) AS total
		FROM %s
		WHERE user_id = @user_id
		  AND (@since IS NULL OR created_at >= @since)
		GROUP BY key, currency
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "since", Value: nullTimestamp(since)},
	}

	var out []store.GroupTotal
	err := r.readAll(ctx, "SumByKindCurrency", q, func(it *bigquery.RowIterator) error {
		var row totalRow
		if err := it.Next(&row); err != nil {
			return err
		}
		total, err := ratToDecimal(row.Total)
		if err != nil {
			return err
		}
		out = append(out, store.GroupTotal{Kind: domain.Kind(row.Key), Currency: row.Currency, Total: total})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumByCategory implements store.LedgerReader.
func (r *Repository) SumByCategory(ctx context.Context, userID int64, kind domain.Kind, since time.Time) ([]store.CategoryTotal, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT IFNULL(category, '') AS key, currency, SUM(amount) AS total
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_type = @kind
		  AND (@since IS NULL OR created_at >= @since)
		GROUP BY key, currency
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: string(kind)},
		{Name: "since", Value: nullTimestamp(since)},
	}

	var out []store.CategoryTotal
	err := r.readAll(ctx, "SumByCategory", q, func(it *bigquery.RowIterator) error {
		var row totalRow
		if err := it.Next(&row); err != nil {
			return err
		}
		total, err := ratToDecimal(row.Total)
		if err != nil {
			return err
		}
		out = append(out, store.CategoryTotal{Category: row.Key, Currency: row.Currency, Total: total})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SumByBucket implements store.LedgerReader. Buckets are cut in the
// repository's timezone.
func (r *Repository) SumByBucket(ctx context.Context, userID int64, kind domain.Kind, g store.Granularity) ([]store.BucketTotal, error) {
	format, ok := bucketFormats[g]
	if !ok {
		format = bucketFormats[store.Day]
	}
	q := r.client.Query(fmt.Sprintf(`
		SELECT FORMAT_TIMESTAMP(@format, created_at, @tz) AS key, currency, SUM(amount) AS total
		FROM %s
		WHERE user_id = @user_id
		  AND transaction_type = @kind
		GROUP BY key, currency
		ORDER BY key
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "format", Value: format},
		{Name: "tz", Value: r.timezone},
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: string(kind)},
	}

	var out []store.BucketTotal
	err := r.readAll(ctx, "SumByBucket", q, func(it *bigquery.RowIterator) error {
		var row totalRow
		if err := it.Next(&row); err != nil {
			return err
		}
		total, err := ratToDecimal(row.Total)
		if err != nil {
			return err
		}
		out = append(out, store.BucketTotal{Bucket: row.Key, Currency: row.Currency, Total: total})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FirstLastDate implements store.LedgerReader.
func (r *Repository) FirstLastDate(ctx context.Context, userID int64, kind domain.Kind) (*store.DateSpan, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT MIN(created_at) AS first_at, MAX(created_at) AS last_at
		FROM %s
		WHERE user_id = @user_id AND transaction_type = @kind
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: string(kind)},
	}

	var row struct {
		First bigquery.NullTimestamp `bigquery:"first_at"`
		Last  bigquery.NullTimestamp `bigquery:"last_at"`
	}
	if err := r.readOne(ctx, "FirstLastDate", q, &row); err != nil {
		return nil, err
	}
	if !row.First.Valid || !row.Last.Valid {
		return nil, classify("FirstLastDate", domain.ErrNotFound)
	}
	return &store.DateSpan{First: row.First.Timestamp, Last: row.Last.Timestamp}, nil
}

// InsertTransaction implements store.TransactionWriter. BigQuery has no
// sequences, so the id is derived from a random UUID.
func (r *Repository) InsertTransaction(ctx context.Context, tx *domain.Transaction) (int64, error) {
	if tx.ID == 0 {
		tx.ID = newRowID()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	inserter := r.client.DatasetInProject(r.projectID, r.datasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, newTransactionRow(tx)); err != nil {
		return 0, classify("InsertTransaction", fmt.Errorf("inserting row: %w", err))
	}
	return tx.ID, nil
}

// ListTransactions implements store.ListReader, newest first.
func (r *Repository) ListTransactions(ctx context.Context, userID int64, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	var kind bigquery.NullString
	if filter.Kind != nil {
		kind = bigquery.NullString{StringVal: string(*filter.Kind), Valid: true}
	}

	q := r.client.Query(fmt.Sprintf(`
		SELECT transaction_id, user_id, transaction_type, amount, currency, category, description,
		       due_date, debt_direction, created_at
		FROM %s
		WHERE user_id = @user_id
		  AND (@kind IS NULL OR transaction_type = @kind)
		ORDER BY created_at DESC
		LIMIT @limit OFFSET @offset
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "kind", Value: kind},
		{Name: "limit", Value: limit},
		{Name: "offset", Value: offset},
	}

	loc := r.location()
	out := []*domain.Transaction{}
	err := r.readAll(ctx, "ListTransactions", q, func(it *bigquery.RowIterator) error {
		var row TransactionRow
		if err := it.Next(&row); err != nil {
			return err
		}
		tx, err := row.toDomain(loc)
		if err != nil {
			return err
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) location() *time.Location {
	loc, err := time.LoadLocation(r.timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func nullTimestamp(t time.Time) bigquery.NullTimestamp {
	if t.IsZero() {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: t, Valid: true}
}

// newRowID returns a positive random int64.
func newRowID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}
