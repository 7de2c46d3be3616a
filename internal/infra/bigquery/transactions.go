package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// numericScale is the fractional precision of BigQuery NUMERIC.
const numericScale = 9

// TransactionRow represents a transaction record in BigQuery.
type TransactionRow struct {
	TransactionID int64  `bigquery:"transaction_id"` // REQUIRED
	UserID        int64  `bigquery:"user_id"`        // REQUIRED
	Kind          string `bigquery:"transaction_type"`

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED STRING

	Category      bigquery.NullString `bigquery:"category"`       // NULLABLE
	Description   bigquery.NullString `bigquery:"description"`    // NULLABLE
	DueDate       bigquery.NullDate   `bigquery:"due_date"`       // NULLABLE
	DebtDirection bigquery.NullString `bigquery:"debt_direction"` // NULLABLE

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED TIMESTAMP
}

func newTransactionRow(tx *domain.Transaction) *TransactionRow {
	row := &TransactionRow{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Kind:          string(tx.Kind),
		Amount:        tx.Amount.Rat(),
		Currency:      tx.Currency,
		Category:      nullString(tx.Category),
		Description:   nullString(tx.Description),
		CreatedAt:     tx.CreatedAt,
	}
	if tx.DueDate != nil {
		row.DueDate = bigquery.NullDate{Date: civil.DateOf(*tx.DueDate), Valid: true}
	}
	if tx.DebtDirection != nil {
		row.DebtDirection = bigquery.NullString{StringVal: string(*tx.DebtDirection), Valid: true}
	}
	return row
}

func (row *TransactionRow) toDomain(loc *time.Location) (*domain.Transaction, error) {
	amount, err := ratToDecimal(row.Amount)
	if err != nil {
		return nil, err
	}
	tx := &domain.Transaction{
		ID:          row.TransactionID,
		UserID:      row.UserID,
		Kind:        domain.Kind(row.Kind),
		Amount:      amount,
		Currency:    row.Currency,
		Category:    stringPtr(row.Category),
		Description: stringPtr(row.Description),
		CreatedAt:   row.CreatedAt,
	}
	if row.DueDate.Valid {
		due := row.DueDate.Date.In(loc)
		tx.DueDate = &due
	}
	if row.DebtDirection.Valid && row.DebtDirection.StringVal != "" {
		d := domain.DebtDirection(row.DebtDirection.StringVal)
		tx.DebtDirection = &d
	}
	return tx, nil
}

// totalRow is one grouped sum.
type totalRow struct {
	Key      string   `bigquery:"key"`
	Currency string   `bigquery:"currency"`
	Total    *big.Rat `bigquery:"total"`
}

// ratToDecimal converts a NUMERIC value. A nil value is zero.
func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(r.FloatString(numericScale))
	if err != nil {
		return decimal.Zero, fmt.Errorf("converting numeric %s: %w", r.String(), err)
	}
	return d, nil
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func stringPtr(v bigquery.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.StringVal
	return &s
}
