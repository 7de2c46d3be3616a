package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a ledger row.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
	KindDebt    Kind = "debt"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindDebt:
		return true
	}
	return false
}

// DebtDirection tells whether a debt row was lent out or borrowed.
type DebtDirection string

const (
	DebtLent     DebtDirection = "lent"
	DebtBorrowed DebtDirection = "borrowed"
)

// InitialBalanceCategory tags the transaction written by onboarding when the
// user seeds their starting balance.
const InitialBalanceCategory = "initial_balance"

// UncategorizedLabel replaces a missing category in category breakdowns.
const UncategorizedLabel = "uncategorized"

// Transaction is one ledger row owned by a user. Rows are immutable once
// written; the core only reads and inserts them.
type Transaction struct {
	ID            int64
	UserID        int64
	Kind          Kind
	Amount        decimal.Decimal
	Currency      string
	Category      *string
	Description   *string
	CreatedAt     time.Time
	DueDate       *time.Time
	DebtDirection *DebtDirection
}

// HasCategory reports whether the row carries a non-empty category.
func (t *Transaction) HasCategory() bool {
	return t.Category != nil && *t.Category != ""
}

// CurrencyRate says that 1 unit of Code equals Rate units of the base currency.
type CurrencyRate struct {
	Code      string
	Rate      decimal.Decimal
	FetchedAt time.Time
}
