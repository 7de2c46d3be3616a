// Package store declares the persistence contracts the service reads and
// writes through. Implementations live under internal/infra.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// Granularity is the calendar unit a time series is bucketed by.
type Granularity string

const (
	Day   Granularity = "day"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// Layout returns the Go time layout of a bucket label at this granularity.
// Labels sort lexically in chronological order.
func (g Granularity) Layout() string {
	switch g {
	case Month:
		return "2006-01"
	case Year:
		return "2006"
	default:
		return "2006-01-02"
	}
}

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == Day || g == Month || g == Year
}

// GroupTotal is the sum of one user's rows for a (kind, currency) pair.
type GroupTotal struct {
	Kind     domain.Kind
	Currency string
	Total    decimal.Decimal
}

// CategoryTotal is the sum for a (category, currency) pair. Category is empty
// when the rows carry no category.
type CategoryTotal struct {
	Category string
	Currency string
	Total    decimal.Decimal
}

// BucketTotal is the sum for a (bucket, currency) pair. Bucket is the row date
// truncated to the requested granularity and formatted with its Layout.
type BucketTotal struct {
	Bucket   string
	Currency string
	Total    decimal.Decimal
}

// DateSpan is the creation time of the first and last row of a kind.
type DateSpan struct {
	First time.Time
	Last  time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	Kind   *domain.Kind
	Limit  int
	Offset int
}

// LedgerReader exposes the grouped reads the aggregator is built on.
type LedgerReader interface {
	// SumByKindCurrency groups the user's rows created at or after since by
	// (kind, currency). A zero since covers the whole history.
	SumByKindCurrency(ctx context.Context, userID int64, since time.Time) ([]GroupTotal, error)

	// SumByCategory groups rows of kind created at or after since by (category, currency).
	SumByCategory(ctx context.Context, userID int64, kind domain.Kind, since time.Time) ([]CategoryTotal, error)

	// SumByBucket groups rows of kind by (bucket, currency) over the whole history.
	SumByBucket(ctx context.Context, userID int64, kind domain.Kind, g Granularity) ([]BucketTotal, error)

	// FirstLastDate returns the span of the user's rows of kind, or
	// domain.ErrNotFound when there are none.
	FirstLastDate(ctx context.Context, userID int64, kind domain.Kind) (*DateSpan, error)
}

// RateReader reads the persisted exchange-rate table.
type RateReader interface {
	// CurrencyRate returns domain.ErrNotFound when no row exists for code.
	CurrencyRate(ctx context.Context, code string) (*domain.CurrencyRate, error)
}

// UserReader reads profile data for the registration gate.
type UserReader interface {
	// User returns domain.ErrNotFound when the user has no profile record.
	User(ctx context.Context, userID int64) (*domain.User, error)

	// HasInitialBalanceMarker reports whether the user has a transaction in
	// the initial-balance category.
	HasInitialBalanceMarker(ctx context.Context, userID int64) (bool, error)
}

// TransactionWriter inserts ledger rows.
type TransactionWriter interface {
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (int64, error)
}

// ListReader serves the plain listing endpoints.
type ListReader interface {
	ListTransactions(ctx context.Context, userID int64, filter TransactionFilter) ([]*domain.Transaction, error)
	// ListDebts returns active debts, newest first.
	ListDebts(ctx context.Context, userID int64) ([]*domain.Debt, error)
	// ListReminders returns open reminders ordered by date and time.
	ListReminders(ctx context.Context, userID int64, limit int) ([]*domain.Reminder, error)
}

// Store is everything a backend provides.
type Store interface {
	LedgerReader
	RateReader
	UserReader
	TransactionWriter
	ListReader

	Ping(ctx context.Context) error
	Close() error
}
