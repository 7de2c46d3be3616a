// Package ledger turns a user's transaction rows into balances, windowed
// statistics, trend series and category rankings in the base currency.
//
// All accumulation is exact decimal arithmetic. Each (grouping key, currency)
// total is converted once. Store failures never propagate: the operation
// returns a zero-valued result of the expected shape with Degraded set, and
// the failure is logged and counted.
//
// Operations issue independent reads without a shared transaction, so a write
// landing between two reads can make a combined result (Summary) reflect two
// slightly different states of the ledger.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/metrics"
	"github.com/balansai/finance-miniapp/internal/rates"
	"github.com/balansai/finance-miniapp/internal/store"
)

// DefaultDays is the statistics window used when the caller gives none.
const DefaultDays = 30

// Converter resolves exchange rates into the base currency.
type Converter interface {
	Rate(ctx context.Context, code string) rates.Rate
	BaseCurrency() string
}

// Aggregator computes ledger views for one user at a time. It is safe for
// concurrent use.
type Aggregator struct {
	store   store.LedgerReader
	rates   Converter
	now     func() time.Time
	loc     *time.Location
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLocation sets the zone that defines calendar days. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// WithLogger sets the logger degraded results are reported to.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// WithMetrics counts degraded results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an Aggregator reading rows from s and rates from r.
func NewAggregator(s store.LedgerReader, r Converter, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: s,
		rates: r,
		now:   time.Now,
		loc:   time.Local,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseCurrency is the currency every converted figure is expressed in.
func (a *Aggregator) BaseCurrency() string {
	return a.rates.BaseCurrency()
}

// windowStart returns the start of today minus days, in the aggregator's zone.
func (a *Aggregator) windowStart(days int) time.Time {
	now := a.now().In(a.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	return today.AddDate(0, 0, -days)
}

// degrade reports a swallowed failure.
func (a *Aggregator) degrade(op string, userID int64, err error) {
	a.log.Error().
		Err(err).
		Str("operation", op).
		Int64("user_id", userID).
		Msg("Ledger aggregation degraded")
	a.metrics.ObserveDegraded(op)
}

// conversion converts totals for one operation and remembers whether any
// rate came from the default table.
type conversion struct {
	ctx      context.Context
	rates    Converter
	fallback bool
}

func (a *Aggregator) newConversion(ctx context.Context) *conversion {
	return &conversion{ctx: ctx, rates: a.rates}
}

func (c *conversion) convert(amount decimal.Decimal, currency string) decimal.Decimal {
	r := c.rates.Rate(c.ctx, currency)
	if r.Fallback {
		c.fallback = true
	}
	return amount.Mul(r.Value)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
