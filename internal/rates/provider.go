// Package rates resolves currency exchange rates into the base currency with a
// TTL cache in front of the store and a static fallback table behind it.
package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/metrics"
)

// DefaultTTL is how long a fetched rate is served from the cache.
const DefaultTTL = 300 * time.Second

// DefaultBaseCurrency is the currency balances are reported in.
const DefaultBaseCurrency = "UZS"

// anchorCurrency is the currency stored rates are quoted in. Rates into any
// other base are crossed through it.
const anchorCurrency = "UZS"

// rateScale is the number of decimal places kept when crossing rates.
const rateScale = 16

// uzsDefaults is used when the store cannot produce a rate. Codes missing
// from the table map to 1.
var uzsDefaults = map[string]decimal.Decimal{
	"UZS": decimal.NewFromInt(1),
	"USD": decimal.NewFromInt(12750),
	"EUR": decimal.NewFromInt(13800),
	"RUB": decimal.NewFromInt(135),
	"TRY": decimal.NewFromInt(370),
}

// RateSource is the store primitive the provider reads from. Rates are
// quoted in UZS per unit of code.
type RateSource interface {
	CurrencyRate(ctx context.Context, code string) (*domain.CurrencyRate, error)
}

// Rate is a resolved conversion factor into the base currency.
type Rate struct {
	Value decimal.Decimal
	// Fallback is set when the value came from the static default table.
	Fallback bool
}

// Provider resolves rates through a Cache.
type Provider struct {
	source   RateSource
	cache    Cache
	ttl      time.Duration
	base     string
	now      func() time.Time
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Provider.
type Option func(*Provider)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) { p.ttl = ttl }
}

// WithBaseCurrency overrides DefaultBaseCurrency.
func WithBaseCurrency(code string) Option {
	return func(p *Provider) { p.base = strings.ToUpper(code) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the logger used to report store failures.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithMetrics records cache outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.metrics = m }
}

// NewProvider creates a rate provider reading from source through cache.
func NewProvider(source RateSource, cache Cache, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		cache:  cache,
		ttl:    DefaultTTL,
		base:   DefaultBaseCurrency,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BaseCurrency returns the code all conversions target.
func (p *Provider) BaseCurrency() string {
	return p.base
}

// Rate returns the factor converting one unit of code into the base currency.
// Stored rates are quoted in UZS, so any other base is crossed through it.
// Store failures never surface: the default table answers instead and the
// result is cached for one TTL window.
func (p *Provider) Rate(ctx context.Context, code string) Rate {
	num, den, fallback := p.cross(ctx, code)
	if den.Equal(decimal.NewFromInt(1)) {
		return Rate{Value: num, Fallback: fallback}
	}
	return Rate{Value: num.DivRound(den, rateScale), Fallback: fallback}
}

// Convert turns amount in code into the base currency.
func (p *Provider) Convert(ctx context.Context, amount decimal.Decimal, code string) (decimal.Decimal, bool) {
	num, den, fallback := p.cross(ctx, code)
	v := amount.Mul(num)
	if !den.Equal(decimal.NewFromInt(1)) {
		v = v.DivRound(den, rateScale)
	}
	return v, fallback
}

// cross returns the UZS rates of code and of the base currency.
func (p *Provider) cross(ctx context.Context, code string) (num, den decimal.Decimal, fallback bool) {
	one := decimal.NewFromInt(1)
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || code == p.base {
		return one, one, false
	}

	c := p.anchorRate(ctx, code)
	if p.base == anchorCurrency {
		return c.Value, one, c.Fallback
	}
	b := p.anchorRate(ctx, p.base)
	return c.Value, b.Value, c.Fallback || b.Fallback
}

// anchorRate resolves UZS per unit of code through the cache.
func (p *Provider) anchorRate(ctx context.Context, code string) Rate {
	if code == anchorCurrency {
		return Rate{Value: decimal.NewFromInt(1)}
	}

	now := p.now()
	if e, ok := p.cache.Get(ctx, code); ok && e.Fresh(now, p.ttl) {
		p.metrics.ObserveRateLookup(metrics.RateHit)
		return Rate{Value: e.Rate, Fallback: e.Fallback}
	}

	cr, err := p.source.CurrencyRate(ctx, code)
	if err == nil && !cr.Rate.IsPositive() {
		err = fmt.Errorf("non-positive rate %s for %s", cr.Rate, code)
	}
	if err != nil {
		value := fallbackRate(code)
		p.log.Warn().
			Err(err).
			Str("currency", code).
			Str("fallback_rate", value.String()).
			Msg("Currency rate lookup failed, using default")
		p.metrics.ObserveRateLookup(metrics.RateFallback)
		// Not cached once the caller has gone away.
		if ctx.Err() == nil {
			p.cache.Set(ctx, code, Entry{Rate: value, FetchedAt: now, Fallback: true})
		}
		return Rate{Value: value, Fallback: true}
	}

	p.metrics.ObserveRateLookup(metrics.RateMiss)
	p.cache.Set(ctx, code, Entry{Rate: cr.Rate, FetchedAt: now})
	return Rate{Value: cr.Rate}
}

func fallbackRate(code string) decimal.Decimal {
	if r, ok := uzsDefaults[code]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}
