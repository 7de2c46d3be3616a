package rates

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/metrics"
)

type fakeSource struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	err   error
	calls int
}

func (f *fakeSource) CurrencyRate(_ context.Context, code string) (*domain.CurrencyRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rates[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.CurrencyRate{Code: code, Rate: r}, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func TestProvider_BaseCurrencyIsOne(t *testing.T) {
	src := &fakeSource{}
	p := NewProvider(src, NewMemoryCache())

	r := p.Rate(context.Background(), "uzs")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1)))
	assert.False(t, r.Fallback)
	assert.Zero(t, src.Calls())
}

func TestProvider_TTLBoundary(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	src := &fakeSource{rates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(12750)}}
	p := NewProvider(src, NewMemoryCache(), WithTTL(300*time.Second), WithClock(clock.Now))
	ctx := context.Background()

	r := p.Rate(ctx, "USD")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12750)))
	assert.Equal(t, 1, src.Calls())

	// store moves, cache does not until the TTL elapses
	src.rates["USD"] = decimal.NewFromInt(12800)

	clock.Set(t0.Add(300*time.Second - time.Millisecond))
	r = p.Rate(ctx, "USD")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12750)))
	assert.Equal(t, 1, src.Calls(), "TTL-ε must be served from cache")

	clock.Set(t0.Add(300*time.Second + time.Millisecond))
	r = p.Rate(ctx, "USD")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12800)))
	assert.Equal(t, 2, src.Calls(), "TTL+ε must refresh exactly once")

	r = p.Rate(ctx, "USD")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12800)))
	assert.Equal(t, 2, src.Calls())
}

func TestProvider_StoreFailureFallsBackAndCaches(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	src := &fakeSource{err: errors.New("dial tcp: i/o timeout")}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	p := NewProvider(src, NewMemoryCache(), WithClock(clock.Now), WithMetrics(m))
	ctx := context.Background()

	tests := []struct {
		code string
		want int64
	}{
		{"USD", 12750},
		{"EUR", 13800},
		{"RUB", 135},
		{"TRY", 370},
		{"GBP", 1},
	}
	for _, tt := range tests {
		r := p.Rate(ctx, tt.code)
		assert.True(t, r.Value.Equal(decimal.NewFromInt(tt.want)), tt.code)
		assert.True(t, r.Fallback, tt.code)
	}
	assert.Equal(t, len(tests), src.Calls())

	// fallback entries are cached for the TTL window
	clock.Set(t0.Add(time.Minute))
	r := p.Rate(ctx, "USD")
	assert.True(t, r.Fallback)
	assert.Equal(t, len(tests), src.Calls())
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(m.RateLookups.WithLabelValues(metrics.RateFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLookups.WithLabelValues(metrics.RateHit)))
}

func TestProvider_MissingRowFallsBack(t *testing.T) {
	src := &fakeSource{rates: map[string]decimal.Decimal{}}
	p := NewProvider(src, NewMemoryCache())

	r := p.Rate(context.Background(), "EUR")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(13800)))
	assert.True(t, r.Fallback)
}

func TestProvider_NonPositiveRateFallsBack(t *testing.T) {
	src := &fakeSource{rates: map[string]decimal.Decimal{"USD": decimal.Zero}}
	p := NewProvider(src, NewMemoryCache())

	r := p.Rate(context.Background(), "USD")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12750)))
	assert.True(t, r.Fallback)
}

func TestProvider_NonUZSBaseCrossesThroughUZS(t *testing.T) {
	src := &fakeSource{rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(12750),
		"EUR": decimal.NewFromInt(13800),
	}}
	p := NewProvider(src, NewMemoryCache(), WithBaseCurrency("usd"))
	ctx := context.Background()

	assert.Equal(t, "USD", p.BaseCurrency())

	r := p.Rate(ctx, "EUR")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(13800).DivRound(decimal.NewFromInt(12750), 16)), r.Value.String())
	assert.False(t, r.Fallback)

	r = p.Rate(ctx, "UZS")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1).DivRound(decimal.NewFromInt(12750), 16)), r.Value.String())
	assert.False(t, r.Fallback)

	r = p.Rate(ctx, "usd")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1)))

	got, fallback := p.Convert(ctx, decimal.NewFromInt(12750), "UZS")
	assert.True(t, got.Equal(decimal.NewFromInt(1)), got.String())
	assert.False(t, fallback)

	got, _ = p.Convert(ctx, decimal.NewFromInt(100), "EUR")
	assert.True(t, got.Equal(decimal.NewFromInt(1380000).DivRound(decimal.NewFromInt(12750), 16)), got.String())
}

func TestProvider_NonUZSBaseFallsBackToCrossedDefaults(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	p := NewProvider(src, NewMemoryCache(), WithBaseCurrency("USD"))
	ctx := context.Background()

	r := p.Rate(ctx, "EUR")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(13800).DivRound(decimal.NewFromInt(12750), 16)), r.Value.String())
	assert.True(t, r.Fallback)

	r = p.Rate(ctx, "GBP")
	assert.True(t, r.Value.Equal(decimal.NewFromInt(1).DivRound(decimal.NewFromInt(12750), 16)), r.Value.String())
	assert.True(t, r.Fallback)
}

func TestProvider_CancelledLookupIsNotCached(t *testing.T) {
	src := &fakeSource{err: context.Canceled}
	cache := NewMemoryCache()
	p := NewProvider(src, cache)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := p.Rate(ctx, "USD")
	assert.True(t, r.Fallback)
	assert.Equal(t, 0, cache.Len())

	src.err = nil
	src.rates = map[string]decimal.Decimal{"USD": decimal.NewFromInt(12800)}

	r = p.Rate(context.Background(), "USD")
	assert.False(t, r.Fallback)
	assert.True(t, r.Value.Equal(decimal.NewFromInt(12800)))
	assert.Equal(t, 2, src.Calls())
}

func TestProvider_Convert(t *testing.T) {
	src := &fakeSource{rates: map[string]decimal.Decimal{"USD": decimal.NewFromInt(12750)}}
	p := NewProvider(src, NewMemoryCache())

	got, fallback := p.Convert(context.Background(), decimal.RequireFromString("100.50"), "USD")
	assert.True(t, got.Equal(decimal.RequireFromString("1281375")))
	assert.False(t, fallback)
}

func TestProvider_ConcurrentLookups(t *testing.T) {
	src := &fakeSource{rates: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(12750),
		"EUR": decimal.NewFromInt(13800),
	}}
	p := NewProvider(src, NewMemoryCache())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := "USD"
			if i%2 == 0 {
				code = "EUR"
			}
			r := p.Rate(context.Background(), code)
			assert.False(t, r.Fallback)
		}(i)
	}
	wg.Wait()
}

func TestMemoryCache_ReplacesWholesale(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	t0 := time.Now()

	c.Set(ctx, "USD", Entry{Rate: decimal.NewFromInt(1), FetchedAt: t0, Fallback: true})
	c.Set(ctx, "USD", Entry{Rate: decimal.NewFromInt(2), FetchedAt: t0.Add(time.Second)})

	e, ok := c.Get(ctx, "USD")
	assert.True(t, ok)
	assert.True(t, e.Rate.Equal(decimal.NewFromInt(2)))
	assert.False(t, e.Fallback)
	assert.Equal(t, 1, c.Len())
}

func TestEntry_Fresh(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := Entry{FetchedAt: t0}

	assert.True(t, e.Fresh(t0.Add(299*time.Second), 300*time.Second))
	assert.False(t, e.Fresh(t0.Add(300*time.Second), 300*time.Second))
}

func TestRedisCache_KeyIsUpperCased(t *testing.T) {
	c := NewRedisCache(nil, time.Minute, zerolog.Nop())
	assert.Equal(t, "rates:USD", c.key("usd"))
}

func TestRedisCache_LogsServerErrors(t *testing.T) {
	var buf bytes.Buffer
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache(client, time.Minute, zerolog.New(&buf))
	ctx := context.Background()

	_, ok := c.Get(ctx, "USD")
	assert.False(t, ok)
	c.Set(ctx, "USD", Entry{Rate: decimal.NewFromInt(12750), FetchedAt: time.Now()})

	assert.Contains(t, buf.String(), "Redis rate cache read failed")
	assert.Contains(t, buf.String(), "Redis rate cache write failed")
}
