package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

// Period selects the bucket size of a trend series.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAuto  Period = "auto"
)

// Auto granularity thresholds, in calendar days between the first and last
// income row.
const (
	autoDayMaxSpan   = 30
	autoMonthMaxSpan = 365
)

// ParsePeriod parses a period name. An empty string means PeriodAuto.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodAuto, nil
	case PeriodDay, PeriodMonth, PeriodYear, PeriodAuto:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", domain.ErrInvalidInput, s)
	}
}

// TrendPoint is the converted income of one bucket.
type TrendPoint struct {
	Label string
	Value decimal.Decimal
}

// TrendResult is an income series with strictly ascending labels.
type TrendResult struct {
	Period   store.Granularity
	Points   []TrendPoint
	Degraded bool
}

// Labels returns the bucket labels in order.
func (r TrendResult) Labels() []string {
	out := make([]string, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.Label
	}
	return out
}

// Total is the sum of all bucket values.
func (r TrendResult) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range r.Points {
		sum = sum.Add(p.Value)
	}
	return sum
}

// Trend buckets the user's income by period. Under PeriodAuto the bucket size
// follows the span of the income history; a user without income gets an
// empty day series.
func (a *Aggregator) Trend(ctx context.Context, userID int64, period Period) TrendResult {
	g, err := a.granularity(ctx, userID, period)
	if err != nil {
		if isNotFound(err) {
			return TrendResult{Period: store.Day, Points: []TrendPoint{}}
		}
		a.degrade("trend", userID, err)
		return TrendResult{Period: store.Day, Points: []TrendPoint{}, Degraded: true}
	}

	res := TrendResult{Period: g, Points: []TrendPoint{}}
	buckets, err := a.store.SumByBucket(ctx, userID, domain.KindIncome, g)
	if err != nil {
		a.degrade("trend", userID, err)
		res.Degraded = true
		return res
	}

	conv := a.newConversion(ctx)
	byLabel := make(map[string]decimal.Decimal)
	for _, b := range buckets {
		byLabel[b.Bucket] = byLabel[b.Bucket].Add(conv.convert(b.Total, b.Currency))
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		res.Points = append(res.Points, TrendPoint{Label: label, Value: byLabel[label]})
	}

	if conv.fallback {
		a.metrics.ObserveDegraded("trend")
		res.Degraded = true
	}
	return res
}

func (a *Aggregator) granularity(ctx context.Context, userID int64, period Period) (store.Granularity, error) {
	switch period {
	case PeriodDay:
		return store.Day, nil
	case PeriodMonth:
		return store.Month, nil
	case PeriodYear:
		return store.Year, nil
	}

	span, err := a.store.FirstLastDate(ctx, userID, domain.KindIncome)
	if err != nil {
		return "", err
	}
	return autoGranularity(spanDays(span.First.In(a.loc), span.Last.In(a.loc))), nil
}

func autoGranularity(days int) store.Granularity {
	switch {
	case days <= autoDayMaxSpan:
		return store.Day
	case days <= autoMonthMaxSpan:
		return store.Month
	default:
		return store.Year
	}
}

// spanDays counts calendar days between the dates of first and last.
func spanDays(first, last time.Time) int {
	f := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, time.UTC)
	l := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC)
	d := int(l.Sub(f).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
