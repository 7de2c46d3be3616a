package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// BalanceResult is the user's net worth over the whole history.
type BalanceResult struct {
	// Balance is converted income minus converted expense. Debt rows are excluded.
	Balance decimal.Decimal
	// CurrencyBalances is income minus expense per currency, in that currency's units.
	CurrencyBalances map[string]decimal.Decimal
	Degraded         bool
}

// StatisticsResult covers rows created since the start of today minus Days.
type StatisticsResult struct {
	Income   decimal.Decimal
	Expense  decimal.Decimal
	Net      decimal.Decimal
	Days     int
	Degraded bool
}

// SummaryResult combines the balance and windowed statistics.
type SummaryResult struct {
	Balance          decimal.Decimal
	CurrencyBalances map[string]decimal.Decimal
	Statistics       StatisticsResult
	Degraded         bool
}

// Balance sums every income and expense row of the user into the base currency.
func (a *Aggregator) Balance(ctx context.Context, userID int64) BalanceResult {
	res := BalanceResult{
		Balance:          decimal.Zero,
		CurrencyBalances: map[string]decimal.Decimal{},
	}

	groups, err := a.store.SumByKindCurrency(ctx, userID, time.Time{})
	if err != nil {
		a.degrade("balance", userID, err)
		res.Degraded = true
		return res
	}

	conv := a.newConversion(ctx)
	for _, g := range groups {
		var sign decimal.Decimal
		switch g.Kind {
		case domain.KindIncome:
			sign = decimal.NewFromInt(1)
		case domain.KindExpense:
			sign = decimal.NewFromInt(-1)
		default:
			continue
		}
		res.Balance = res.Balance.Add(conv.convert(g.Total, g.Currency).Mul(sign))
		res.CurrencyBalances[g.Currency] = res.CurrencyBalances[g.Currency].Add(g.Total.Mul(sign))
	}

	if conv.fallback {
		a.metrics.ObserveDegraded("balance")
		res.Degraded = true
	}
	return res
}

// Statistics sums converted income and expense over the last days days.
// Negative days are treated as zero, meaning today only.
func (a *Aggregator) Statistics(ctx context.Context, userID int64, days int) StatisticsResult {
	if days < 0 {
		days = 0
	}
	res := StatisticsResult{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Net:     decimal.Zero,
		Days:    days,
	}

	groups, err := a.store.SumByKindCurrency(ctx, userID, a.windowStart(days))
	if err != nil {
		a.degrade("statistics", userID, err)
		res.Degraded = true
		return res
	}

	conv := a.newConversion(ctx)
	for _, g := range groups {
		switch g.Kind {
		case domain.KindIncome:
			res.Income = res.Income.Add(conv.convert(g.Total, g.Currency))
		case domain.KindExpense:
			res.Expense = res.Expense.Add(conv.convert(g.Total, g.Currency))
		}
	}
	res.Net = res.Income.Sub(res.Expense)

	if conv.fallback {
		a.metrics.ObserveDegraded("statistics")
		res.Degraded = true
	}
	return res
}

// Summary returns Balance and Statistics together. The two figures come from
// separate reads.
func (a *Aggregator) Summary(ctx context.Context, userID int64, days int) SummaryResult {
	bal := a.Balance(ctx, userID)
	stats := a.Statistics(ctx, userID, days)
	return SummaryResult{
		Balance:          bal.Balance,
		CurrencyBalances: bal.CurrencyBalances,
		Statistics:       stats,
		Degraded:         bal.Degraded || stats.Degraded,
	}
}
