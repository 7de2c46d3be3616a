package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// DefaultTopLimit is the number of categories ranked when the caller gives none.
const DefaultTopLimit = 5

// CategoryRank is one (category, currency) expense group.
type CategoryRank struct {
	Category string
	// Total is converted into the base currency.
	Total decimal.Decimal
	// OriginalTotal is in Currency.
	OriginalTotal decimal.Decimal
	Currency      string
}

// TopCategoriesResult is ordered by Total, largest first.
type TopCategoriesResult struct {
	Categories []CategoryRank
	Days       int
	Degraded   bool
}

// CategoryBreakdownResult maps each category to its converted expense.
type CategoryBreakdownResult struct {
	Categories map[string]decimal.Decimal
	Days       int
	Degraded   bool
}

// TopExpenseCategories ranks the user's categorised expense groups of the last
// days days and keeps at most limit of them. Equal totals are ordered by
// category, then currency.
func (a *Aggregator) TopExpenseCategories(ctx context.Context, userID int64, limit, days int) TopCategoriesResult {
	if days < 0 {
		days = 0
	}
	if limit < 0 {
		limit = 0
	}
	res := TopCategoriesResult{Categories: []CategoryRank{}, Days: days}

	groups, err := a.store.SumByCategory(ctx, userID, domain.KindExpense, a.windowStart(days))
	if err != nil {
		a.degrade("top_categories", userID, err)
		res.Degraded = true
		return res
	}

	conv := a.newConversion(ctx)
	ranks := make([]CategoryRank, 0, len(groups))
	for _, g := range groups {
		if g.Category == "" {
			continue
		}
		ranks = append(ranks, CategoryRank{
			Category:      g.Category,
			Total:         conv.convert(g.Total, g.Currency),
			OriginalTotal: g.Total,
			Currency:      g.Currency,
		})
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		if c := ranks[i].Total.Cmp(ranks[j].Total); c != 0 {
			return c > 0
		}
		if ranks[i].Category != ranks[j].Category {
			return ranks[i].Category < ranks[j].Category
		}
		return ranks[i].Currency < ranks[j].Currency
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	res.Categories = ranks

	if conv.fallback {
		a.metrics.ObserveDegraded("top_categories")
		res.Degraded = true
	}
	return res
}

// ExpenseByCategory sums the user's converted expense of the last days days
// per category. Rows without a category are reported under
// domain.UncategorizedLabel.
func (a *Aggregator) ExpenseByCategory(ctx context.Context, userID int64, days int) CategoryBreakdownResult {
	if days < 0 {
		days = 0
	}
	res := CategoryBreakdownResult{Categories: map[string]decimal.Decimal{}, Days: days}

	groups, err := a.store.SumByCategory(ctx, userID, domain.KindExpense, a.windowStart(days))
	if err != nil {
		a.degrade("category_breakdown", userID, err)
		res.Degraded = true
		return res
	}

	conv := a.newConversion(ctx)
	for _, g := range groups {
		category := g.Category
		if category == "" {
			category = domain.UncategorizedLabel
		}
		res.Categories[category] = res.Categories[category].Add(conv.convert(g.Total, g.Currency))
	}

	if conv.fallback {
		a.metrics.ObserveDegraded("category_breakdown")
		res.Degraded = true
	}
	return res
}
