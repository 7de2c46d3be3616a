package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/api/middleware"
	"github.com/balansai/finance-miniapp/internal/ledger"
)

// LedgerHandler serves the aggregated ledger views.
type LedgerHandler struct {
	agg *ledger.Aggregator
	log zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(agg *ledger.Aggregator, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{agg: agg, log: log}
}

// BalanceResponse is the body of GET /api/balance.
type BalanceResponse struct {
	Balance          float64            `json:"balance"`
	CurrencyBalances map[string]float64 `json:"currency_balances"`
	BaseCurrency     string             `json:"base_currency"`
	Degraded         bool               `json:"degraded"`
}

// StatisticsResponse is the body of GET /api/statistics.
type StatisticsResponse struct {
	Income   float64 `json:"income"`
	Expense  float64 `json:"expense"`
	Balance  float64 `json:"balance"`
	Days     int     `json:"days"`
	Degraded bool    `json:"degraded"`
}

// TrendPointResponse is one bucket of a trend series.
type TrendPointResponse struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// TrendResponse is the body of GET /api/trend. Labels and Values are the
// chart-ready split of Points.
type TrendResponse struct {
	Period   string               `json:"period"`
	Labels   []string             `json:"labels"`
	Values   []float64            `json:"values"`
	Points   []TrendPointResponse `json:"points"`
	Degraded bool                 `json:"degraded"`
}

// CategoryResponse is one entry of the top categories list.
type CategoryResponse struct {
	Category       string  `json:"category"`
	Amount         float64 `json:"amount"`
	OriginalAmount float64 `json:"original_amount"`
	Currency       string  `json:"currency"`
}

// TopCategoriesResponse is the body of GET /api/categories/top.
type TopCategoriesResponse struct {
	Categories []CategoryResponse `json:"categories"`
	Days       int                `json:"days"`
	Degraded   bool               `json:"degraded"`
}

// BreakdownResponse is the body of GET /api/categories/breakdown.
type BreakdownResponse struct {
	Categories map[string]float64 `json:"categories"`
	Days       int                `json:"days"`
	Degraded   bool               `json:"degraded"`
}

// Balance handles GET /api/balance
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	res := h.agg.Balance(r.Context(), userID)
	middleware.WriteJSON(w, http.StatusOK, BalanceResponse{
		Balance:          money(res.Balance),
		CurrencyBalances: moneyMap(res.CurrencyBalances),
		BaseCurrency:     h.agg.BaseCurrency(),
		Degraded:         res.Degraded,
	})
}

// Statistics handles GET /api/statistics?days=30
func (h *LedgerHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days", ledger.DefaultDays)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to compute statistics")
		return
	}

	res := h.agg.Statistics(r.Context(), userID, days)
	middleware.WriteJSON(w, http.StatusOK, statisticsResponse(res))
}

func statisticsResponse(res ledger.StatisticsResult) StatisticsResponse {
	return StatisticsResponse{
		Income:   money(res.Income),
		Expense:  money(res.Expense),
		Balance:  money(res.Net),
		Days:     res.Days,
		Degraded: res.Degraded,
	}
}

// Trend handles GET /api/trend?period=auto
func (h *LedgerHandler) Trend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	period, err := ledger.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to compute trend")
		return
	}

	res := h.agg.Trend(r.Context(), userID, period)
	resp := TrendResponse{
		Period:   string(res.Period),
		Labels:   res.Labels(),
		Values:   make([]float64, len(res.Points)),
		Points:   make([]TrendPointResponse, len(res.Points)),
		Degraded: res.Degraded,
	}
	for i, p := range res.Points {
		resp.Values[i] = money(p.Value)
		resp.Points[i] = TrendPointResponse{Label: p.Label, Value: money(p.Value)}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// TopCategories handles GET /api/categories/top?limit=5&days=30
func (h *LedgerHandler) TopCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", ledger.DefaultTopLimit)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to rank categories")
		return
	}
	days, err := queryInt(r, "days", ledger.DefaultDays)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to rank categories")
		return
	}

	res := h.agg.TopExpenseCategories(r.Context(), userID, limit, days)
	resp := TopCategoriesResponse{
		Categories: make([]CategoryResponse, len(res.Categories)),
		Days:       res.Days,
		Degraded:   res.Degraded,
	}
	for i, c := range res.Categories {
		resp.Categories[i] = CategoryResponse{
			Category:       c.Category,
			Amount:         money(c.Total),
			OriginalAmount: money(c.OriginalTotal),
			Currency:       c.Currency,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Breakdown handles GET /api/categories/breakdown?days=30
func (h *LedgerHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	days, err := queryInt(r, "days", ledger.DefaultDays)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to compute breakdown")
		return
	}

	res := h.agg.ExpenseByCategory(r.Context(), userID, days)
	middleware.WriteJSON(w, http.StatusOK, BreakdownResponse{
		Categories: moneyMap(res.Categories),
		Days:       res.Days,
		Degraded:   res.Degraded,
	})
}
