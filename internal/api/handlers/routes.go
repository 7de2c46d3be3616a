package handlers

import "net/http"

// Register mounts the API routes on mux.
func Register(mux *http.ServeMux, l *LedgerHandler, p *ProfileHandler, rec *RecordsHandler, h *HealthHandler) {
	// Profile
	mux.HandleFunc("/api/user", only(p.User, http.MethodGet))
	mux.HandleFunc("/api/registration", only(p.Registration, http.MethodGet))

	// Aggregates
	mux.HandleFunc("/api/balance", only(l.Balance, http.MethodGet))
	mux.HandleFunc("/api/statistics", only(l.Statistics, http.MethodGet))
	mux.HandleFunc("/api/trend", only(l.Trend, http.MethodGet))
	mux.HandleFunc("/api/categories/top", only(l.TopCategories, http.MethodGet))
	mux.HandleFunc("/api/categories/breakdown", only(l.Breakdown, http.MethodGet))

	// Records
	mux.HandleFunc("/api/transactions", only(rec.Transactions, http.MethodGet, http.MethodPost))
	mux.HandleFunc("/api/debts", only(rec.Debts, http.MethodGet))
	mux.HandleFunc("/api/reminders", only(rec.Reminders, http.MethodGet))

	// Health check endpoint
	mux.HandleFunc("/health", only(h.Health, http.MethodGet))
}
