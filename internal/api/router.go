// Package api wires the HTTP handlers and middleware of the mini-app backend.
package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/api/handlers"
	"github.com/balansai/finance-miniapp/internal/api/middleware"
	"github.com/balansai/finance-miniapp/internal/auth"
	"github.com/balansai/finance-miniapp/internal/ledger"
	"github.com/balansai/finance-miniapp/internal/metrics"
	"github.com/balansai/finance-miniapp/internal/onboarding"
	"github.com/balansai/finance-miniapp/internal/store"
)

// Deps are the components the router serves.
type Deps struct {
	Store      store.Store
	Aggregator *ledger.Aggregator
	Gate       *onboarding.Gate
	Resolver   *auth.Resolver
	Metrics    *metrics.Metrics

	WritesEnabled bool
	Location      *time.Location
}

// NewRouter registers every route and wraps the mux in the middleware chain.
func NewRouter(d Deps, log zerolog.Logger) http.Handler {
	ledgerHandler := handlers.NewLedgerHandler(d.Aggregator, log)
	profileHandler := handlers.NewProfileHandler(d.Store, d.Gate, d.Aggregator, log)
	recordsHandler := handlers.NewRecordsHandler(d.Store, d.WritesEnabled, d.Aggregator.BaseCurrency(), d.Location, log)
	healthHandler := handlers.NewHealthHandler(d.Store, log)

	mux := http.NewServeMux()
	handlers.Register(mux, ledgerHandler, profileHandler, recordsHandler, healthHandler)
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics.Handler())
	}

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.RequestID,
		middleware.Metrics(d.Metrics),
		middleware.CORS,
		middleware.Auth(d.Resolver, log),
	)
}
