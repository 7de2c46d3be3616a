package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/api/middleware"
	"github.com/balansai/finance-miniapp/internal/auth"
	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/logger"
)

// requireUser returns the caller's user id, writing a 401 when the request
// carries no identity.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id.UserID == 0 {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return 0, false
	}
	return id.UserID, true
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
	}
	return n, nil
}

// writeFailure maps a domain error onto a response. Store failures are
// logged to the request logger, or to log outside the middleware chain, and
// reported without detail.
func writeFailure(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		l := logger.FromContextOr(r.Context(), log)
		l.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func moneyMap(in map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = money(v)
	}
	return out
}

// only rejects every method but the given ones with 405.
func only(h http.HandlerFunc, methods ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
