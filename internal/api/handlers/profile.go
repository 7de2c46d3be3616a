package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/api/middleware"
	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/ledger"
	"github.com/balansai/finance-miniapp/internal/onboarding"
	"github.com/balansai/finance-miniapp/internal/store"
)

// defaultDisplayName is shown for users who never set a name.
const defaultDisplayName = "Xojayin"

// ProfileHandler serves the user profile and registration status.
type ProfileHandler struct {
	users store.UserReader
	gate  *onboarding.Gate
	agg   *ledger.Aggregator
	log   zerolog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(users store.UserReader, gate *onboarding.Gate, agg *ledger.Aggregator, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, gate: gate, agg: agg, log: log}
}

// UserResponse is the body of GET /api/user.
type UserResponse struct {
	UserID             int64              `json:"user_id"`
	Username           *string            `json:"username"`
	FirstName          *string            `json:"first_name"`
	Name               string             `json:"name"`
	Tariff             string             `json:"tariff"`
	TariffExpiresAt    *string            `json:"tariff_expires_at"`
	Balance            float64            `json:"balance"`
	Income             float64            `json:"income"`
	Expense            float64            `json:"expense"`
	CurrencyBalances   map[string]float64 `json:"currency_balances"`
	RegistrationStatus string             `json:"registration_status"`
	Degraded           bool               `json:"degraded"`
}

// RegistrationResponse is the body of GET /api/registration.
type RegistrationResponse struct {
	Status   string `json:"status"`
	Complete bool   `json:"complete"`
}

// User handles GET /api/user
func (h *ProfileHandler) User(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	u, err := h.users.User(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to load user")
		return
	}

	status, err := h.gate.Status(ctx, userID)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to load user")
		return
	}

	summary := h.agg.Summary(ctx, userID, ledger.DefaultDays)

	resp := UserResponse{
		UserID:             u.UserID,
		Username:           u.Username,
		FirstName:          u.FirstName,
		Name:               defaultDisplayName,
		Tariff:             u.Tariff,
		Balance:            money(summary.Balance),
		Income:             money(summary.Statistics.Income),
		Expense:            money(summary.Statistics.Expense),
		CurrencyBalances:   moneyMap(summary.CurrencyBalances),
		RegistrationStatus: string(status),
		Degraded:           summary.Degraded,
	}
	if u.Name != nil && *u.Name != "" {
		resp.Name = *u.Name
	}
	if u.TariffExpiresAt != nil {
		s := u.TariffExpiresAt.Format(time.RFC3339)
		resp.TariffExpiresAt = &s
	}

	middleware.WriteJSON(w, http.StatusOK, resp)
}

// Registration handles GET /api/registration
func (h *ProfileHandler) Registration(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	status, err := h.gate.Status(r.Context(), userID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to check registration")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, RegistrationResponse{
		Status:   string(status),
		Complete: status.Complete(),
	})
}
