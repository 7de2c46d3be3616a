package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/api/middleware"
	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

const (
	defaultListLimit     = 50
	defaultReminderLimit = 20
	maxListLimit         = 500
)

// RecordStore is the subset of the store the records endpoints use.
type RecordStore interface {
	store.ListReader
	store.TransactionWriter
}

// RecordsHandler serves plain listings of transactions, debts and reminders,
// plus transaction inserts when writes are enabled.
type RecordsHandler struct {
	store           RecordStore
	writesEnabled   bool
	defaultCurrency string
	loc             *time.Location
	now             func() time.Time
	log             zerolog.Logger
}

// NewRecordsHandler creates a new records handler. Inserted rows default to
// defaultCurrency and are stamped in loc.
func NewRecordsHandler(s RecordStore, writesEnabled bool, defaultCurrency string, loc *time.Location, log zerolog.Logger) *RecordsHandler {
	if loc == nil {
		loc = time.Local
	}
	return &RecordsHandler{
		store:           s,
		writesEnabled:   writesEnabled,
		defaultCurrency: defaultCurrency,
		loc:             loc,
		now:             time.Now,
		log:             log,
	}
}

// TransactionResponse is one ledger row.
type TransactionResponse struct {
	ID            int64   `json:"id"`
	Type          string  `json:"transaction_type"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Category      *string `json:"category"`
	Description   *string `json:"description"`
	DueDate       *string `json:"due_date,omitempty"`
	DebtDirection *string `json:"debt_direction,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// DebtResponse is one active debt.
type DebtResponse struct {
	ID         int64   `json:"id"`
	DebtType   string  `json:"debt_type"`
	Amount     float64 `json:"amount"`
	PaidAmount float64 `json:"paid_amount"`
	Remaining  float64 `json:"remaining"`
	PersonName string  `json:"person_name"`
	ContactID  *int64  `json:"contact_id,omitempty"`
	DueDate    *string `json:"due_date"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

// ReminderResponse is one open reminder.
type ReminderResponse struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Amount       *float64 `json:"amount"`
	Currency     *string  `json:"currency"`
	ReminderDate string   `json:"reminder_date"`
	ReminderTime *string  `json:"reminder_time"`
}

// Transactions handles GET and POST /api/transactions
func (h *RecordsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListTransactions(w, r)
	case http.MethodPost:
		h.CreateTransaction(w, r)
	default:
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// ListTransactions handles GET /api/transactions?type=&limit=50&offset=0
func (h *RecordsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := transactionFilter(r)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list transactions")
		return
	}

	txs, err := h.store.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list transactions")
		return
	}

	out := make([]TransactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = transactionResponse(tx)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": out,
		"count":        len(out),
	})
}

func transactionFilter(r *http.Request) (store.TransactionFilter, error) {
	var filter store.TransactionFilter

	if raw := r.URL.Query().Get("type"); raw != "" {
		kind := domain.Kind(raw)
		if !kind.Valid() {
			return filter, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidInput, raw)
		}
		filter.Kind = &kind
	}

	limit, err := listLimit(r, defaultListLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// listLimit reads the limit query parameter. Zero means the default and
// values above maxListLimit are capped.
func listLimit(r *http.Request, defaultValue int) (int, error) {
	limit, err := queryInt(r, "limit", defaultValue)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = defaultValue
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

// CreateTransaction handles POST /api/transactions
func (h *RecordsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !h.writesEnabled {
		middleware.WriteError(w, http.StatusForbidden, "Writes are disabled")
		return
	}

	var req domain.NewTransaction
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tx, err := req.ToTransaction(userID, h.defaultCurrency, h.now().In(h.loc))
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to create transaction")
		return
	}

	id, err := h.store.InsertTransaction(r.Context(), tx)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to create transaction")
		return
	}
	tx.ID = id

	h.log.Info().
		Int64("user_id", userID).
		Int64("transaction_id", id).
		Str("type", string(tx.Kind)).
		Msg("Transaction created")

	middleware.WriteJSON(w, http.StatusCreated, transactionResponse(tx))
}

// Debts handles GET /api/debts
func (h *RecordsHandler) Debts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	debts, err := h.store.ListDebts(r.Context(), userID)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list debts")
		return
	}

	out := make([]DebtResponse, len(debts))
	for i, d := range debts {
		out[i] = DebtResponse{
			ID:         d.ID,
			DebtType:   d.DebtType,
			Amount:     money(d.Amount),
			PaidAmount: money(d.PaidAmount),
			Remaining:  money(d.Amount.Sub(d.PaidAmount)),
			PersonName: d.PersonName,
			ContactID:  d.ContactID,
			DueDate:    formatDate(d.DueDate),
			Status:     d.Status,
			CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"debts": out,
		"count": len(out),
	})
}

// Reminders handles GET /api/reminders?limit=20
func (h *RecordsHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit, err := listLimit(r, defaultReminderLimit)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list reminders")
		return
	}

	reminders, err := h.store.ListReminders(r.Context(), userID, limit)
	if err != nil {
		writeFailure(w, r, h.log, err, "Failed to list reminders")
		return
	}

	out := make([]ReminderResponse, len(reminders))
	for i, rem := range reminders {
		resp := ReminderResponse{
			ID:           rem.ID,
			Title:        rem.Title,
			Currency:     rem.Currency,
			ReminderDate: rem.ReminderDate.Format("2006-01-02"),
			ReminderTime: rem.ReminderTime,
		}
		if rem.Amount != nil {
			v := money(*rem.Amount)
			resp.Amount = &v
		}
		out[i] = resp
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reminders": out,
		"count":     len(out),
	})
}

func transactionResponse(tx *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:          tx.ID,
		Type:        string(tx.Kind),
		Amount:      money(tx.Amount),
		Currency:    tx.Currency,
		Category:    tx.Category,
		Description: tx.Description,
		DueDate:     formatDate(tx.DueDate),
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.DebtDirection != nil {
		dir := string(*tx.DebtDirection)
		resp.DebtDirection = &dir
	}
	return resp
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
