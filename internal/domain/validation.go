package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// NewTransaction is the validated input for inserting a ledger row.
type NewTransaction struct {
	Kind          string  `json:"transaction_type" validate:"required,oneof=income expense debt"`
	Amount        string  `json:"amount" validate:"required,numeric"`
	Currency      string  `json:"currency" validate:"omitempty,len=3,alpha"`
	Category      *string `json:"category" validate:"omitempty,max=64"`
	Description   *string `json:"description" validate:"omitempty,max=255"`
	DueDate       *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	DebtDirection *string `json:"debt_direction" validate:"omitempty,oneof=lent borrowed"`
}

var validate = validator.New()

// ToTransaction validates the input and builds a Transaction for userID.
// defaultCurrency is used when the input leaves the currency empty.
func (n NewTransaction) ToTransaction(userID int64, defaultCurrency string, now time.Time) (*Transaction, error) {
	if err := validate.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
	}

	amount, err := decimal.NewFromString(n.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount: %v", ErrInvalidInput, err)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}

	currency := strings.ToUpper(n.Currency)
	if currency == "" {
		currency = defaultCurrency
	}

	tx := &Transaction{
		UserID:      userID,
		Kind:        Kind(n.Kind),
		Amount:      amount,
		Currency:    currency,
		Category:    trimmed(n.Category),
		Description: trimmed(n.Description),
		CreatedAt:   now,
	}

	if n.DueDate != nil && *n.DueDate != "" {
		due, err := time.ParseInLocation("2006-01-02", *n.DueDate, now.Location())
		if err != nil {
			return nil, fmt.Errorf("%w: due_date: %v", ErrInvalidInput, err)
		}
		tx.DueDate = &due
	}

	if n.DebtDirection != nil && *n.DebtDirection != "" {
		dir := DebtDirection(*n.DebtDirection)
		tx.DebtDirection = &dir
	} else if tx.Kind == KindDebt {
		return nil, fmt.Errorf("%w: debt_direction is required for debt rows", ErrInvalidInput)
	}

	return tx, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
