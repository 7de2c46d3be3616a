package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the profile record of a mini-app user. It is written by the
// registration flow and read-only here.
type User struct {
	UserID          int64
	Username        *string
	FirstName       *string
	Name            *string
	Source          *string
	AccountType     *string
	Phone           *string
	Tariff          string
	TariffExpiresAt *time.Time
}

// Identity is the caller identity extracted from a signed init-data payload.
// It lives for one request and is never persisted.
type Identity struct {
	UserID int64
	Fields map[string]string
	// Verified is false only when the payload was accepted in relaxed mode.
	Verified bool
}

// Debt is an active debt record.
type Debt struct {
	ID         int64
	UserID     int64
	DebtType   string
	Amount     decimal.Decimal
	PaidAmount decimal.Decimal
	PersonName string
	ContactID  *int64
	DueDate    *time.Time
	Status     string
	CreatedAt  time.Time
}

// Reminder is a pending user reminder.
type Reminder struct {
	ID           int64
	UserID       int64
	Title        string
	Amount       *decimal.Decimal
	Currency     *string
	ReminderDate time.Time
	ReminderTime *string
	IsCompleted  bool
	CreatedAt    time.Time
}
