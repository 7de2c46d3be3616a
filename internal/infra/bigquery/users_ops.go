package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// UserRow represents a user profile record in BigQuery.
type UserRow struct {
	UserID          int64                  `bigquery:"user_id"`
	Username        bigquery.NullString    `bigquery:"username"`
	FirstName       bigquery.NullString    `bigquery:"first_name"`
	Name            bigquery.NullString    `bigquery:"name"`
	Source          bigquery.NullString    `bigquery:"source"`
	AccountType     bigquery.NullString    `bigquery:"account_type"`
	Phone           bigquery.NullString    `bigquery:"phone"`
	Tariff          bigquery.NullString    `bigquery:"tariff"`
	TariffExpiresAt bigquery.NullTimestamp `bigquery:"tariff_expires_at"`
}

func (row *UserRow) toDomain() *domain.User {
	u := &domain.User{
		UserID:      row.UserID,
		Username:    stringPtr(row.Username),
		FirstName:   stringPtr(row.FirstName),
		Name:        stringPtr(row.Name),
		Source:      stringPtr(row.Source),
		AccountType: stringPtr(row.AccountType),
		Phone:       stringPtr(row.Phone),
		Tariff:      "NONE",
	}
	if row.Tariff.Valid && row.Tariff.StringVal != "" {
		u.Tariff = row.Tariff.StringVal
	}
	if row.TariffExpiresAt.Valid {
		t := row.TariffExpiresAt.Timestamp
		u.TariffExpiresAt = &t
	}
	return u
}

// DebtRow represents an active debt record in BigQuery.
type DebtRow struct {
	ID         int64                  `bigquery:"id"`
	UserID     int64                  `bigquery:"user_id"`
	DebtType   string                 `bigquery:"debt_type"`
	Amount     *big.Rat               `bigquery:"amount"`
	PaidAmount *big.Rat               `bigquery:"paid_amount"`
	PersonName bigquery.NullString    `bigquery:"person_name"`
	DueDate    bigquery.NullDate      `bigquery:"due_date"`
	Status     string                 `bigquery:"status"`
	CreatedAt  bigquery.NullTimestamp `bigquery:"created_at"`
}

// ReminderRow represents a reminder record in BigQuery.
type ReminderRow struct {
	ID           int64               `bigquery:"id"`
	UserID       int64               `bigquery:"user_id"`
	Title        string              `bigquery:"title"`
	Amount       *big.Rat            `bigquery:"amount"`
	Currency     bigquery.NullString `bigquery:"currency"`
	ReminderDate civil.Date          `bigquery:"reminder_date"`
	ReminderTime bigquery.NullString `bigquery:"reminder_time"`
	IsCompleted  bool                `bigquery:"is_completed"`
	CreatedAt    time.Time           `bigquery:"created_at"`
}

// User implements store.UserReader.
func (r *Repository) User(ctx context.Context, userID int64) (*domain.User, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT user_id, username, first_name, name, source, account_type, phone, tariff, tariff_expires_at
		FROM %s
		WHERE user_id = @user_id
		LIMIT 1
	`, r.table(usersTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	var row UserRow
	if err := r.readOne(ctx, "User", q, &row); err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// HasInitialBalanceMarker implements store.UserReader.
func (r *Repository) HasInitialBalanceMarker(ctx context.Context, userID int64) (bool, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT COUNT(1) > 0 AS found
		FROM %s
		WHERE user_id = @user_id AND category = @category
	`, r.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "category", Value: domain.InitialBalanceCategory},
	}

	var row struct {
		Found bool `bigquery:"found"`
	}
	if err := r.readOne(ctx, "HasInitialBalanceMarker", q, &row); err != nil {
		return false, err
	}
	return row.Found, nil
}

// CurrencyRate implements store.RateReader.
func (r *Repository) CurrencyRate(ctx context.Context, code string) (*domain.CurrencyRate, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT currency_code, rate_to_uzs, updated_at
		FROM %s
		WHERE currency_code = @code
		LIMIT 1
	`, r.table(currencyRatesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "code", Value: code},
	}

	var row struct {
		Code      string                 `bigquery:"currency_code"`
		Rate      *big.Rat               `bigquery:"rate_to_uzs"`
		UpdatedAt bigquery.NullTimestamp `bigquery:"updated_at"`
	}
	if err := r.readOne(ctx, "CurrencyRate", q, &row); err != nil {
		return nil, err
	}
	if row.Rate == nil {
		return nil, classify("CurrencyRate", domain.ErrNotFound)
	}
	rate, err := ratToDecimal(row.Rate)
	if err != nil {
		return nil, classify("CurrencyRate", err)
	}
	out := &domain.CurrencyRate{Code: row.Code, Rate: rate}
	if row.UpdatedAt.Valid {
		out.FetchedAt = row.UpdatedAt.Timestamp
	}
	return out, nil
}

// ListDebts implements store.ListReader.
func (r *Repository) ListDebts(ctx context.Context, userID int64) ([]*domain.Debt, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT id, user_id, debt_type, amount, paid_amount, person_name, due_date, status, created_at
		FROM %s
		WHERE user_id = @user_id AND status = 'active'
		ORDER BY created_at DESC
	`, r.table(debtsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	loc := r.location()
	out := []*domain.Debt{}
	err := r.readAll(ctx, "ListDebts", q, func(it *bigquery.RowIterator) error {
		var row DebtRow
		if err := it.Next(&row); err != nil {
			return err
		}
		amount, err := ratToDecimal(row.Amount)
		if err != nil {
			return err
		}
		paid, err := ratToDecimal(row.PaidAmount)
		if err != nil {
			return err
		}
		d := &domain.Debt{
			ID:         row.ID,
			UserID:     row.UserID,
			DebtType:   row.DebtType,
			Amount:     amount,
			PaidAmount: paid,
			PersonName: row.PersonName.StringVal,
			Status:     row.Status,
		}
		if row.DueDate.Valid {
			due := row.DueDate.Date.In(loc)
			d.DueDate = &due
		}
		if row.CreatedAt.Valid {
			d.CreatedAt = row.CreatedAt.Timestamp
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListReminders implements store.ListReader.
func (r *Repository) ListReminders(ctx context.Context, userID int64, limit int) ([]*domain.Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.client.Query(fmt.Sprintf(`
		SELECT id, user_id, title, amount, currency, reminder_date, reminder_time, is_completed, created_at
		FROM %s
		WHERE user_id = @user_id AND is_completed = FALSE
		ORDER BY reminder_date ASC, reminder_time ASC
		LIMIT @limit
	`, r.table(remindersTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: limit},
	}

	loc := r.location()
	out := []*domain.Reminder{}
	err := r.readAll(ctx, "ListReminders", q, func(it *bigquery.RowIterator) error {
		var row ReminderRow
		if err := it.Next(&row); err != nil {
			return err
		}
		rem := &domain.Reminder{
			ID:           row.ID,
			UserID:       row.UserID,
			Title:        row.Title,
			Currency:     stringPtr(row.Currency),
			ReminderDate: row.ReminderDate.In(loc),
			ReminderTime: stringPtr(row.ReminderTime),
			IsCompleted:  row.IsCompleted,
			CreatedAt:    row.CreatedAt,
		}
		if row.Amount != nil {
			amount, err := ratToDecimal(row.Amount)
			if err != nil {
				return err
			}
			rem.Amount = &amount
		}
		out = append(out, rem)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
