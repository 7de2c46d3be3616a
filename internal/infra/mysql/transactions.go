package mysql

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

const defaultListLimit = 50

// InsertTransaction implements store.TransactionWriter and returns the new row id.
func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) (int64, error) {
	query := `
		INSERT INTO transactions
			(user_id, transaction_type, amount, currency, category, description, due_date, debt_direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var direction *string
	if tx.DebtDirection != nil {
		d := string(*tx.DebtDirection)
		direction = &d
	}

	var id int64
	err := s.withConn(ctx, "InsertTransaction", func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query,
			tx.UserID, string(tx.Kind), tx.Amount.String(), tx.Currency,
			tx.Category, tx.Description, tx.DueDate, direction, tx.CreatedAt,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	tx.ID = id
	return id, nil
}

// ListTransactions implements store.ListReader, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID int64, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	query := `
		SELECT id, user_id, transaction_type, amount, currency, category, description, due_date, debt_direction, created_at
		FROM transactions
		WHERE user_id = ?`
	args := []any{userID}
	if filter.Kind != nil {
		query += ` AND transaction_type = ?`
		args = append(args, string(*filter.Kind))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += `
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	out := []*domain.Transaction{}
	err := s.withConn(ctx, "ListTransactions", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				t                                domain.Transaction
				kind                             string
				category, description, direction sql.NullString
				due                              sql.NullTime
			)
			if err := rows.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.Currency,
				&category, &description, &due, &direction, &t.CreatedAt); err != nil {
				return err
			}
			t.Kind = domain.Kind(kind)
			t.Category = nullString(category)
			t.Description = nullString(description)
			if due.Valid {
				t.DueDate = &due.Time
			}
			if direction.Valid && direction.String != "" {
				d := domain.DebtDirection(direction.String)
				t.DebtDirection = &d
			}
			out = append(out, &t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDebts implements store.ListReader. When the schema has contacts the
// counterparty name comes from the linked contact.
func (s *Store) ListDebts(ctx context.Context, userID int64) ([]*domain.Debt, error) {
	query := `
		SELECT d.id, d.user_id, d.debt_type, d.amount, d.paid_amount, d.person_name, NULL, d.due_date, d.status, d.created_at
		FROM debts d
		WHERE d.user_id = ? AND d.status = 'active'
		ORDER BY d.created_at DESC`
	if s.caps.DebtContacts {
		query = `
		SELECT d.id, d.user_id, d.debt_type, d.amount, d.paid_amount, COALESCE(c.name, d.person_name), d.contact_id, d.due_date, d.status, d.created_at
		FROM debts d
		LEFT JOIN contacts c ON c.id = d.contact_id
		WHERE d.user_id = ? AND d.status = 'active'
		ORDER BY d.created_at DESC`
	}

	out := []*domain.Debt{}
	err := s.withConn(ctx, "ListDebts", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				d         domain.Debt
				paid      decimal.NullDecimal
				person    sql.NullString
				contactID sql.NullInt64
				due       sql.NullTime
			)
			if err := rows.Scan(&d.ID, &d.UserID, &d.DebtType, &d.Amount, &paid, &person,
				&contactID, &due, &d.Status, &d.CreatedAt); err != nil {
				return err
			}
			d.PaidAmount = decimal.Zero
			if paid.Valid {
				d.PaidAmount = paid.Decimal
			}
			d.PersonName = person.String
			if contactID.Valid {
				d.ContactID = &contactID.Int64
			}
			if due.Valid {
				d.DueDate = &due.Time
			}
			out = append(out, &d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListReminders implements store.ListReader.
func (s *Store) ListReminders(ctx context.Context, userID int64, limit int) ([]*domain.Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, user_id, title, amount, currency, reminder_date, reminder_time, is_completed, created_at
		FROM reminders
		WHERE user_id = ? AND is_completed = FALSE
		ORDER BY reminder_date ASC, reminder_time ASC
		LIMIT ?`

	out := []*domain.Reminder{}
	err := s.withConn(ctx, "ListReminders", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r            domain.Reminder
				amount       decimal.NullDecimal
				currency, at sql.NullString
			)
			if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &amount, &currency,
				&r.ReminderDate, &at, &r.IsCompleted, &r.CreatedAt); err != nil {
				return err
			}
			if amount.Valid {
				r.Amount = &amount.Decimal
			}
			r.Currency = nullString(currency)
			r.ReminderTime = nullString(at)
			out = append(out, &r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
