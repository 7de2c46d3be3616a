package mysql

import (
	"context"
	"database/sql"

	"github.com/balansai/finance-miniapp/internal/domain"
)

// User implements store.UserReader.
func (s *Store) User(ctx context.Context, userID int64) (*domain.User, error) {
	query := `
		SELECT user_id, username, first_name, name, source, account_type, phone, tariff, tariff_expires_at
		FROM users
		WHERE user_id = ?`

	var (
		u                                                     domain.User
		username, firstName, name, source, accountType, phone sql.NullString
		tariff                                                sql.NullString
		tariffExpires                                         sql.NullTime
	)
	err := s.withConn(ctx, "User", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, userID).Scan(
			&u.UserID, &username, &firstName, &name, &source, &accountType, &phone, &tariff, &tariffExpires,
		)
	})
	if err != nil {
		return nil, err
	}

	u.Username = nullString(username)
	u.FirstName = nullString(firstName)
	u.Name = nullString(name)
	u.Source = nullString(source)
	u.AccountType = nullString(accountType)
	u.Phone = nullString(phone)
	u.Tariff = "NONE"
	if tariff.Valid && tariff.String != "" {
		u.Tariff = tariff.String
	}
	if tariffExpires.Valid {
		u.TariffExpiresAt = &tariffExpires.Time
	}
	return &u, nil
}

// HasInitialBalanceMarker implements store.UserReader.
func (s *Store) HasInitialBalanceMarker(ctx context.Context, userID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE user_id = ? AND category = ?
		)`

	var exists bool
	err := s.withConn(ctx, "HasInitialBalanceMarker", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, query, userID, domain.InitialBalanceCategory).Scan(&exists)
	})
	if err != nil {
		return false, err
	}
	return exists, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
