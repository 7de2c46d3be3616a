package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

func newMockStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, opts...), mock
}

func TestSumByKindCurrency(t *testing.T) {
	since := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		since     time.Time
		setupMock func(sqlmock.Sqlmock)
		want      []store.GroupTotal
		wantErr   error
	}{
		{
			name: "whole history",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`GROUP BY transaction_type, currency`).
					WithArgs(int64(1)).
					WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "currency", "total"}).
						AddRow("income", "USD", "100.50").
						AddRow("expense", "UZS", "50000"))
			},
			want: []store.GroupTotal{
				{Kind: domain.KindIncome, Currency: "USD", Total: decimal.RequireFromString("100.50")},
				{Kind: domain.KindExpense, Currency: "UZS", Total: decimal.NewFromInt(50000)},
			},
		},
		{
			name:  "window",
			since: since,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`created_at >= \?`).
					WithArgs(int64(1), since).
					WillReturnRows(sqlmock.NewRows([]string{"transaction_type", "currency", "total"}))
			},
		},
		{
			name: "driver error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM transactions`).WillReturnError(sql.ErrConnDone)
			},
			wantErr: domain.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			got, err := s.SumByKindCurrency(context.Background(), 1, tt.since)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Len(t, got, len(tt.want))
				for i := range tt.want {
					assert.Equal(t, tt.want[i].Kind, got[i].Kind)
					assert.Equal(t, tt.want[i].Currency, got[i].Currency)
					assert.True(t, tt.want[i].Total.Equal(got[i].Total))
				}
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSumByCategory(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`COALESCE\(category, ''\)`).
		WithArgs(int64(3), "expense", since).
		WillReturnRows(sqlmock.NewRows([]string{"cat", "currency", "total"}).
			AddRow("food", "UZS", "12000.25").
			AddRow("", "USD", "3"))

	got, err := s.SumByCategory(context.Background(), 3, domain.KindExpense, since)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "food", got[0].Category)
	assert.True(t, got[0].Total.Equal(decimal.RequireFromString("12000.25")))
	assert.Equal(t, "", got[1].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumByBucket(t *testing.T) {
	tests := []struct {
		g      store.Granularity
		format string
	}{
		{store.Day, "%Y-%m-%d"},
		{store.Month, "%Y-%m"},
		{store.Year, "%Y"},
	}
	for _, tt := range tests {
		t.Run(string(tt.g), func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectQuery(`DATE_FORMAT\(created_at, \?\)`).
				WithArgs(tt.format, int64(1), "income").
				WillReturnRows(sqlmock.NewRows([]string{"bucket", "currency", "total"}).
					AddRow("2025", "USD", "1"))

			got, err := s.SumByBucket(context.Background(), 1, domain.KindIncome, tt.g)

			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "2025", got[0].Bucket)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFirstLastDate(t *testing.T) {
	t.Run("span", func(t *testing.T) {
		s, mock := newMockStore(t)
		first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
		last := time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`SELECT MIN\(created_at\), MAX\(created_at\)`).
			WithArgs(int64(1), "income").
			WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(first, last))

		span, err := s.FirstLastDate(context.Background(), 1, domain.KindIncome)

		require.NoError(t, err)
		assert.Equal(t, first, span.First)
		assert.Equal(t, last, span.Last)
	})

	t.Run("no rows", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SELECT MIN\(created_at\), MAX\(created_at\)`).
			WillReturnRows(sqlmock.NewRows([]string{"min", "max"}).AddRow(nil, nil))

		_, err := s.FirstLastDate(context.Background(), 1, domain.KindIncome)

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, errors.Is(err, domain.ErrStoreUnavailable))
	})
}

func TestCurrencyRate(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := newMockStore(t)
		updated := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`FROM currency_rates`).
			WithArgs("USD").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_uzs", "updated_at"}).
				AddRow("USD", "12750.00", updated))

		r, err := s.CurrencyRate(context.Background(), "USD")

		require.NoError(t, err)
		assert.True(t, r.Rate.Equal(decimal.NewFromInt(12750)))
		assert.Equal(t, updated, r.FetchedAt)
	})

	t.Run("missing row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM currency_rates`).
			WithArgs("XYZ").
			WillReturnRows(sqlmock.NewRows([]string{"currency_code", "rate_to_uzs", "updated_at"}))

		_, err := s.CurrencyRate(context.Background(), "XYZ")

		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM users`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "username", "first_name", "name", "source", "account_type", "phone", "tariff", "tariff_expires_at",
		}).AddRow(int64(7), "alice", "Alice", "Alice", "ads", "personal", nil, nil, nil))

	u, err := s.User(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, int64(7), u.UserID)
	require.NotNil(t, u.Name)
	assert.Equal(t, "Alice", *u.Name)
	assert.Nil(t, u.Phone)
	assert.Equal(t, "NONE", u.Tariff)
	assert.Nil(t, u.TariffExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM users`).WillReturnError(sql.ErrNoRows)

	_, err := s.User(context.Background(), 7)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHasInitialBalanceMarker(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(7), domain.InitialBalanceCategory).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HasInitialBalanceMarker(context.Background(), 7)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	category := "food"
	tx := &domain.Transaction{
		UserID:    7,
		Kind:      domain.KindExpense,
		Amount:    decimal.RequireFromString("15000.50"),
		Currency:  "UZS",
		Category:  &category,
		CreatedAt: created,
	}
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(int64(7), "expense", "15000.5", "UZS", "food", nil, nil, nil, created).
		WillReturnResult(sqlmock.NewResult(42, 1))

	id, err := s.InsertTransaction(context.Background(), tx)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), tx.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTransactions(t *testing.T) {
	s, mock := newMockStore(t)
	kind := domain.KindIncome
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`AND transaction_type = \?`).
		WithArgs(int64(7), "income", int64(50), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "transaction_type", "amount", "currency", "category", "description", "due_date", "debt_direction", "created_at",
		}).AddRow(int64(1), int64(7), "income", "100", "USD", "salary", nil, nil, nil, created))

	got, err := s.ListTransactions(context.Background(), 7, store.TransactionFilter{Kind: &kind})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.KindIncome, got[0].Kind)
	require.NotNil(t, got[0].Category)
	assert.Equal(t, "salary", *got[0].Category)
	assert.Nil(t, got[0].Description)
	assert.Nil(t, got[0].DebtDirection)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDebts(t *testing.T) {
	columns := []string{"id", "user_id", "debt_type", "amount", "paid_amount", "person_name", "contact_id", "due_date", "status", "created_at"}
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	t.Run("legacy schema", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM debts d\s+WHERE`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(1), int64(7), "lent", "500", nil, "Bob", nil, nil, "active", created))

		got, err := s.ListDebts(context.Background(), 7)

		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Bob", got[0].PersonName)
		assert.True(t, got[0].PaidAmount.IsZero())
		assert.Nil(t, got[0].ContactID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("contacts schema", func(t *testing.T) {
		s, mock := newMockStore(t, WithCapabilities(Capabilities{DebtContacts: true}))
		mock.ExpectQuery(`LEFT JOIN contacts`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(1), int64(7), "borrowed", "500", "100", "Carol", int64(9), nil, "active", created))

		got, err := s.ListDebts(context.Background(), 7)

		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Carol", got[0].PersonName)
		require.NotNil(t, got[0].ContactID)
		assert.Equal(t, int64(9), *got[0].ContactID)
		assert.True(t, got[0].PaidAmount.Equal(decimal.NewFromInt(100)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListReminders(t *testing.T) {
	s, mock := newMockStore(t)
	date := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	created := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM reminders`).
		WithArgs(int64(7), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "title", "amount", "currency", "reminder_date", "reminder_time", "is_completed", "created_at",
		}).AddRow(int64(1), int64(7), "Rent", "3000000", "UZS", date, []byte("09:30:00"), false, created))

	got, err := s.ListReminders(context.Background(), 7, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Rent", got[0].Title)
	require.NotNil(t, got[0].ReminderTime)
	assert.Equal(t, "09:30:00", *got[0].ReminderTime)
	require.NotNil(t, got[0].Amount)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(3000000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProbeCapabilities(t *testing.T) {
	tests := []struct {
		name     string
		tables   int
		columns  int
		expected bool
	}{
		{"contacts present", 1, 1, true},
		{"no contacts table", 0, 1, false},
		{"no contact column", 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).
				WithArgs("contacts").
				WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(tt.tables)))
			mock.ExpectQuery(`INFORMATION_SCHEMA.COLUMNS`).
				WithArgs("debts", "contact_id").
				WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(tt.columns)))

			caps, err := ProbeCapabilities(context.Background(), db)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, caps.DebtContacts)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestProbeCapabilities_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`INFORMATION_SCHEMA.TABLES`).WillReturnError(sql.ErrConnDone)

	_, err = ProbeCapabilities(context.Background(), db)

	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	assert.NoError(t, New(db).Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfig_DSN(t *testing.T) {
	loc := time.FixedZone("UZT", 5*60*60)
	c := Config{
		Host:         "db",
		Port:         3306,
		User:         "balans",
		Password:     "secret",
		Database:     "balans",
		Location:     loc,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	dsn := c.DSN()

	assert.Contains(t, dsn, "balans:secret@tcp(db:3306)/balans")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")
	assert.Contains(t, dsn, "readTimeout=5s")
	assert.Contains(t, dsn, "writeTimeout=5s")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
