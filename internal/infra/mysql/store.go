package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

// DefaultTimeout bounds each store call, connection acquisition included.
const DefaultTimeout = 5 * time.Second

// Store is the MySQL implementation of store.Store.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	caps    Capabilities
}

// Option configures a Store.
type Option func(*Store)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithCapabilities sets the schema features probed at startup.
func WithCapabilities(c Capabilities) Option {
	return func(s *Store) { s.caps = c }
}

// New wraps an open pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the pool for migrations and stats.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Capabilities returns the schema features the store was built with.
func (s *Store) Capabilities() Capabilities {
	return s.caps
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, "Ping", func(ctx context.Context, conn *sql.Conn) error {
		return conn.PingContext(ctx)
	})
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withConn runs fn on one pooled connection under the store timeout. The
// connection is returned to the pool on every path.
func (s *Store) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquiring connection: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	defer conn.Close()

	if err := fn(ctx, conn); err != nil {
		return classify(op, err)
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
}

var _ store.Store = (*Store)(nil)
