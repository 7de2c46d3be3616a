// Package bigquery implements the store contracts on a BigQuery dataset. It
// serves deployments that keep the ledger in the analytics warehouse.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/balansai/finance-miniapp/internal/domain"
	"github.com/balansai/finance-miniapp/internal/store"
)

const (
	transactionsTable  = "transactions"
	currencyRatesTable = "currency_rates"
	usersTable         = "users"
	debtsTable         = "debts"
	remindersTable     = "reminders"
	dateFormat         = "2006-01-02"
)

// Repository is the BigQuery implementation of store.Store. It holds one
// shared client for all operations.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	timezone  string
	timeout   time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithTimezone sets the IANA zone used to cut calendar buckets. Defaults to UTC.
func WithTimezone(name string) Option {
	return func(r *Repository) { r.timezone = name }
}

// WithTimeout bounds every query. Defaults to 5s.
func WithTimeout(d time.Duration) Option {
	return func(r *Repository) { r.timeout = d }
}

// NewRepository creates a client for projectID and wraps it.
func NewRepository(ctx context.Context, projectID, datasetID string, opts ...Option) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID, opts...), nil
}

// NewRepositoryWithClient wraps an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string, opts ...Option) *Repository {
	r := &Repository{
		client:    client,
		datasetID: datasetID,
		timezone:  "UTC",
		timeout:   5 * time.Second,
	}
	if client != nil {
		r.projectID = client.Project()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks that the dataset is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.client.DatasetInProject(r.projectID, r.datasetID).Metadata(ctx); err != nil {
		return classify("Ping", err)
	}
	return nil
}

// table returns the fully qualified, backquoted name of a dataset table.
func (r *Repository) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", r.projectID, r.datasetID, name)
}

// readAll runs q and decodes every row with next.
func (r *Repository) readAll(ctx context.Context, op string, q *bigquery.Query, next func(it *bigquery.RowIterator) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	it, err := q.Read(ctx)
	if err != nil {
		return classify(op, fmt.Errorf("query read: %w", err))
	}
	for {
		err := next(it)
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return classify(op, fmt.Errorf("iter next: %w", err))
		}
	}
}

// readOne decodes the first row of q into dst, or returns domain.ErrNotFound.
func (r *Repository) readOne(ctx context.Context, op string, q *bigquery.Query, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	it, err := q.Read(ctx)
	if err != nil {
		return classify(op, fmt.Errorf("query read: %w", err))
	}
	err = it.Next(dst)
	if err == iterator.Done {
		return classify(op, domain.ErrNotFound)
	}
	if err != nil {
		return classify(op, fmt.Errorf("iter next: %w", err))
	}
	return nil
}

func classify(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

var _ store.Store = (*Repository)(nil)
