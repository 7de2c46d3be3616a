// Package app assembles the service components from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/auth"
	"github.com/balansai/finance-miniapp/internal/config"
	infraBQ "github.com/balansai/finance-miniapp/internal/infra/bigquery"
	"github.com/balansai/finance-miniapp/internal/infra/mysql"
	"github.com/balansai/finance-miniapp/internal/ledger"
	"github.com/balansai/finance-miniapp/internal/metrics"
	"github.com/balansai/finance-miniapp/internal/onboarding"
	"github.com/balansai/finance-miniapp/internal/rates"
	"github.com/balansai/finance-miniapp/internal/store"
)

const poolStatsInterval = 15 * time.Second

// App holds the wired components. Close releases everything it opened.
type App struct {
	Store      store.Store
	Rates      *rates.Provider
	Aggregator *ledger.Aggregator
	Gate       *onboarding.Gate
	Resolver   *auth.Resolver

	closers []func() error
	cancel  context.CancelFunc
}

// New opens the configured store and rate cache and builds the domain
// components on top of them. m may be nil.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (*App, error) {
	bg, cancel := context.WithCancel(context.Background())
	a := &App{cancel: cancel}

	s, err := a.openStore(ctx, bg, cfg, log, m)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = s

	cache, err := a.openRateCache(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Rates = rates.NewProvider(s, cache,
		rates.WithTTL(cfg.Ledger.RateTTL),
		rates.WithBaseCurrency(cfg.Ledger.BaseCurrency),
		rates.WithLogger(log.With().Str("component", "rates").Logger()),
		rates.WithMetrics(m),
	)
	a.Aggregator = ledger.NewAggregator(s, a.Rates,
		ledger.WithLocation(cfg.Ledger.Location),
		ledger.WithLogger(log.With().Str("component", "ledger").Logger()),
		ledger.WithMetrics(m),
	)
	a.Gate = onboarding.NewGate(s)
	a.Resolver = auth.NewResolver(cfg.Auth.BotToken, cfg.Auth.AllowUnverified, log)

	switch {
	case cfg.Auth.BotToken != "":
	case a.Resolver.Relaxed():
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is not set; accepting unverified init data")
	default:
		log.Warn().Msg("TELEGRAM_BOT_TOKEN is not set; every signed request will be rejected")
	}

	return a, nil
}

func (a *App) openStore(ctx, bg context.Context, cfg *config.Config, log zerolog.Logger, m *metrics.Metrics) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID,
			infraBQ.WithTimezone(cfg.Ledger.Location.String()),
			infraBQ.WithTimeout(cfg.Store.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("openStore: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		log.Info().Str("project", cfg.BigQuery.ProjectID).Str("dataset", cfg.BigQuery.DatasetID).Msg("Using BigQuery store")
		return repo, nil

	default:
		db, err := mysql.Open(ctx, MySQLConfig(cfg), log)
		if err != nil {
			return nil, fmt.Errorf("openStore: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		caps, err := mysql.ProbeCapabilities(ctx, db)
		if err != nil {
			log.Warn().Err(err).Msg("Schema probe failed, assuming minimal schema")
		}
		log.Info().Bool("debt_contacts", caps.DebtContacts).Msg("Schema capabilities")

		if m != nil {
			go mysql.ReportPoolStats(bg, db, m, poolStatsInterval)
		}
		return mysql.New(db, mysql.WithTimeout(cfg.Store.Timeout), mysql.WithCapabilities(caps)), nil
	}
}

func (a *App) openRateCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (rates.Cache, error) {
	if cfg.Redis.URL == "" {
		return rates.NewMemoryCache(), nil
	}
	rc, err := rates.NewRedisCacheFromURL(cfg.Redis.URL, cfg.Ledger.RateTTL, log)
	if err != nil {
		return nil, fmt.Errorf("openRateCache: %w", err)
	}
	a.closers = append(a.closers, rc.Close)
	if err := rc.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis not reachable, rate lookups will fall through to the store")
	} else {
		log.Info().Msg("Using Redis rate cache")
	}
	return rc, nil
}

// Close stops background work and releases connections in reverse order.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// MySQLConfig maps the service configuration onto the MySQL connector.
func MySQLConfig(cfg *config.Config) mysql.Config {
	d := cfg.Database
	return mysql.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		Location:        cfg.Ledger.Location,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		DialTimeout:     d.DialTimeout,
		ReadTimeout:     d.ReadTimeout,
		WriteTimeout:    d.WriteTimeout,
	}
}
