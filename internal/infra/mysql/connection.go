// Package mysql implements the store contracts on MySQL through database/sql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/balansai/finance-miniapp/internal/metrics"
)

// Config holds connection and pool settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Location *time.Location

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const connectAttempts = 5

// DSN renders the driver connection string.
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Collation = "utf8mb4_unicode_ci"
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if c.Location != nil {
		cfg.Loc = c.Location
	}
	cfg.Timeout = c.DialTimeout
	cfg.ReadTimeout = c.ReadTimeout
	cfg.WriteTimeout = c.WriteTimeout
	return cfg.FormatDSN()
}

// Open connects to MySQL, retrying the initial ping with a linear backoff,
// and applies the pool limits. Callers wait for a free connection when the
// pool is exhausted.
func Open(ctx context.Context, c Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("Open: opening database: %w", err)
	}
	configurePool(db, c)

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, c.DialTimeout+time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if attempt == connectAttempts {
			db.Close()
			return nil, fmt.Errorf("Open: pinging database after %d attempts: %w", attempt, err)
		}
		wait := time.Duration(attempt) * time.Second
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Database not reachable, retrying")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("Open: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	log.Info().
		Str("host", c.Host).
		Str("database", c.Database).
		Int("max_open_conns", c.MaxOpenConns).
		Msg("Connected to MySQL")
	return db, nil
}

func configurePool(db *sql.DB, c Config) {
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if c.MaxIdleConns > 0 {
		db.SetMaxIdleConns(c.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if c.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(c.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	if c.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	}
}

// ReportPoolStats publishes db.Stats to m every interval until ctx is done.
func ReportPoolStats(ctx context.Context, db *sql.DB, m *metrics.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.RecordDBPoolStats(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
