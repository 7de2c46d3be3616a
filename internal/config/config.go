package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMySQL    = "mysql"
	BackendBigQuery = "bigquery"
)

// Config holds all configuration for the mini-app backend.
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Store    StoreConfig
	Database DatabaseConfig
	BigQuery BigQueryConfig
	Redis    RedisConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string
	WritesEnabled bool
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string
	Format string
}

// AuthConfig holds Telegram init-data verification settings.
type AuthConfig struct {
	BotToken string
	// AllowUnverified accepts unsigned payloads, but only while BotToken is empty.
	AllowUnverified bool
}

// LedgerConfig holds aggregation settings.
type LedgerConfig struct {
	BaseCurrency string
	RateTTL      time.Duration
	Location     *time.Location
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string
	Timeout time.Duration
}

// DatabaseConfig holds MySQL connection and pool configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// BigQueryConfig points at the warehouse dataset.
type BigQueryConfig struct {
	ProjectID string
	DatasetID string
}

// RedisConfig enables the shared rate cache when URL is set.
type RedisConfig struct {
	URL string
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Asia/Tashkent"))
	if err != nil {
		return nil, fmt.Errorf("config: loading TIMEZONE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "5000"),
			WritesEnabled: getEnvBool("WRITES_ENABLED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Auth: AuthConfig{
			BotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
			AllowUnverified: getEnvBool("AUTH_ALLOW_UNVERIFIED", false),
		},
		Ledger: LedgerConfig{
			BaseCurrency: strings.ToUpper(getEnv("BASE_CURRENCY", "UZS")),
			RateTTL:      getEnvDuration("RATE_TTL", 300*time.Second),
			Location:     loc,
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", BackendMySQL)),
			Timeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("MYSQL_HOST", "localhost"),
			Port:            getEnvInt("MYSQL_PORT", 3306),
			User:            getEnv("MYSQL_USER", "root"),
			Password:        getEnv("MYSQL_PASSWORD", ""),
			Database:        getEnv("MYSQL_DATABASE", "balans"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", time.Minute),
			DialTimeout:     getEnvDuration("DB_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getEnvDuration("DB_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:    getEnvDuration("DB_WRITE_TIMEOUT", 5*time.Second),
		},
		BigQuery: BigQueryConfig{
			ProjectID: getEnv("BQ_PROJECT", ""),
			DatasetID: getEnv("BQ_DATASET", "balans"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMySQL:
	case BackendBigQuery:
		if c.BigQuery.ProjectID == "" {
			return fmt.Errorf("config: BQ_PROJECT is required for the bigquery backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if len(c.Ledger.BaseCurrency) != 3 {
		return fmt.Errorf("config: BASE_CURRENCY must be a 3-letter code, got %q", c.Ledger.BaseCurrency)
	}
	if c.Ledger.RateTTL <= 0 {
		return fmt.Errorf("config: RATE_TTL must be positive")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config: STORE_TIMEOUT must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("config: DB_MAX_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	return nil
}

// RelaxedAuth reports whether unsigned init data will be trusted.
func (c *Config) RelaxedAuth() bool {
	return c.Auth.BotToken == "" && c.Auth.AllowUnverified
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("300s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
