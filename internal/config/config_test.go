package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("AUTH_ALLOW_UNVERIFIED", "")
	t.Setenv("RATE_TTL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendMySQL, cfg.Store.Backend)
	assert.Equal(t, "UZS", cfg.Ledger.BaseCurrency)
	assert.Equal(t, 300*time.Second, cfg.Ledger.RateTTL)
	assert.False(t, cfg.Auth.AllowUnverified)
	assert.False(t, cfg.RelaxedAuth())
	assert.False(t, cfg.Server.WritesEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RATE_TTL", "60")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("BASE_CURRENCY", "usd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Ledger.RateTTL)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, "USD", cfg.Ledger.BaseCurrency)
}

func TestRelaxedAuth(t *testing.T) {
	tests := []struct {
		name  string
		token string
		allow bool
		want  bool
	}{
		{"token configured ignores flag", "123:abc", true, false},
		{"no token without flag", "", false, false},
		{"no token with flag", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Auth: AuthConfig{BotToken: tt.token, AllowUnverified: tt.allow}}
			assert.Equal(t, tt.want, cfg.RelaxedAuth())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Ledger:   LedgerConfig{BaseCurrency: "UZS", RateTTL: time.Minute},
			Store:    StoreConfig{Backend: BackendMySQL, Timeout: time.Second},
			Database: DatabaseConfig{MaxOpenConns: 10, MaxIdleConns: 5},
		}
	}

	require.NoError(t, valid().Validate())

	c := valid()
	c.Store.Backend = "postgres"
	assert.Error(t, c.Validate())

	c = valid()
	c.Store.Backend = BackendBigQuery
	assert.Error(t, c.Validate(), "bigquery without project")

	c = valid()
	c.Database.MaxIdleConns = 11
	assert.Error(t, c.Validate())

	c = valid()
	c.Ledger.BaseCurrency = "SUM1"
	assert.Error(t, c.Validate())
}
