package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(3000), cfg.HTTP.Port)
	assert.Equal(t, DatabaseDriverSQLite, cfg.Database.Driver)
	assert.Equal(t, DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, 5*time.Second, cfg.Database.StoreTimeout)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, 720*time.Hour, cfg.Auth.SessionLifetime)
	assert.True(t, cfg.Auth.SecureCookies)
	assert.False(t, cfg.Auth.GenericLoginErrors)
	assert.Equal(t, 5, cfg.Auth.MaxLoginAttempts)
	assert.Equal(t, 20, cfg.Auth.MaxLoginAttemptsPerClient)
	assert.Equal(t, 15*time.Minute, cfg.Auth.LoginLockout)
	assert.Equal(t, SessionStoreSQLite, cfg.Session.Store)
	assert.Equal(t, DefaultSessionCookieName, cfg.Session.CookieName)
	assert.Equal(t, 10*time.Second, cfg.OAuth.ExchangeTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("AUTH_BCRYPT_COST", "10")
	t.Setenv("AUTH_GENERIC_LOGIN_ERRORS", "true")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("GITHUB_CLIENT_ID", "client")
	t.Setenv("GITHUB_CLIENT_SECRET", "secret")
	t.Setenv("OAUTH_EXCHANGE_TIMEOUT", "3s")

	cfg := NewConfig()

	assert.Equal(t, int32(8080), cfg.HTTP.Port)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.GenericLoginErrors)
	assert.Equal(t, SessionStoreRedis, cfg.Session.Store)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, "client", cfg.GitHub.ClientID)
	assert.Equal(t, 3*time.Second, cfg.OAuth.ExchangeTimeout)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: Database{Driver: DatabaseDriverSQLite, Path: "test.db"},
			Session:  Session{Store: SessionStoreSQLite},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
		errText string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "mysql" },
			wantErr: ErrUnknownDatabaseDriver,
		},
		{
			name:    "unknown session store",
			mutate:  func(c *Config) { c.Session.Store = "memcached" },
			wantErr: ErrUnknownSessionStore,
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Database.Driver = DatabaseDriverPostgres
			},
			errText: "DATABASE_DSN",
		},
		{
			name: "postgres with shared sqlite sessions",
			mutate: func(c *Config) {
				c.Database.Driver = DatabaseDriverPostgres
				c.Database.DSN = "postgres://localhost/gatekeeper"
			},
			errText: "SESSION_SQLITE_PATH",
		},
		{
			name:    "github without secret",
			mutate:  func(c *Config) { c.GitHub.ClientID = "id" },
			errText: "GITHUB_CLIENT_SECRET",
		},
		{
			name:    "oidc without client id",
			mutate:  func(c *Config) { c.OIDC.IssuerURL = "https://issuer.example.com" },
			errText: "OIDC_CLIENT_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errText != "" {
				assert.Contains(t, err.Error(), tt.errText)
			}
		})
	}

	t.Run("postgres with separate session file", func(t *testing.T) {
		cfg := valid()
		cfg.Database.Driver = DatabaseDriverPostgres
		cfg.Database.DSN = "postgres://localhost/gatekeeper"
		cfg.Session.SQLitePath = "sessions.db"
		assert.NoError(t, cfg.Validate())
	})
}
