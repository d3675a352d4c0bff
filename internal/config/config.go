package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Auth
		Session
		Redis
		GitHub
		OIDC
		OAuth
		Logging
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver       string        // "sqlite" or "postgres"
		Path         string        // sqlite file path
		DSN          string        // postgres connection string
		StoreTimeout time.Duration // upper bound for a single credential store call
	}
	Auth struct {
		BcryptCost        int
		MinPasswordLength int
		SessionSecret     string        // CSRF key, hex or raw; generated if empty
		SessionLifetime   time.Duration // absolute cap; the rolling TTL is fixed at 24h
		SecureCookies     bool          // Set to false for local dev without HTTPS
		CSRFEnabled       bool

		// GenericLoginErrors hides whether the username or the password was wrong.
		GenericLoginErrors bool

		SuccessRedirect string
		FailureRedirect string

		// Failed local logins per IP and username before a lockout; 0 disables the limiter
		MaxLoginAttempts int
		// MaxLoginAttemptsPerClient caps failures from one IP across all usernames.
		MaxLoginAttemptsPerClient int
		LoginRateWindow           time.Duration
		LoginLockout              time.Duration
	}
	Session struct {
		Store           string // "sqlite" or "redis"
		SQLitePath      string // separate sqlite file for sessions; empty shares the credential database
		CookieName      string
		CleanupInterval time.Duration
	}
	Redis struct {
		URL       string
		KeyPrefix string
	}
	GitHub struct {
		ClientID     string
		ClientSecret string
		CallbackURL  string
	}
	OIDC struct {
		IssuerURL    string
		ClientID     string
		ClientSecret string
		CallbackURL  string
	}
	OAuth struct {
		ExchangeTimeout time.Duration
	}
	Logging struct {
		Level  string // debug | info | warn | error
		Format string // text | json
	}
)

var (
	ErrUnknownDatabaseDriver = errors.New("unknown database driver")
	ErrUnknownSessionStore   = errors.New("unknown session store")
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 3000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	// Credential store defaults
	v.SetDefault("database_driver", DatabaseDriverSQLite)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_store_timeout", "5s")

	// Auth defaults
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_min_password_length", 6)
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "720h") // 30 days absolute cap
	v.SetDefault("auth_secure_cookies", true)
	v.SetDefault("auth_csrf_enabled", true)
	v.SetDefault("auth_generic_login_errors", false)
	v.SetDefault("auth_success_redirect", "/")
	v.SetDefault("auth_failure_redirect", "/login")
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_max_login_attempts_per_client", 20)
	v.SetDefault("auth_login_rate_window", "15m")
	v.SetDefault("auth_login_lockout", "15m")

	// Session store defaults
	v.SetDefault("session_store", SessionStoreSQLite)
	v.SetDefault("session_sqlite_path", "")
	v.SetDefault("session_cookie_name", DefaultSessionCookieName)
	v.SetDefault("session_cleanup_interval", "5m")

	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("redis_key_prefix", "gatekeeper:session:")

	// Federated providers are disabled unless a client id is set
	v.SetDefault("github_callback_url", "http://localhost:3000/auth/github/callback")
	v.SetDefault("oidc_callback_url", "http://localhost:3000/auth/oidc/callback")
	v.SetDefault("oauth_exchange_timeout", "10s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver:       v.GetString("DATABASE_DRIVER"),
			Path:         v.GetString("DATABASE_PATH"),
			DSN:          v.GetString("DATABASE_DSN"),
			StoreTimeout: v.GetDuration("DATABASE_STORE_TIMEOUT"),
		},
		Auth: Auth{
			BcryptCost:                v.GetInt("AUTH_BCRYPT_COST"),
			MinPasswordLength:         v.GetInt("AUTH_MIN_PASSWORD_LENGTH"),
			SessionSecret:             v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:           v.GetDuration("AUTH_SESSION_LIFETIME"),
			SecureCookies:             v.GetBool("AUTH_SECURE_COOKIES"),
			CSRFEnabled:               v.GetBool("AUTH_CSRF_ENABLED"),
			GenericLoginErrors:        v.GetBool("AUTH_GENERIC_LOGIN_ERRORS"),
			SuccessRedirect:           v.GetString("AUTH_SUCCESS_REDIRECT"),
			FailureRedirect:           v.GetString("AUTH_FAILURE_REDIRECT"),
			MaxLoginAttempts:          v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			MaxLoginAttemptsPerClient: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS_PER_CLIENT"),
			LoginRateWindow:           v.GetDuration("AUTH_LOGIN_RATE_WINDOW"),
			LoginLockout:              v.GetDuration("AUTH_LOGIN_LOCKOUT"),
		},
		Session: Session{
			Store:           v.GetString("SESSION_STORE"),
			SQLitePath:      v.GetString("SESSION_SQLITE_PATH"),
			CookieName:      v.GetString("SESSION_COOKIE_NAME"),
			CleanupInterval: v.GetDuration("SESSION_CLEANUP_INTERVAL"),
		},
		Redis: Redis{
			URL:       v.GetString("REDIS_URL"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		GitHub: GitHub{
			ClientID:     v.GetString("GITHUB_CLIENT_ID"),
			ClientSecret: v.GetString("GITHUB_CLIENT_SECRET"),
			CallbackURL:  v.GetString("GITHUB_CALLBACK_URL"),
		},
		OIDC: OIDC{
			IssuerURL:    v.GetString("OIDC_ISSUER_URL"),
			ClientID:     v.GetString("OIDC_CLIENT_ID"),
			ClientSecret: v.GetString("OIDC_CLIENT_SECRET"),
			CallbackURL:  v.GetString("OIDC_CALLBACK_URL"),
		},
		OAuth: OAuth{
			ExchangeTimeout: v.GetDuration("OAUTH_EXCHANGE_TIMEOUT"),
		},
		Logging: Logging{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DatabaseDriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DATABASE_PATH is required for the sqlite driver")
		}
	case DatabaseDriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDatabaseDriver, c.Database.Driver)
	}

	switch c.Session.Store {
	case SessionStoreSQLite:
		// Sessions can only share the credential database when it is sqlite
		if c.Session.SQLitePath == "" && c.Database.Driver != DatabaseDriverSQLite {
			return errors.New("SESSION_SQLITE_PATH is required when the credential store is not sqlite")
		}
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required for the redis session store")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSessionStore, c.Session.Store)
	}

	if c.GitHub.ClientID != "" && c.GitHub.ClientSecret == "" {
		return errors.New("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set")
	}
	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return errors.New("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}
	return nil
}
