package entrypoint

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	http_controllers "github.com/mrlokans/gatekeeper/internal/http"
	"github.com/mrlokans/gatekeeper/internal/logging"
	"github.com/mrlokans/gatekeeper/internal/metrics"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
	"github.com/mrlokans/gatekeeper/internal/oauth2/providers"
	"github.com/mrlokans/gatekeeper/internal/sessionstore"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// App is the wired server: its router and the resources to release on shutdown.
type App struct {
	Router *gin.Engine

	db         *database.Database
	sessions   sessionstore.Store
	controller *auth.AuthController
	log        logrus.FieldLogger
}

// Close releases the session store and the database.
func (a *App) Close() {
	if a.controller != nil {
		a.controller.Stop()
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.log.WithError(err).Error("Error closing session store")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Error("Error closing database")
		}
	}
}

// Build wires every component from cfg. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, version string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.Auth.SecureCookies {
		log.Warn("Secure cookies are disabled; only use this without HTTPS in development")
	}

	app := &App{log: log}
	built := false
	defer func() {
		if !built {
			app.Close()
		}
	}()

	// Initialize credential store
	db, err := database.NewDatabase(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	repo := users.NewRepository(db.DB, cfg.Database.StoreTimeout)

	// Sessions share the credential database unless configured otherwise
	var sharedDB *sql.DB
	if cfg.Database.Driver == config.DatabaseDriverSQLite {
		if sharedDB, err = db.SQLDB(); err != nil {
			return nil, fmt.Errorf("failed to get SQL DB for sessions: %w", err)
		}
	}
	store, err := sessionstore.New(cfg.Session, cfg.Redis, sharedDB, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	app.sessions = store

	resolver := auth.NewIdentityResolver(repo)
	sessions := auth.NewSessionManager(store, resolver, auth.SessionOptionsFromConfig(cfg.Auth, cfg.Session))

	flow, err := buildFlow(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var limiter *auth.RateLimiter
	if cfg.Auth.MaxLoginAttempts > 0 {
		limiter = auth.NewRateLimiter(auth.RateLimitConfig{
			MaxAttempts:          cfg.Auth.MaxLoginAttempts,
			MaxAttemptsPerClient: cfg.Auth.MaxLoginAttemptsPerClient,
			WindowDuration:       cfg.Auth.LoginRateWindow,
			LockoutDuration:      cfg.Auth.LoginLockout,
		})
	}

	m := metrics.New(nil)
	controller, err := auth.NewAuthController(auth.ControllerDeps{
		Local:     auth.NewLocalStrategy(repo),
		Federated: auth.NewFederatedStrategy(repo, log),
		Service:   auth.NewService(repo, cfg.Auth),
		Sessions:  sessions,
		Flow:      flow,
		Limiter:   limiter,
		Metrics:   m,
		Log:       log,
	}, cfg.Auth)
	if err != nil {
		if limiter != nil {
			limiter.Stop()
		}
		return nil, err
	}
	app.controller = controller

	var csrfSecret []byte
	if cfg.Auth.CSRFEnabled {
		if csrfSecret, err = loadCSRFSecret(cfg.Auth.SessionSecret, log); err != nil {
			return nil, err
		}
	}

	if count, err := repo.Count(ctx); err == nil && count == 0 {
		log.Info("No users found. Register one with the create-user command or POST /signup.")
	}

	app.Router = http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:      db,
		SessionStore:  store,
		Sessions:      sessions,
		Identity:      auth.NewMiddleware(sessions, resolver, m, log),
		Auth:          controller,
		CSRFSecret:    csrfSecret,
		SecureCookies: cfg.Auth.SecureCookies,
		Metrics:       m,
		Logger:        log,
		Version:       version,
	})

	built = true
	return app, nil
}

// buildFlow registers every configured federated provider. It returns nil when
// none is configured.
func buildFlow(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*oauth2.FlowHandler, error) {
	registry := oauth2.NewRegistry()

	if cfg.GitHub.ClientID != "" {
		github, err := providers.NewGitHubProvider(providers.GitHubConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  cfg.GitHub.CallbackURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure GitHub provider: %w", err)
		}
		registry.Register(github)
	}

	if cfg.OIDC.IssuerURL != "" {
		discoveryCtx, cancel := context.WithTimeout(ctx, cfg.OAuth.ExchangeTimeout)
		defer cancel()

		oidc, err := providers.NewOIDCProvider(discoveryCtx, providers.OIDCConfig{
			IssuerURL:    cfg.OIDC.IssuerURL,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			CallbackURL:  cfg.OIDC.CallbackURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure OIDC provider: %w", err)
		}
		registry.Register(oidc)
	}

	if registry.Len() == 0 {
		log.Info("No federated providers configured")
		return nil, nil
	}
	log.WithField("providers", registry.List()).Info("Federated providers configured")
	return oauth2.NewFlowHandler(registry, cfg.OAuth.ExchangeTimeout), nil
}

// loadCSRFSecret decodes a hex secret, falls back to the raw bytes, and generates
// a random one when none is set.
func loadCSRFSecret(secret string, log logrus.FieldLogger) ([]byte, error) {
	if secret != "" {
		decoded, err := hex.DecodeString(secret)
		if err != nil {
			// Not hex, use as raw bytes
			return []byte(secret), nil
		}
		return decoded, nil
	}

	generated, err := auth.GenerateSessionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSRF secret: %w", err)
	}
	log.Warn("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return hex.DecodeString(generated)
}

// Serve runs the server until SIGINT or SIGTERM, then shuts it down gracefully.
func Serve(router *gin.Engine, cfg *config.Config, log logrus.FieldLogger, onShutdown ShutdownFunc) error {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-quit:
	}
	log.WithField("timeout", timeout).Info("Shutdown Server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Release stores only after in-flight requests are done
	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Info("Server exiting")
	return nil
}

// Run builds the application from cfg and serves it.
func Run(cfg *config.Config, version string) error {
	log := logging.New(cfg.Logging)
	log.WithField("version", version).Info("Starting gatekeeper")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := Build(context.Background(), cfg, log, version)
	if err != nil {
		return err
	}

	return Serve(app.Router, cfg, log, func(context.Context) {
		app.Close()
	})
}
