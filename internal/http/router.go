package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/gatekeeper/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(cfg.Logger))

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	health := NewHealthController(cfg.Database, cfg.SessionStore, cfg.Version)

	// Health and metrics endpoints skip sessions
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	site := router.Group("/")

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		site.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}
	site.Use(cfg.Sessions.SessionLoadSave())
	site.Use(cfg.Identity.Handler())

	cfg.Auth.RegisterRoutes(site)

	return router
}
