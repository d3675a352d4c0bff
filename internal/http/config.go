package http

import (
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/metrics"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Health checks
	Database     Pinger
	SessionStore NamedPinger

	// Sessions and identity
	Sessions *auth.SessionManager
	Identity *auth.Middleware
	Auth     *auth.AuthController

	// CSRF protection is disabled when the secret is empty
	CSRFSecret    []byte
	SecureCookies bool

	// Metrics is optional; /metrics is not served without it
	Metrics *metrics.Metrics

	Logger logrus.FieldLogger

	// Application info
	Version string
}
