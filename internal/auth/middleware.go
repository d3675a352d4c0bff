package auth

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

// Context keys for identity data
const (
	ContextKeyUser         = "auth_user"
	ContextKeySessionState = "auth_session_state"
	ContextKeyFailure      = "auth_failure"
)

// SessionState is where a request stands in the session lifecycle.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
)

// Middleware resolves the session's user before downstream handlers run.
type Middleware struct {
	sessions *SessionManager
	resolver *IdentityResolver
	metrics  Recorder
	log      logrus.FieldLogger
}

// NewMiddleware creates a new identity middleware. A nil recorder disables metrics.
func NewMiddleware(sessions *SessionManager, resolver *IdentityResolver, metrics Recorder, log logrus.FieldLogger) *Middleware {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Middleware{
		sessions: sessions,
		resolver: resolver,
		metrics:  metrics,
		log:      log,
	}
}

// Handler returns a Gin middleware that attaches the current user, if any.
// It must run after SessionLoadSave.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := m.sessions.GetPayload(c.Request)
		if payload == 0 {
			setUnauthenticated(c, m.staleReason(c))
			c.Next()
			return
		}

		user, err := m.resolver.Deserialize(c.Request.Context(), payload)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				m.log.WithError(err).Error("Failed to resolve session user")
				c.Error(err)
				respondStoreUnavailable(c)
				return
			}

			// The user behind the session is gone; drop the session with it.
			m.log.WithField("user_id", payload).Warn("Session references a missing user")
			if err := m.sessions.DestroySession(c.Request); err != nil {
				m.log.WithError(err).Error("Failed to destroy orphaned session")
			} else {
				m.metrics.SessionDestroyed(DestroyReasonOrphaned)
			}
			setUnauthenticated(c, ReasonNotFound)
			c.Next()
			return
		}

		c.Set(ContextKeyUser, user)
		c.Set(ContextKeySessionState, StateAuthenticated)
		c.Next()
	}
}

func (m *Middleware) staleReason(c *gin.Context) FailureReason {
	if c.GetBool(contextKeyStaleCookie) {
		return ReasonSessionExpired
	}
	return ""
}

func setUnauthenticated(c *gin.Context, reason FailureReason) {
	c.Set(ContextKeySessionState, StateUnauthenticated)
	if reason != "" {
		c.Set(ContextKeyFailure, reason)
	}
}

// RequireAuth rejects requests without a resolved user: 401 for API clients,
// a redirect to the login page for browsers.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Next()
			return
		}

		if wantsJSON(c) {
			body := gin.H{"error": "authentication required"}
			if reason := GetFailureReason(c); reason != "" {
				body["reason"] = reason
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, body)
			return
		}

		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.Path))
		c.Abort()
	}
}

// Helper functions to extract identity data from the Gin context

// CurrentUser returns the resolved user, or nil when unauthenticated.
func CurrentUser(c *gin.Context) *entities.User {
	if v, exists := c.Get(ContextKeyUser); exists {
		if user, ok := v.(*entities.User); ok {
			return user
		}
	}
	return nil
}

// GetUserID returns the resolved user's id, or 0.
func GetUserID(c *gin.Context) uint {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return 0
}

// GetSessionState returns the request's session state.
func GetSessionState(c *gin.Context) SessionState {
	if v, exists := c.Get(ContextKeySessionState); exists {
		if state, ok := v.(SessionState); ok {
			return state
		}
	}
	return StateUnauthenticated
}

// GetFailureReason returns why the request is unauthenticated, if known.
func GetFailureReason(c *gin.Context) FailureReason {
	if v, exists := c.Get(ContextKeyFailure); exists {
		if reason, ok := v.(FailureReason); ok {
			return reason
		}
	}
	return ""
}

// IsAuthenticated returns true if the request carries a resolved user.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUser(c) != nil
}
