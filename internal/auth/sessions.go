package auth

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

// SessionTTL is how long a session survives without a request. Every request
// that loads a live session pushes its expiry out by this much.
const SessionTTL = 24 * time.Hour

// Session data keys
const (
	SessionKeyUserID        = "user_id"
	SessionKeyLoginAt       = "login_at"
	SessionKeyStrategy      = "strategy"
	SessionKeyFlash         = "flash"
	SessionKeyOAuthState    = "oauth_state"
	SessionKeyOAuthVerifier = "oauth_verifier"
)

// SessionOptions configures the session manager.
type SessionOptions struct {
	CookieName string
	Secure     bool

	// Lifetime is the absolute cap on a session, regardless of activity.
	Lifetime time.Duration

	// IdleTimeout defaults to SessionTTL.
	IdleTimeout time.Duration
}

// SessionOptionsFromConfig builds options from the application config.
func SessionOptionsFromConfig(authCfg config.Auth, sessionCfg config.Session) SessionOptions {
	return SessionOptions{
		CookieName: sessionCfg.CookieName,
		Secure:     authCfg.SecureCookies,
		Lifetime:   authCfg.SessionLifetime,
	}
}

// SessionManager wraps scs.SessionManager with application-specific methods.
type SessionManager struct {
	*scs.SessionManager
	resolver *IdentityResolver
}

// NewSessionManager creates a configured session manager over store.
func NewSessionManager(store scs.Store, resolver *IdentityResolver, opts SessionOptions) *SessionManager {
	sm := scs.New()
	sm.Store = store

	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = SessionTTL
	}
	lifetime := opts.Lifetime
	if lifetime < idle {
		lifetime = idle
	}
	sm.IdleTimeout = idle
	sm.Lifetime = lifetime

	sm.Cookie.Name = opts.CookieName
	if sm.Cookie.Name == "" {
		sm.Cookie.Name = config.DefaultSessionCookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = opts.Secure
	// Lax so the cookie survives the top-level redirect back from an OAuth provider
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"

	return &SessionManager{SessionManager: sm, resolver: resolver}
}

// CreateSession binds the session to user after successful authentication.
// The token is renewed first so a pre-login token cannot be fixated.
func (sm *SessionManager) CreateSession(r *http.Request, user *entities.User, strategy string) error {
	ctx := r.Context()
	if err := sm.RenewToken(ctx); err != nil {
		return newFailure(ReasonStoreUnavailable, err)
	}

	sm.Put(ctx, SessionKeyUserID, int(sm.resolver.Serialize(user)))
	sm.Put(ctx, SessionKeyStrategy, strategy)
	sm.Put(ctx, SessionKeyLoginAt, time.Now().Unix())
	return nil
}

// DestroySession removes the session record and clears the cookie.
func (sm *SessionManager) DestroySession(r *http.Request) error {
	if err := sm.Destroy(r.Context()); err != nil {
		return newFailure(ReasonStoreUnavailable, err)
	}
	return nil
}

// GetPayload returns the user reference stored in the session, or 0.
func (sm *SessionManager) GetPayload(r *http.Request) SessionPayload {
	id := sm.GetInt(r.Context(), SessionKeyUserID)
	if id <= 0 {
		return 0
	}
	return SessionPayload(id)
}

// GetStrategy returns the strategy that created the session.
func (sm *SessionManager) GetStrategy(r *http.Request) string {
	return sm.GetString(r.Context(), SessionKeyStrategy)
}

// GetLoginAt returns when the session was authenticated.
func (sm *SessionManager) GetLoginAt(r *http.Request) time.Time {
	ts := sm.GetInt64(r.Context(), SessionKeyLoginAt)
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// Flash stores a one-time message shown on the next page render.
func (sm *SessionManager) Flash(r *http.Request, message string) {
	sm.Put(r.Context(), SessionKeyFlash, message)
}

// PopFlash returns and clears the pending flash message.
func (sm *SessionManager) PopFlash(r *http.Request) string {
	return sm.PopString(r.Context(), SessionKeyFlash)
}

// PutOAuthFlow remembers the state and PKCE verifier of an authorization request.
func (sm *SessionManager) PutOAuthFlow(r *http.Request, state, verifier string) {
	sm.Put(r.Context(), SessionKeyOAuthState, state)
	sm.Put(r.Context(), SessionKeyOAuthVerifier, verifier)
}

// PopOAuthFlow returns and clears the pending state and verifier. Each
// authorization request can be completed at most once.
func (sm *SessionManager) PopOAuthFlow(r *http.Request) (state, verifier string) {
	return sm.PopString(r.Context(), SessionKeyOAuthState), sm.PopString(r.Context(), SessionKeyOAuthVerifier)
}
