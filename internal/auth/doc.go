// Package auth turns requests into authenticated, persisted identities.
//
// Two strategies produce a user or a typed *Failure:
//   - LocalStrategy: username and bcrypt password hash
//   - FederatedStrategy: find-or-create by external provider identity
//
// The IdentityResolver reduces a user to its id for the session and loads it
// back on every request. Sessions are scs sessions with a rolling 24h TTL
// (SessionTTL), capped by AUTH_SESSION_LIFETIME.
//
// # Configuration
//
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SESSION_LIFETIME=720h          # absolute session cap
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//	AUTH_GENERIC_LOGIN_ERRORS=false     # hide which credential was wrong
//	AUTH_MAX_LOGIN_ATTEMPTS=5           # 0 disables login rate limiting
//
// # Usage
//
// Wire the middleware chain in order:
//
//	router.Use(sessions.SessionLoadSave())
//	router.Use(auth.NewMiddleware(sessions, resolver, metrics, log).Handler())
//
// Read the identity in handlers:
//
//	user := auth.CurrentUser(c) // nil when unauthenticated
package auth
