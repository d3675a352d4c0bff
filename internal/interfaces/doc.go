// Package interfaces documents the extension points of gatekeeper.
//
// # Interface Categories
//
// ## Credential Store
//
//   - auth.CredentialStore: user lookup and creation (internal/auth/store.go),
//     implemented by users.Repository on gorm (sqlite or postgres).
//
// ## Session Store
//
//   - sessionstore.Store: an scs.Store that also reports health
//     (internal/sessionstore/store.go). SQLiteStore wraps scs/sqlite3store,
//     RedisStore implements scs.CtxStore on go-redis.
//
// ## Federated Identity Providers
//
//   - oauth2.Provider: authorization URL and code exchange (internal/oauth2/provider.go).
//     OAuth2Provider covers plain OAuth2 with a user-info endpoint, OIDCProvider
//     verifies an ID token from a discovered issuer.
//
// ## Metrics
//
//   - auth.Recorder: authentication and session events (internal/auth/recorder.go),
//     implemented by metrics.Metrics on Prometheus.
//
// # Adding a New Federated Provider
//
// Build it from providers.Config when the provider has a user-info endpoint:
//
//	func NewGitLabProvider(cfg GitLabConfig) (*OAuth2Provider, error) {
//		return NewOAuth2Provider(Config{
//			Name:          "gitlab",
//			Endpoint:      gitlab.Endpoint,
//			UserInfoURL:   "https://gitlab.com/api/v4/user",
//			IDField:       "id",
//			UsernameField: "username",
//		})
//	}
//
// Then register it in entrypoint.buildFlow. Routes /auth/:provider pick it up by name.
//
// # Adding a New Session Store
//
//  1. Implement sessionstore.Store. Prefer scs.CtxStore so request deadlines reach the backend.
//
//  2. Add a case to sessionstore.New and a SESSION_STORE value in config.
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces. See checks.go.
//
//	var _ SomeInterface = (*MyImplementation)(nil)
package interfaces
