package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/logging"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
	"github.com/mrlokans/gatekeeper/internal/sessionstore"
)

type recordedAttempt struct {
	strategy string
	reason   FailureReason
}

type fakeRecorder struct {
	mu        sync.Mutex
	attempts  []recordedAttempt
	created   int
	destroyed []string
}

func (r *fakeRecorder) AuthAttempt(strategy string, reason FailureReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, recordedAttempt{strategy, reason})
}

func (r *fakeRecorder) SessionCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *fakeRecorder) SessionDestroyed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, reason)
}

// fakeProvider accepts the code "good-code" and returns a fixed GitHub identity.
type fakeProvider struct{}

func (fakeProvider) Name() entities.OAuthProvider { return entities.OAuthProviderGitHub }

func (fakeProvider) AuthCodeURL(state, verifier string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state)
}

func (fakeProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Profile, error) {
	if code != "good-code" || verifier == "" {
		return nil, fmt.Errorf("%w: bad code", oauth2.ErrExchangeFailed)
	}
	return &oauth2.Profile{ExternalID: "42", ExternalUsername: "ghuser"}, nil
}

type harnessOptions struct {
	sessionStore  scs.Store
	idleTimeout   time.Duration
	genericErrors bool
	maxAttempts   int
	withoutFlow   bool
}

type harness struct {
	router   *gin.Engine
	store    *users.Repository
	db       *database.Database
	recorder *fakeRecorder
	cookie   *http.Cookie
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	store, db := setupTestStore(t)
	log := logging.Discard()

	if opts.sessionStore == nil {
		sqliteStore, err := sessionstore.OpenSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), time.Minute)
		require.NoError(t, err)
		t.Cleanup(func() { _ = sqliteStore.Close() })
		opts.sessionStore = sqliteStore
	}

	cfg := testAuthConfig()
	cfg.GenericLoginErrors = opts.genericErrors

	resolver := NewIdentityResolver(store)
	sessions := NewSessionManager(opts.sessionStore, resolver, SessionOptions{
		CookieName:  "gatekeeper_session",
		Lifetime:    cfg.SessionLifetime,
		IdleTimeout: opts.idleTimeout,
	})
	recorder := &fakeRecorder{}

	deps := ControllerDeps{
		Local:     NewLocalStrategy(store),
		Federated: NewFederatedStrategy(store, log),
		Service:   NewService(store, cfg),
		Sessions:  sessions,
		Metrics:   recorder,
		Log:       log,
	}
	if !opts.withoutFlow {
		registry := oauth2.NewRegistry()
		registry.Register(fakeProvider{})
		deps.Flow = oauth2.NewFlowHandler(registry, time.Second)
	}
	if opts.maxAttempts > 0 {
		deps.Limiter = NewRateLimiter(RateLimitConfig{MaxAttempts: opts.maxAttempts})
	}

	controller, err := NewAuthController(deps, cfg)
	require.NoError(t, err)
	t.Cleanup(controller.Stop)

	router := gin.New()
	router.Use(sessions.SessionLoadSave())
	router.Use(NewMiddleware(sessions, resolver, recorder, log).Handler())
	controller.RegisterRoutes(router)

	return &harness{router: router, store: store, db: db, recorder: recorder}
}

// do sends a request carrying the current session cookie and keeps whatever
// cookie the response sets.
func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.Name != "gatekeeper_session" {
			continue
		}
		if c.Value == "" || c.MaxAge < 0 {
			h.cookie = nil
		} else {
			h.cookie = c
		}
	}
	return rr
}

func (h *harness) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	return h.do(t, req)
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(t, req)
}

func (h *harness) getJSON(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "application/json")
	return h.do(t, req)
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (h *harness) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	return h.postJSON(t, "/login", map[string]string{"username": username, "password": password})
}

type meResponse struct {
	User struct {
		ID               uint   `json:"id"`
		Username         string `json:"username"`
		DisplayName      string `json:"display_name"`
		Provider         string `json:"provider"`
		ExternalUsername string `json:"external_username"`
	} `json:"user"`
	Strategy string    `json:"strategy"`
	LoginAt  time.Time `json:"login_at"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func TestLogin_JSON(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := createLocalUser(t, h.store, "alice", "secret1")

	rr := h.login(t, "alice", "secret1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, h.cookie)
	assert.True(t, h.cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, h.cookie.SameSite)

	rr = h.getJSON(t, "/me")
	require.Equal(t, http.StatusOK, rr.Code)
	me := decode[meResponse](t, rr)
	assert.Equal(t, alice.ID, me.User.ID)
	assert.Equal(t, "alice", me.User.Username)
	assert.Equal(t, StrategyLocal, me.Strategy)
	assert.WithinDuration(t, time.Now(), me.LoginAt, 5*time.Second)

	assert.Equal(t, []recordedAttempt{{StrategyLocal, ""}}, h.recorder.attempts)
	assert.Equal(t, 1, h.recorder.created)
}

func TestLogin_JSONFailures(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")

	rr := h.login(t, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decode[errorResponse](t, rr)
	assert.Equal(t, "Incorrect password", body.Error)
	assert.Equal(t, string(ReasonIncorrectPassword), body.Reason)

	rr = h.login(t, "bob", "x")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	body = decode[errorResponse](t, rr)
	assert.Equal(t, "Incorrect username", body.Error)
	assert.Equal(t, string(ReasonIncorrectUsername), body.Reason)

	assert.Nil(t, h.cookie, "failed JSON logins must not create a session")
	assert.Equal(t, []recordedAttempt{
		{StrategyLocal, ReasonIncorrectPassword},
		{StrategyLocal, ReasonIncorrectUsername},
	}, h.recorder.attempts)
}

func TestLogin_GenericErrors(t *testing.T) {
	h := newHarness(t, harnessOptions{genericErrors: true})
	createLocalUser(t, h.store, "alice", "secret1")

	wrongPassword := decode[errorResponse](t, h.login(t, "alice", "wrong"))
	wrongUser := decode[errorResponse](t, h.login(t, "bob", "x"))

	assert.Equal(t, genericLoginFailure, wrongPassword.Error)
	assert.Equal(t, wrongPassword.Error, wrongUser.Error)
	assert.Empty(t, wrongPassword.Reason)
	assert.Empty(t, wrongUser.Reason)
}

func TestLogin_BrowserFlashAndRedirect(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")

	rr := h.postForm(t, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	require.NotNil(t, h.cookie, "flash needs a session")
	preLoginToken := h.cookie.Value

	rr = h.get(t, "/login")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Incorrect password")
	assert.Contains(t, rr.Body.String(), `href="/auth/github"`)

	rr = h.get(t, "/login")
	assert.NotContains(t, rr.Body.String(), "Incorrect password", "flash is shown once")

	rr = h.postForm(t, "/login", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
		"next":     {"/dashboard"},
	})
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))
	require.NotNil(t, h.cookie)
	assert.NotEqual(t, preLoginToken, h.cookie.Value, "login must rotate the session token")
}

func TestLogin_RejectsOpenRedirect(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")

	rr := h.postForm(t, "/login", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
		"next":     {"//evil.example"},
	})

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, decode[errorResponse](t, rr).Reason)

	rr = h.get(t, "/me")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login?next=%2Fme", rr.Header().Get("Location"))
}

func TestLogout(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)
	oldCookie := *h.cookie

	rr := h.postJSON(t, "/logout", map[string]string{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, h.cookie, "logout clears the cookie")
	assert.Equal(t, []string{DestroyReasonLogout}, h.recorder.destroyed)

	// a copy of the old cookie no longer authenticates
	h.cookie = &oldCookie
	rr = h.getJSON(t, "/me")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(ReasonSessionExpired), decode[errorResponse](t, rr).Reason)
}

func TestLogout_WithoutSession(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	rr := h.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Empty(t, h.recorder.destroyed)
}

func TestSessionExpiry_SQLite(t *testing.T) {
	h := newHarness(t, harnessOptions{idleTimeout: time.Second})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	time.Sleep(1500 * time.Millisecond)

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(ReasonSessionExpired), decode[errorResponse](t, rr).Reason)
}

func newRedisSessionStore(t *testing.T) (*sessionstore.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return sessionstore.NewRedisStoreWithClient(client, "test:session:"), mr
}

func TestSessionExpiry_Redis(t *testing.T) {
	store, mr := newRedisSessionStore(t)
	h := newHarness(t, harnessOptions{sessionStore: store, idleTimeout: time.Hour})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	mr.FastForward(2 * time.Hour)

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(ReasonSessionExpired), decode[errorResponse](t, rr).Reason)
}

func TestSessionExpiry_ActivityExtendsSession(t *testing.T) {
	store, mr := newRedisSessionStore(t)
	h := newHarness(t, harnessOptions{sessionStore: store, idleTimeout: time.Hour})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Minute)
		require.Equal(t, http.StatusOK, h.getJSON(t, "/me").Code, "request %d", i)
	}

	assert.True(t, mr.TTL("test:session:"+h.cookie.Value) > 50*time.Minute)
}

func TestOrphanedSession(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	require.NoError(t, h.db.DB.Delete(&entities.User{}, alice.ID).Error)

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(ReasonNotFound), decode[errorResponse](t, rr).Reason)
	assert.Equal(t, []string{DestroyReasonOrphaned}, h.recorder.destroyed)
	assert.Nil(t, h.cookie)
}

func TestCredentialStoreUnavailable(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	closeStore(t, h.db)

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, string(ReasonStoreUnavailable), decode[errorResponse](t, rr).Reason)
	assert.NotNil(t, h.cookie, "an unavailable store must not end the session")
	assert.Empty(t, h.recorder.destroyed)

	rr = h.login(t, "alice", "secret1")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSessionStoreUnavailable(t *testing.T) {
	store, mr := newRedisSessionStore(t)
	h := newHarness(t, harnessOptions{sessionStore: store})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)

	mr.SetError("ERR session store down")

	rr := h.getJSON(t, "/me")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSessionStoreUnavailable_OnLogin(t *testing.T) {
	store, mr := newRedisSessionStore(t)
	h := newHarness(t, harnessOptions{sessionStore: store})
	createLocalUser(t, h.store, "alice", "secret1")

	mr.SetError("ERR session store down")

	rr := h.login(t, "alice", "secret1")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, string(ReasonStoreUnavailable), decode[errorResponse](t, rr).Reason)
	assert.Nil(t, h.cookie)

	rr = h.postForm(t, "/login", url.Values{"username": {"alice"}, "password": {"secret1"}})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))
	assert.Nil(t, h.cookie)

	rr = h.postJSON(t, "/signup", map[string]string{"username": "carol", "password": "secret1"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Nil(t, h.cookie)

	rr = h.get(t, "/auth/github")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))

	assert.Zero(t, h.recorder.created)

	mr.SetError("")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)
	require.NotNil(t, h.cookie)
	assert.Equal(t, "alice", decode[meResponse](t, h.getJSON(t, "/me")).User.Username)
	assert.Equal(t, 1, h.recorder.created)
}

func TestSignup(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	rr := h.postJSON(t, "/signup", map[string]string{"username": "carol", "password": "secret1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotNil(t, h.cookie)

	me := decode[meResponse](t, h.getJSON(t, "/me"))
	assert.Equal(t, "carol", me.User.Username)

	rr = h.postJSON(t, "/signup", map[string]string{"username": "carol", "password": "secret2"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = h.postJSON(t, "/signup", map[string]string{"username": "dave", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[errorResponse](t, rr).Error, "at least 6 characters")
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	createLocalUser(t, h.store, "alice", "secret1")
	require.Equal(t, http.StatusOK, h.login(t, "alice", "secret1").Code)
	before := h.cookie.Value

	rr := h.postJSON(t, "/profile/password", map[string]string{"current_password": "wrong", "new_password": "newsecret"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.postJSON(t, "/profile/password", map[string]string{"current_password": "secret1", "new_password": "newsecret"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEqual(t, before, h.cookie.Value, "password change rotates the token")
	assert.Equal(t, http.StatusOK, h.getJSON(t, "/me").Code)

	h.cookie = nil
	assert.Equal(t, http.StatusUnauthorized, h.login(t, "alice", "secret1").Code)
	assert.Equal(t, http.StatusOK, h.login(t, "alice", "newsecret").Code)
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, harnessOptions{maxAttempts: 2})
	createLocalUser(t, h.store, "alice", "secret1")

	assert.Equal(t, http.StatusUnauthorized, h.login(t, "alice", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, h.login(t, "alice", "wrong").Code)

	rr := h.login(t, "alice", "secret1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, string(ReasonRateLimited), decode[errorResponse](t, rr).Reason)
	assert.Equal(t, recordedAttempt{StrategyLocal, ReasonRateLimited}, h.recorder.attempts[len(h.recorder.attempts)-1])

	// other usernames from the same client are unaffected
	createLocalUser(t, h.store, "bob", "secret2")
	assert.Equal(t, http.StatusOK, h.login(t, "bob", "secret2").Code)
}

func TestRateLimit_ClientSprayingUsernames(t *testing.T) {
	h := newHarness(t, harnessOptions{maxAttempts: 2})
	createLocalUser(t, h.store, "alice", "secret1")

	// the client limit defaults to four times the per-account limit
	for i := 0; i < 8; i++ {
		rr := h.login(t, fmt.Sprintf("guess%d", i), "wrong")
		require.Equal(t, http.StatusUnauthorized, rr.Code, "attempt %d", i)
	}

	rr := h.login(t, "alice", "secret1")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Nil(t, h.cookie)
}

// beginOAuth starts the flow and returns the state the provider would echo back.
func (h *harness) beginOAuth(t *testing.T) string {
	t.Helper()
	rr := h.get(t, "/auth/github")
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.test", location.Host)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func (h *harness) oauthCallback(t *testing.T, state, code string) *httptest.ResponseRecorder {
	t.Helper()
	query := url.Values{"state": {state}, "code": {code}}
	return h.get(t, "/auth/github/callback?"+query.Encode())
}

func TestOAuthFlow(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	state := h.beginOAuth(t)
	rr := h.oauthCallback(t, state, "good-code")
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))

	me := decode[meResponse](t, h.getJSON(t, "/me"))
	assert.Equal(t, "github", me.Strategy)
	assert.Equal(t, "github", me.User.Provider)
	assert.Equal(t, "ghuser", me.User.ExternalUsername)
	assert.Equal(t, "ghuser", me.User.DisplayName)
	firstID := me.User.ID

	// a second login maps to the same user
	h.cookie = nil
	state = h.beginOAuth(t)
	require.Equal(t, http.StatusFound, h.oauthCallback(t, state, "good-code").Code)
	me = decode[meResponse](t, h.getJSON(t, "/me"))
	assert.Equal(t, firstID, me.User.ID)

	count, err := h.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []recordedAttempt{{"github", ""}, {"github", ""}}, h.recorder.attempts)
}

func TestOAuthFlow_Failures(t *testing.T) {
	tests := []struct {
		name     string
		callback func(t *testing.T, h *harness) *httptest.ResponseRecorder
	}{
		{
			name: "state mismatch",
			callback: func(t *testing.T, h *harness) *httptest.ResponseRecorder {
				h.beginOAuth(t)
				return h.oauthCallback(t, "forged", "good-code")
			},
		},
		{
			name: "bad code",
			callback: func(t *testing.T, h *harness) *httptest.ResponseRecorder {
				return h.oauthCallback(t, h.beginOAuth(t), "bad-code")
			},
		},
		{
			name: "provider error",
			callback: func(t *testing.T, h *harness) *httptest.ResponseRecorder {
				state := h.beginOAuth(t)
				return h.get(t, "/auth/github/callback?error=access_denied&state="+url.QueryEscape(state))
			},
		},
		{
			name: "replayed callback",
			callback: func(t *testing.T, h *harness) *httptest.ResponseRecorder {
				state := h.beginOAuth(t)
				require.Equal(t, http.StatusFound, h.oauthCallback(t, state, "good-code").Code)
				require.Equal(t, http.StatusOK, h.postJSON(t, "/logout", map[string]string{}).Code)
				return h.oauthCallback(t, state, "good-code")
			},
		},
		{
			name: "no flow started",
			callback: func(t *testing.T, h *harness) *httptest.ResponseRecorder {
				return h.oauthCallback(t, "anything", "good-code")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})

			rr := tt.callback(t, h)
			require.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, "/login", rr.Header().Get("Location"))

			last := h.recorder.attempts[len(h.recorder.attempts)-1]
			assert.Equal(t, recordedAttempt{"github", ReasonExternalExchangeFailed}, last)

			page := h.get(t, "/login")
			assert.Contains(t, page.Body.String(), "Could not sign in with github")
			assert.Equal(t, http.StatusUnauthorized, h.getJSON(t, "/me").Code)
		})
	}
}

func TestOAuthFlow_JSONFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.beginOAuth(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?state=forged&code=good-code", nil)
	req.Header.Set("Accept", "application/json")
	rr := h.do(t, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, string(ReasonExternalExchangeFailed), decode[errorResponse](t, rr).Reason)
}

func TestOAuthFlow_UnknownProvider(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	assert.Equal(t, http.StatusNotFound, h.get(t, "/auth/gitlab").Code)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/auth/gitlab/callback?code=x&state=y").Code)

	disabled := newHarness(t, harnessOptions{withoutFlow: true})
	assert.Equal(t, http.StatusNotFound, disabled.get(t, "/auth/github").Code)

	page, err := io.ReadAll(disabled.get(t, "/login").Body)
	require.NoError(t, err)
	assert.NotContains(t, string(page), "/auth/github")
}
