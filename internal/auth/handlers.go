package auth

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
)

//go:embed templates/*.html
var templateFS embed.FS

const genericLoginFailure = "Invalid username or password"

// ControllerDeps are the collaborators of AuthController.
type ControllerDeps struct {
	Local     *LocalStrategy
	Federated *FederatedStrategy
	Service   *Service
	Sessions  *SessionManager

	// Flow is nil when no federated provider is configured.
	Flow *oauth2.FlowHandler

	// Limiter is nil when login rate limiting is disabled.
	Limiter *RateLimiter

	Metrics Recorder
	Log     logrus.FieldLogger
}

// AuthController handles authentication-related HTTP endpoints.
type AuthController struct {
	local     *LocalStrategy
	federated *FederatedStrategy
	service   *Service
	sessions  *SessionManager
	flow      *oauth2.FlowHandler
	limiter   *RateLimiter
	metrics   Recorder
	log       logrus.FieldLogger
	templates *template.Template
	config    config.Auth
}

// NewAuthController creates a new authentication controller.
func NewAuthController(deps ControllerDeps, cfg config.Auth) (*AuthController, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse auth templates: %w", err)
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &AuthController{
		local:     deps.Local,
		federated: deps.Federated,
		service:   deps.Service,
		sessions:  deps.Sessions,
		flow:      deps.Flow,
		limiter:   deps.Limiter,
		metrics:   metrics,
		log:       deps.Log,
		templates: tmpl,
		config:    cfg,
	}, nil
}

// RegisterRoutes registers authentication routes on the router.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	router.GET("/login", ac.LoginPage)
	router.POST("/login", ac.Login)
	router.POST("/logout", ac.Logout)
	router.POST("/signup", ac.Signup)
	router.GET("/me", RequireAuth(), ac.Me)
	router.POST("/profile/password", RequireAuth(), ac.ChangePassword)
	router.GET("/auth/:provider", ac.BeginOAuth)
	router.GET("/auth/:provider/callback", ac.OAuthCallback)
}

// Stop releases the rate limiter's background goroutine.
func (ac *AuthController) Stop() {
	if ac.limiter != nil {
		ac.limiter.Stop()
	}
}

type credentials struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
	Next     string `form:"next" json:"next"`
}

type passwordChange struct {
	CurrentPassword string `form:"current_password" json:"current_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
}

type userResponse struct {
	ID               uint                   `json:"id"`
	Username         string                 `json:"username,omitempty"`
	DisplayName      string                 `json:"display_name"`
	Provider         entities.OAuthProvider `json:"provider,omitempty"`
	ExternalUsername string                 `json:"external_username,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

func newUserResponse(user *entities.User) userResponse {
	return userResponse{
		ID:               user.ID,
		Username:         user.Username,
		DisplayName:      user.DisplayName(),
		Provider:         user.Provider,
		ExternalUsername: user.ExternalUsername,
		CreatedAt:        user.CreatedAt,
	}
}

// LoginPage renders the login form with any pending flash message.
func (ac *AuthController) LoginPage(c *gin.Context) {
	if IsAuthenticated(c) {
		c.Redirect(http.StatusFound, ac.config.SuccessRedirect)
		return
	}

	flash := ac.sessions.PopFlash(c.Request)
	if flash == "" && GetFailureReason(c) == ReasonSessionExpired {
		flash = "Your session has expired. Please sign in again."
	}

	ac.renderTemplate(c, http.StatusOK, "login.html", gin.H{
		"Title":     "Sign in",
		"Flash":     flash,
		"Next":      sanitizeRedirectPath(c.Query("next"), ""),
		"CSRFToken": GetCSRFToken(c),
		"Providers": ac.providerNames(),
	})
}

// Login runs the local strategy. JSON clients get 401 {error, reason} on failure;
// browsers get a flash message and a redirect back to the login page.
func (ac *AuthController) Login(c *gin.Context) {
	var creds credentials
	if err := c.ShouldBind(&creds); err != nil {
		ac.fail(c, http.StatusBadRequest, "Invalid login request", "", "/login")
		return
	}
	clientIP := c.ClientIP()

	if ac.limiter != nil {
		if decision := ac.limiter.Allow(clientIP, creds.Username); !decision.Allowed {
			ac.metrics.AuthAttempt(StrategyLocal, ReasonRateLimited)
			ac.log.WithFields(logrus.Fields{
				"username":    creds.Username,
				"client_ip":   clientIP,
				"scope":       decision.Scope,
				"retry_after": decision.RetryAfter,
			}).Warn("Login refused by rate limiter")
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			ac.fail(c, http.StatusTooManyRequests, "Too many login attempts. Please try again later.", ReasonRateLimited, "/login")
			return
		}
	}

	c.Set(ContextKeySessionState, StateAuthenticating)
	user, err := ac.local.Authenticate(c.Request.Context(), creds.Username, creds.Password)
	if err != nil {
		reason := ReasonOf(err)
		if reason == ReasonStoreUnavailable {
			ac.log.WithError(err).Error("Credential store unavailable during login")
			c.Error(err)
			respondStoreUnavailable(c)
			return
		}

		ac.metrics.AuthAttempt(StrategyLocal, reason)
		fields := logrus.Fields{
			"username":  creds.Username,
			"reason":    reason,
			"client_ip": clientIP,
		}
		if ac.limiter != nil {
			if scope := ac.limiter.RecordFailure(clientIP, creds.Username); scope != "" {
				fields["locked"] = scope
			}
		}
		ac.log.WithFields(fields).Warn("Local login failed")

		setUnauthenticated(c, reason)
		ac.fail(c, http.StatusUnauthorized, ac.loginFailureMessage(reason), ac.disclosedReason(reason), "/login")
		return
	}

	if ac.limiter != nil {
		ac.limiter.RecordSuccess(clientIP, creds.Username)
	}
	ac.metrics.AuthAttempt(StrategyLocal, "")
	ac.establishSession(c, user, StrategyLocal, sanitizeRedirectPath(creds.Next, ac.config.SuccessRedirect), http.StatusOK)
}

// Logout destroys the session and redirects to login.
func (ac *AuthController) Logout(c *gin.Context) {
	hadSession := ac.sessions.GetPayload(c.Request) != 0

	if err := ac.sessions.DestroySession(c.Request); err != nil {
		ac.log.WithError(err).Error("Failed to destroy session")
		c.Error(err)
		respondStoreUnavailable(c)
		return
	}

	if hadSession {
		ac.metrics.SessionDestroyed(DestroyReasonLogout)
		ac.log.WithField("user_id", GetUserID(c)).Info("User logged out")
	}

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

// Signup registers a local account and logs it in.
func (ac *AuthController) Signup(c *gin.Context) {
	var creds credentials
	if err := c.ShouldBind(&creds); err != nil {
		ac.fail(c, http.StatusBadRequest, "Invalid signup request", "", "/login")
		return
	}

	user, err := ac.service.Register(c.Request.Context(), creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			ac.log.WithError(err).Error("Credential store unavailable during signup")
			c.Error(err)
			respondStoreUnavailable(c)
			return
		}
		status, message := ac.validationFailure(err)
		ac.fail(c, status, message, "", "/login")
		return
	}

	ac.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("Registered local user")

	ac.establishSession(c, user, StrategyLocal, ac.config.SuccessRedirect, http.StatusCreated)
}

// Me returns the current user.
func (ac *AuthController) Me(c *gin.Context) {
	body := gin.H{
		"user":     newUserResponse(CurrentUser(c)),
		"strategy": ac.sessions.GetStrategy(c.Request),
	}
	if loginAt := ac.sessions.GetLoginAt(c.Request); !loginAt.IsZero() {
		body["login_at"] = loginAt.UTC()
	}
	c.JSON(http.StatusOK, body)
}

// ChangePassword updates the current user's password.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	user := CurrentUser(c)

	var req passwordChange
	if err := c.ShouldBind(&req); err != nil {
		ac.fail(c, http.StatusBadRequest, "Invalid password change request", "", ac.config.SuccessRedirect)
		return
	}

	err := ac.service.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, ErrStoreUnavailable):
		ac.log.WithError(err).Error("Credential store unavailable during password change")
		c.Error(err)
		respondStoreUnavailable(c)
		return
	case errors.Is(err, ErrIncorrectPassword):
		ac.fail(c, http.StatusForbidden, "Current password is incorrect", ReasonIncorrectPassword, ac.config.SuccessRedirect)
		return
	case errors.Is(err, ErrNoLocalPassword):
		ac.fail(c, http.StatusBadRequest, "This account signs in with an external provider", "", ac.config.SuccessRedirect)
		return
	case errors.Is(err, ErrNotFound):
		ac.fail(c, http.StatusUnauthorized, "Account no longer exists", ReasonNotFound, "/login")
		return
	default:
		status, message := ac.validationFailure(err)
		ac.fail(c, status, message, "", ac.config.SuccessRedirect)
		return
	}

	// A credential change invalidates any copy of the old token.
	if err := ac.sessions.RenewToken(c.Request.Context()); err != nil {
		c.Error(err)
		respondStoreUnavailable(c)
		return
	}
	ac.log.WithField("user_id", user.ID).Info("Password changed")

	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"message": "password updated"})
		return
	}
	ac.sessions.Flash(c.Request, "Password updated")
	c.Redirect(http.StatusFound, ac.config.SuccessRedirect)
}

// establishSession binds user to a fresh session token and answers the client.
func (ac *AuthController) establishSession(c *gin.Context, user *entities.User, strategy, next string, status int) {
	err := ac.sessions.CreateSession(c.Request, user, strategy)
	if err == nil {
		err = ac.sessions.CommitSession(c)
	}
	if err != nil {
		ac.log.WithError(err).WithField("user_id", user.ID).Error("Failed to create session")
		c.Error(err)
		respondStoreUnavailable(c)
		return
	}
	ac.metrics.SessionCreated()

	c.Set(ContextKeyUser, user)
	c.Set(ContextKeySessionState, StateAuthenticated)
	ac.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"strategy": strategy,
	}).Info("User logged in")

	if wantsJSON(c) {
		c.JSON(status, gin.H{"user": newUserResponse(user)})
		return
	}
	c.Redirect(http.StatusFound, next)
}

// fail reports a user-facing failure: JSON for API clients, a flash message and
// redirect for browsers.
func (ac *AuthController) fail(c *gin.Context, status int, message string, reason FailureReason, redirect string) {
	if wantsJSON(c) {
		body := gin.H{"error": message}
		if reason != "" {
			body["reason"] = reason
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	ac.sessions.Flash(c.Request, message)
	c.Redirect(http.StatusFound, redirect)
	c.Abort()
}

func (ac *AuthController) loginFailureMessage(reason FailureReason) string {
	if ac.config.GenericLoginErrors {
		return genericLoginFailure
	}
	switch reason {
	case ReasonIncorrectUsername:
		return "Incorrect username"
	case ReasonIncorrectPassword:
		return "Incorrect password"
	default:
		return genericLoginFailure
	}
}

// disclosedReason hides which credential was wrong when generic errors are on.
func (ac *AuthController) disclosedReason(reason FailureReason) FailureReason {
	if ac.config.GenericLoginErrors && (reason == ReasonIncorrectUsername || reason == ReasonIncorrectPassword) {
		return ""
	}
	return reason
}

func (ac *AuthController) validationFailure(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, "Username is already taken"
	case errors.Is(err, ErrUsernameRequired):
		return http.StatusBadRequest, "Username is required"
	case errors.Is(err, ErrUsernameInvalid):
		return http.StatusBadRequest, "Username must be 3-64 characters, alphanumeric with underscore/hyphen only"
	case errors.Is(err, ErrPasswordRequired):
		return http.StatusBadRequest, "Password is required"
	case errors.Is(err, ErrPasswordTooShort):
		return http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", ac.config.MinPasswordLength)
	case errors.Is(err, ErrPasswordTooLong):
		return http.StatusBadRequest, "Password exceeds maximum length of 72 bytes"
	default:
		ac.log.WithError(err).Error("Unexpected account error")
		return http.StatusInternalServerError, "Something went wrong. Please try again."
	}
}

func (ac *AuthController) providerNames() []entities.OAuthProvider {
	if ac.flow == nil {
		return nil
	}
	return ac.flow.Registry().List()
}

// renderTemplate renders an auth template into a buffer so a template error
// never leaves a half-written page.
func (ac *AuthController) renderTemplate(c *gin.Context, status int, name string, data gin.H) {
	var buf bytes.Buffer
	if err := ac.templates.ExecuteTemplate(&buf, name, data); err != nil {
		ac.log.WithError(err).Error("Failed to render template")
		c.String(http.StatusInternalServerError, "Template error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
