package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
)

// BeginOAuth stores a fresh state and PKCE verifier in the session and redirects
// to the provider.
func (ac *AuthController) BeginOAuth(c *gin.Context) {
	name := entities.OAuthProvider(c.Param("provider"))
	if ac.flow == nil {
		ac.unknownProvider(c, name)
		return
	}

	start, err := ac.flow.StartWebFlow(name)
	if err != nil {
		if errors.Is(err, oauth2.ErrProviderNotFound) {
			ac.unknownProvider(c, name)
			return
		}
		ac.log.WithError(err).Error("Failed to start OAuth flow")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	ac.sessions.PutOAuthFlow(c.Request, start.State, start.Verifier)
	// the callback can only match state that reached the store
	if err := ac.sessions.CommitSession(c); err != nil {
		ac.log.WithError(err).WithField("provider", name).Error("Failed to save OAuth state")
		c.Error(err)
		respondStoreUnavailable(c)
		return
	}
	c.Redirect(http.StatusFound, start.AuthURL)
}

// OAuthCallback completes the exchange, finds or creates the user and logs them in.
// Any exchange failure redirects to the configured failure page with a flash message.
func (ac *AuthController) OAuthCallback(c *gin.Context) {
	name := entities.OAuthProvider(c.Param("provider"))
	if ac.flow == nil {
		ac.unknownProvider(c, name)
		return
	}

	state, verifier := ac.sessions.PopOAuthFlow(c.Request)
	c.Set(ContextKeySessionState, StateAuthenticating)

	profile, err := ac.flow.CompleteWebFlow(c.Request.Context(), name, state, verifier, c.Request.URL.Query())
	if err != nil {
		if errors.Is(err, oauth2.ErrProviderNotFound) {
			ac.unknownProvider(c, name)
			return
		}
		ac.federatedFailure(c, name, newFailure(ReasonExternalExchangeFailed, err))
		return
	}

	user, err := ac.federated.Authenticate(c.Request.Context(), *profile)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			ac.log.WithError(err).Error("Credential store unavailable during federated login")
			c.Error(err)
			respondStoreUnavailable(c)
			return
		}
		ac.federatedFailure(c, name, err)
		return
	}

	ac.metrics.AuthAttempt(string(name), "")
	ac.establishSession(c, user, string(name), ac.config.SuccessRedirect, http.StatusOK)
}

func (ac *AuthController) federatedFailure(c *gin.Context, name entities.OAuthProvider, err error) {
	reason := ReasonOf(err)
	ac.metrics.AuthAttempt(string(name), reason)
	ac.log.WithFields(logrus.Fields{
		"provider": name,
		"reason":   reason,
	}).WithError(err).Warn("Federated login failed")

	c.Error(err)
	setUnauthenticated(c, reason)
	ac.fail(c, http.StatusUnauthorized, fmt.Sprintf("Could not sign in with %s. Please try again.", name), reason, ac.config.FailureRedirect)
}

func (ac *AuthController) unknownProvider(c *gin.Context, name entities.OAuthProvider) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error": fmt.Sprintf("unknown provider %q", name),
	})
}
