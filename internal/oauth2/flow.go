package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	xoauth2 "golang.org/x/oauth2"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

// DefaultExchangeTimeout bounds the callback exchange when none is configured.
const DefaultExchangeTimeout = 10 * time.Second

// FlowHandler drives the web authorization-code flow against registered providers.
type FlowHandler struct {
	registry *Registry
	timeout  time.Duration
}

// NewFlowHandler creates a new flow handler
func NewFlowHandler(registry *Registry, timeout time.Duration) *FlowHandler {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return &FlowHandler{registry: registry, timeout: timeout}
}

// Registry returns the providers this handler serves.
func (h *FlowHandler) Registry() *Registry {
	return h.registry
}

// FlowStart is what the caller must keep until the callback arrives.
type FlowStart struct {
	AuthURL  string
	State    string
	Verifier string
}

// StartWebFlow generates a fresh state and PKCE verifier and builds the provider redirect.
func (h *FlowHandler) StartWebFlow(name entities.OAuthProvider) (*FlowStart, error) {
	provider, err := h.registry.Get(name)
	if err != nil {
		return nil, err
	}

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	verifier := xoauth2.GenerateVerifier()

	return &FlowStart{
		AuthURL:  provider.AuthCodeURL(state, verifier),
		State:    state,
		Verifier: verifier,
	}, nil
}

// CompleteWebFlow validates the callback query and exchanges the code under the
// configured timeout. Every failure after provider lookup wraps ErrExchangeFailed.
func (h *FlowHandler) CompleteWebFlow(
	ctx context.Context,
	name entities.OAuthProvider,
	expectedState, verifier string,
	query url.Values,
) (*Profile, error) {
	provider, err := h.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if errParam := query.Get("error"); errParam != "" {
		return nil, fmt.Errorf("%w: authorization error: %s - %s", ErrExchangeFailed, errParam, query.Get("error_description"))
	}

	if !statesEqual(expectedState, query.Get("state")) {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, ErrStateMismatch)
	}

	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, ErrMissingCode)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	profile, err := provider.Exchange(exchangeCtx, code, verifier)
	if err != nil {
		if errors.Is(err, ErrExchangeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if profile.ExternalID == "" {
		return nil, fmt.Errorf("%w: provider returned no user id", ErrExchangeFailed)
	}
	if profile.Provider == "" {
		profile.Provider = provider.Name()
	}
	return profile, nil
}

func statesEqual(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
