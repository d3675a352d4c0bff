package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	xoauth2 "golang.org/x/oauth2"

	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
)

// OIDCConfig configures a generic OpenID Connect issuer.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	HTTPClient *http.Client
}

// OIDCProvider authenticates against an OpenID Connect issuer and verifies the ID token.
type OIDCProvider struct {
	cfg          OIDCConfig
	verifier     *oidc.IDTokenVerifier
	oauth2Config *xoauth2.Config
}

// NewOIDCProvider discovers the issuer configuration and creates the provider.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer_url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	ctx = withOIDCClient(ctx, cfg.HTTPClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCProvider{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

func (p *OIDCProvider) Name() entities.OAuthProvider {
	return entities.OAuthProviderOIDC
}

func (p *OIDCProvider) AuthCodeURL(state, verifier string) string {
	return authCodeURL(p.oauth2Config, state, verifier)
}

func (p *OIDCProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Profile, error) {
	ctx = withOIDCClient(ctx, p.cfg.HTTPClient)

	token, err := exchangeCode(ctx, p.oauth2Config, code, verifier)
	if err != nil {
		return nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: missing id_token in response", oauth2.ErrExchangeFailed)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to verify ID token: %v", oauth2.ErrExchangeFailed, err)
	}

	var claims struct {
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", oauth2.ErrExchangeFailed, err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}

	return &oauth2.Profile{
		Provider:         entities.OAuthProviderOIDC,
		ExternalID:       idToken.Subject,
		ExternalUsername: username,
	}, nil
}

func withOIDCClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, client)
}
