package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	xoauth2 "golang.org/x/oauth2"

	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
)

// Config describes a plain OAuth2 provider whose profile comes from a userinfo endpoint.
type Config struct {
	Name         entities.OAuthProvider
	ClientID     string
	ClientSecret string
	Endpoint     xoauth2.Endpoint
	RedirectURL  string
	Scopes       []string
	UserInfoURL  string

	// IDField and UsernameField name the userinfo keys for the profile.
	IDField       string
	UsernameField string

	// HTTPClient overrides the client used for token and userinfo calls.
	HTTPClient *http.Client
}

// OAuth2Provider exchanges codes with x/oauth2 and reads the profile from UserInfoURL.
type OAuth2Provider struct {
	cfg          Config
	oauth2Config *xoauth2.Config
}

// NewOAuth2Provider creates a new OAuth2 provider
func NewOAuth2Provider(cfg Config) (*OAuth2Provider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("user_info_url is required")
	}
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}

	return &OAuth2Provider{
		cfg: cfg,
		oauth2Config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
	}, nil
}

func (p *OAuth2Provider) Name() entities.OAuthProvider {
	return p.cfg.Name
}

func (p *OAuth2Provider) AuthCodeURL(state, verifier string) string {
	return authCodeURL(p.oauth2Config, state, verifier)
}

func (p *OAuth2Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Profile, error) {
	ctx = withHTTPClient(ctx, p.cfg.HTTPClient)

	token, err := exchangeCode(ctx, p.oauth2Config, code, verifier)
	if err != nil {
		return nil, err
	}

	info, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}

	return &oauth2.Profile{
		Provider:         p.cfg.Name,
		ExternalID:       stringField(info, p.cfg.IDField),
		ExternalUsername: stringField(info, p.cfg.UsernameField),
	}, nil
}

func (p *OAuth2Provider) fetchUserInfo(ctx context.Context, token *xoauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create user info request: %v", oauth2.ErrExchangeFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth2Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch user info: %v", oauth2.ErrExchangeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: user info request failed with status %d: %s", oauth2.ErrExchangeFailed, resp.StatusCode, string(body))
	}

	var info map[string]any
	decoder := json.NewDecoder(resp.Body)
	// numeric ids (GitHub) must not go through float64
	decoder.UseNumber()
	if err := decoder.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode user info: %v", oauth2.ErrExchangeFailed, err)
	}
	return info, nil
}

func authCodeURL(cfg *xoauth2.Config, state, verifier string) string {
	if verifier == "" {
		return cfg.AuthCodeURL(state)
	}
	return cfg.AuthCodeURL(state, xoauth2.S256ChallengeOption(verifier))
}

func exchangeCode(ctx context.Context, cfg *xoauth2.Config, code, verifier string) (*xoauth2.Token, error) {
	var opts []xoauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, xoauth2.VerifierOption(verifier))
	}

	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange token: %v", oauth2.ErrExchangeFailed, err)
	}
	return token, nil
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, xoauth2.HTTPClient, client)
}

func stringField(data map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
