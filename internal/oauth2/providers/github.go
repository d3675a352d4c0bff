package providers

import (
	"golang.org/x/oauth2/github"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

const githubUserURL = "https://api.github.com/user"

// GitHubConfig holds the OAuth app credentials for GitHub.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// NewGitHubProvider creates a provider for GitHub OAuth apps. The profile id is
// the numeric GitHub user id and the username is the login.
func NewGitHubProvider(cfg GitHubConfig) (*OAuth2Provider, error) {
	return NewOAuth2Provider(Config{
		Name:          entities.OAuthProviderGitHub,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Endpoint:      github.Endpoint,
		RedirectURL:   cfg.CallbackURL,
		Scopes:        []string{"read:user"},
		UserInfoURL:   githubUserURL,
		IDField:       "id",
		UsernameField: "login",
	})
}
