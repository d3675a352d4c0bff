package entities

// OAuthProvider identifies a federated identity provider.
type OAuthProvider string

const (
	OAuthProviderGitHub OAuthProvider = "github"
	OAuthProviderOIDC   OAuthProvider = "oidc"
)
