// Package oauth2 defines federated identity providers and the authorization-code
// flow that turns a provider callback into a Profile.
package oauth2

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

// Profile is the identity a provider returns after a successful code exchange.
type Profile struct {
	Provider         entities.OAuthProvider
	ExternalID       string
	ExternalUsername string
}

// Provider defines the interface for federated identity providers
type Provider interface {
	// Name returns the provider identifier used in routes (e.g., "github")
	Name() entities.OAuthProvider

	// AuthCodeURL builds the authorization URL. An empty verifier disables PKCE.
	AuthCodeURL(state, verifier string) string

	// Exchange trades an authorization code for the user's profile.
	// Failures wrap ErrExchangeFailed.
	Exchange(ctx context.Context, code, verifier string) (*Profile, error)
}

// Registry manages registered providers. It is filled at startup and only read afterwards.
type Registry struct {
	mu        sync.RWMutex
	providers map[entities.OAuthProvider]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[entities.OAuthProvider]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get retrieves a provider by name
func (r *Registry) Get(name entities.OAuthProvider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names in sorted order
func (r *Registry) List() []entities.OAuthProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]entities.OAuthProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Len returns the number of registered providers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
