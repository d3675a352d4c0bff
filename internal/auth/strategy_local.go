package auth

import (
	"context"
	"errors"

	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

// StrategyLocal is the strategy name for username/password logins.
const StrategyLocal = "local"

// LocalStrategy authenticates a username and password against the credential store.
type LocalStrategy struct {
	store CredentialStore
}

func NewLocalStrategy(store CredentialStore) *LocalStrategy {
	return &LocalStrategy{store: store}
}

// Authenticate looks the username up (case-sensitive) and checks the password.
// It never writes to the store.
func (s *LocalStrategy) Authenticate(ctx context.Context, username, password string) (*entities.User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrIncorrectUsername
		}
		return nil, newFailure(ReasonStoreUnavailable, err)
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, ErrIncorrectPassword
	}

	return user, nil
}
