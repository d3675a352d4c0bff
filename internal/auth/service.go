package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

var (
	ErrUserExists       = errors.New("user already exists")
	ErrUsernameRequired = errors.New("username is required")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters, alphanumeric and underscore/hyphen only")
	ErrNoLocalPassword  = errors.New("account has no local password")
)

// Service handles local account registration and password changes.
type Service struct {
	store  CredentialStore
	config config.Auth
}

// NewService creates a new account service.
func NewService(store CredentialStore, cfg config.Auth) *Service {
	return &Service{store: store, config: cfg}
}

// Register creates a local user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*entities.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}
	if err := ValidatePassword(password, s.config.MinPasswordLength); err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		Username:     username,
		PasswordHash: passwordHash,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, newFailure(ReasonStoreUnavailable, err)
	}

	return user, nil
}

// ChangePassword replaces the user's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, user *entities.User, current, next string) error {
	if !user.HasLocalCredentials() {
		return ErrNoLocalPassword
	}
	if !VerifyPassword(current, user.PasswordHash) {
		return ErrIncorrectPassword
	}
	if err := ValidatePassword(next, s.config.MinPasswordLength); err != nil {
		return err
	}

	hash, err := HashPassword(next, s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return newFailure(ReasonNotFound, err)
		}
		return newFailure(ReasonStoreUnavailable, err)
	}
	user.PasswordHash = hash
	return nil
}
