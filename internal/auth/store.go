package auth

import (
	"context"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

// CredentialStore is the persistence the strategies and resolver depend on.
// Implementations return users.ErrNotFound for a miss and users.ErrDuplicate
// for a uniqueness violation.
type CredentialStore interface {
	FindByID(ctx context.Context, id uint) (*entities.User, error)
	FindByUsername(ctx context.Context, username string) (*entities.User, error)
	FindByExternalID(ctx context.Context, provider entities.OAuthProvider, externalID string) (*entities.User, error)
	Create(ctx context.Context, user *entities.User) error
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
}
