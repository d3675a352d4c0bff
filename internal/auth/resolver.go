package auth

import (
	"context"
	"errors"

	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
)

// SessionPayload is what a session stores about its user: the user id.
type SessionPayload uint

// IdentityResolver maps users to session payloads and back.
type IdentityResolver struct {
	store CredentialStore
}

func NewIdentityResolver(store CredentialStore) *IdentityResolver {
	return &IdentityResolver{store: store}
}

// Serialize reduces a user to its id.
func (r *IdentityResolver) Serialize(user *entities.User) SessionPayload {
	return SessionPayload(user.ID)
}

// Deserialize loads the user for payload. A missing user is ErrNotFound and a
// store error is ErrStoreUnavailable; the two are never conflated.
func (r *IdentityResolver) Deserialize(ctx context.Context, payload SessionPayload) (*entities.User, error) {
	if payload == 0 {
		return nil, ErrNotFound
	}

	user, err := r.store.FindByID(ctx, uint(payload))
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, newFailure(ReasonNotFound, err)
		}
		return nil, newFailure(ReasonStoreUnavailable, err)
	}
	return user, nil
}
