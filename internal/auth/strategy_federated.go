package auth

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
)

// FederatedStrategy finds or creates the user behind an external profile.
type FederatedStrategy struct {
	store CredentialStore
	log   logrus.FieldLogger
}

func NewFederatedStrategy(store CredentialStore, log logrus.FieldLogger) *FederatedStrategy {
	return &FederatedStrategy{store: store, log: log}
}

// Authenticate returns the existing user for the profile's external identity, or
// creates one with no password. Repeated and concurrent calls for the same
// identity return the same user.
func (s *FederatedStrategy) Authenticate(ctx context.Context, profile oauth2.Profile) (*entities.User, error) {
	if profile.Provider == "" || profile.ExternalID == "" {
		return nil, newFailure(ReasonExternalExchangeFailed, errors.New("profile has no external identity"))
	}

	user, err := s.store.FindByExternalID(ctx, profile.Provider, profile.ExternalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, newFailure(ReasonStoreUnavailable, err)
	}

	user = &entities.User{
		Provider:         profile.Provider,
		ExternalID:       profile.ExternalID,
		ExternalUsername: profile.ExternalUsername,
	}
	if err := s.store.Create(ctx, user); err != nil {
		if !errors.Is(err, users.ErrDuplicate) {
			return nil, newFailure(ReasonStoreUnavailable, err)
		}
		// Another request created it between our lookup and insert.
		existing, findErr := s.store.FindByExternalID(ctx, profile.Provider, profile.ExternalID)
		if findErr != nil {
			return nil, newFailure(ReasonStoreUnavailable, findErr)
		}
		return existing, nil
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"provider": profile.Provider,
	}).Info("Provisioned federated user")

	return user, nil
}
