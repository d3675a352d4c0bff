package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/logging"
)

func setupTestStore(t *testing.T) (*users.Repository, *database.Database) {
	t.Helper()

	db, err := database.NewDatabase(config.Database{
		Driver: config.DatabaseDriverSQLite,
		Path:   filepath.Join(t.TempDir(), "auth.db"),
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return users.NewRepository(db.DB, 2*time.Second), db
}

func testAuthConfig() config.Auth {
	return config.Auth{
		BcryptCost:        bcrypt.MinCost,
		MinPasswordLength: 6,
		SessionLifetime:   720 * time.Hour,
		SuccessRedirect:   "/",
		FailureRedirect:   "/login",
	}
}

func createLocalUser(t *testing.T, store CredentialStore, username, password string) *entities.User {
	t.Helper()

	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)

	user := &entities.User{Username: username, PasswordHash: hash}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

// closeStore makes every later store call fail as unavailable.
func closeStore(t *testing.T, db *database.Database) {
	t.Helper()
	require.NoError(t, db.Close())
}
