package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/gatekeeper/internal/config"
	"github.com/mrlokans/gatekeeper/internal/entities"
	"github.com/mrlokans/gatekeeper/internal/logging"
)

func setupTestDatabase(t *testing.T) *Database {
	t.Helper()

	cfg := config.Database{
		Driver: config.DatabaseDriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
	db, err := NewDatabase(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDatabase_MigratesUsers(t *testing.T) {
	db := setupTestDatabase(t)

	assert.True(t, db.DB.Migrator().HasTable(&entities.User{}))
	assert.True(t, db.DB.Migrator().HasIndex(&entities.User{}, "idx_users_username"))
	assert.True(t, db.DB.Migrator().HasIndex(&entities.User{}, "idx_users_external"))
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "mysql"}, logging.Discard())
	assert.ErrorIs(t, err, config.ErrUnknownDatabaseDriver)
}

func TestDatabase_EnforcesAuthPathInvariant(t *testing.T) {
	db := setupTestDatabase(t)

	err := db.DB.Create(&entities.User{Username: "nopassword"}).Error
	assert.ErrorIs(t, err, entities.ErrNoAuthPath)
}

func TestDatabase_PartialUniqueIndexes(t *testing.T) {
	db := setupTestDatabase(t)

	// Two federated users without usernames must not collide on the username index
	require.NoError(t, db.DB.Create(&entities.User{
		Provider: entities.OAuthProviderGitHub, ExternalID: "1", ExternalUsername: "one",
	}).Error)
	require.NoError(t, db.DB.Create(&entities.User{
		Provider: entities.OAuthProviderGitHub, ExternalID: "2", ExternalUsername: "two",
	}).Error)

	// Same external id on another provider is a different identity
	require.NoError(t, db.DB.Create(&entities.User{
		Provider: entities.OAuthProviderOIDC, ExternalID: "1", ExternalUsername: "one",
	}).Error)

	err := db.DB.Create(&entities.User{
		Provider: entities.OAuthProviderGitHub, ExternalID: "1", ExternalUsername: "dup",
	}).Error
	assert.Error(t, err)
}

func TestDatabase_PingAfterClose(t *testing.T) {
	db := setupTestDatabase(t)
	require.NoError(t, db.Close())

	assert.Error(t, db.Ping(context.Background()))
}
