package config

// Default paths and names
const (
	// DefaultDatabasePath is the default path for the sqlite credential store
	DefaultDatabasePath = "./gatekeeper.db"

	// DefaultSessionCookieName is the name of the session cookie
	DefaultSessionCookieName = "session"
)

// Database drivers
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Session stores
const (
	SessionStoreSQLite = "sqlite"
	SessionStoreRedis  = "redis"
)
