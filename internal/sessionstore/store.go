package sessionstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alexedwards/scs/v2"
	"github.com/sirupsen/logrus"

	"github.com/mrlokans/gatekeeper/internal/config"
)

// Store is an scs store that can report its health and release its resources.
type Store interface {
	scs.Store
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// New builds the configured session store. sharedDB is the credential database
// handle, used by the sqlite store when no separate path is configured.
func New(cfg config.Session, redisCfg config.Redis, sharedDB *sql.DB, log logrus.FieldLogger) (Store, error) {
	switch cfg.Store {
	case config.SessionStoreSQLite, "":
		var (
			store Store
			err   error
		)
		if cfg.SQLitePath != "" {
			store, err = OpenSQLiteStore(cfg.SQLitePath, cfg.CleanupInterval)
		} else {
			if sharedDB == nil {
				return nil, fmt.Errorf("sqlite session store needs a database handle or SESSION_SQLITE_PATH")
			}
			store, err = NewSQLiteStore(sharedDB, cfg.CleanupInterval)
		}
		if err != nil {
			return nil, err
		}
		log.WithField("store", store.Name()).Info("Session store initialized")
		return store, nil

	case config.SessionStoreRedis:
		store, err := NewRedisStore(redisCfg)
		if err != nil {
			return nil, err
		}
		log.WithField("store", store.Name()).Info("Session store initialized")
		return store, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSessionStore, cfg.Store)
	}
}
