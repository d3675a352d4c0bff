package interfaces

// This file contains compile-time interface implementation checks.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/alexedwards/scs/v2"

	"github.com/mrlokans/gatekeeper/internal/auth"
	"github.com/mrlokans/gatekeeper/internal/database"
	"github.com/mrlokans/gatekeeper/internal/database/users"
	"github.com/mrlokans/gatekeeper/internal/http"
	"github.com/mrlokans/gatekeeper/internal/metrics"
	"github.com/mrlokans/gatekeeper/internal/oauth2"
	"github.com/mrlokans/gatekeeper/internal/oauth2/providers"
	"github.com/mrlokans/gatekeeper/internal/sessionstore"
)

// =============================================================================
// Credential Store
// =============================================================================

var _ auth.CredentialStore = (*users.Repository)(nil)

// =============================================================================
// Session Stores
// =============================================================================

var _ sessionstore.Store = (*sessionstore.SQLiteStore)(nil)
var _ sessionstore.Store = (*sessionstore.RedisStore)(nil)
var _ scs.CtxStore = (*sessionstore.RedisStore)(nil)

// =============================================================================
// Federated Identity Providers
// =============================================================================

var _ oauth2.Provider = (*providers.OAuth2Provider)(nil)
var _ oauth2.Provider = (*providers.OIDCProvider)(nil)

// =============================================================================
// Health Checks and Metrics
// =============================================================================

var _ http.Pinger = (*database.Database)(nil)
var _ http.NamedPinger = (*sessionstore.SQLiteStore)(nil)
var _ http.NamedPinger = (*sessionstore.RedisStore)(nil)
var _ auth.Recorder = (*metrics.Metrics)(nil)
