package entities

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNoAuthPath is returned when a user record has neither a local password hash
// nor an external identity.
var ErrNoAuthPath = errors.New("user must have a password hash or an external identity")

// User is a persisted identity. Local accounts carry Username and PasswordHash,
// federated accounts carry Provider, ExternalID and ExternalUsername. A user may have both.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:100;uniqueIndex:idx_users_username,where:username <> ''" json:"username,omitempty"`
	PasswordHash string `gorm:"size:255" json:"-"`

	Provider         OAuthProvider `gorm:"size:50;uniqueIndex:idx_users_external,where:external_id <> ''" json:"provider,omitempty"`
	ExternalID       string        `gorm:"size:255;uniqueIndex:idx_users_external,where:external_id <> ''" json:"external_id,omitempty"`
	ExternalUsername string        `gorm:"size:255" json:"external_username,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// HasLocalCredentials reports whether the user can log in with a username and password.
func (u *User) HasLocalCredentials() bool {
	return u.Username != "" && u.PasswordHash != ""
}

// HasExternalIdentity reports whether the user is linked to a federated provider.
func (u *User) HasExternalIdentity() bool {
	return u.Provider != "" && u.ExternalID != ""
}

// Validate checks that at least one authentication path is populated.
func (u *User) Validate() error {
	if !u.HasLocalCredentials() && !u.HasExternalIdentity() {
		return ErrNoAuthPath
	}
	return nil
}

// DisplayName returns the name to show for the user.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.ExternalUsername
}

// BeforeSave enforces the authentication path invariant on every write.
func (u *User) BeforeSave(tx *gorm.DB) error {
	return u.Validate()
}
