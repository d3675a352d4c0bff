// Package users provides the credential store: persisted user records looked up
// by id, username or federated identity.
//
// Every method bounds its database call with the repository timeout. Callers get
// ErrNotFound for a miss, ErrDuplicate for a uniqueness violation, and an error
// wrapping ErrUnavailable for anything else.
//
// # Usage
//
//	repo := users.NewRepository(db, 5*time.Second)
//	user, err := repo.FindByUsername(ctx, "alice")
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/gatekeeper/internal/entities"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrDuplicate   = errors.New("user already exists")
	ErrUnavailable = errors.New("credential store unavailable")
)

// DefaultTimeout bounds store calls when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Repository handles all user database operations.
type Repository struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Repository{db: db, timeout: timeout}
}

// FindByID retrieves a user by primary key.
func (r *Repository) FindByID(ctx context.Context, id uint) (*entities.User, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByUsername retrieves a local user. The match is case-sensitive.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*entities.User, error) {
	if username == "" {
		return nil, ErrNotFound
	}
	return r.first(ctx, "username = ?", username)
}

// FindByExternalID retrieves a federated user by provider and provider-side id.
func (r *Repository) FindByExternalID(ctx context.Context, provider entities.OAuthProvider, externalID string) (*entities.User, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return r.first(ctx, "provider = ? AND external_id = ?", provider, externalID)
}

// Create inserts a new user. A username or external identity that already
// exists yields ErrDuplicate.
func (r *Repository) Create(ctx context.Context, user *entities.User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, entities.ErrNoAuthPath) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return fmt.Errorf("%w: failed to create user: %v", ErrUnavailable, err)
}

// UpdatePasswordHash replaces the stored hash of a user.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uint, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if hash == "" {
		return entities.ErrNoAuthPath
	}

	// UpdateColumns skips the BeforeSave hook, which would validate the empty model.
	result := r.db.WithContext(ctx).Model(&entities.User{}).Where("id = ?", id).UpdateColumns(map[string]any{
		"password_hash": hash,
		"updated_at":    time.Now(),
	})
	if result.Error != nil {
		return fmt.Errorf("%w: failed to update password: %v", ErrUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of users.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (r *Repository) first(ctx context.Context, query string, args ...any) (*entities.User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var user entities.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &user, nil
}

// isUniqueViolation recognizes duplicate key errors from both sqlite and postgres,
// whether or not gorm error translation is enabled.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
