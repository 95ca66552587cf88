package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kube-rca/auth-service/internal/db"
	"github.com/kube-rca/auth-service/internal/model"
)

// CredentialStore is the durable user store. *db.Postgres implements it; its
// unique constraints are the final word on duplicate usernames and emails.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByProvider(ctx context.Context, provider, providerUserID string) (*model.User, error)
	LinkFederatedIdentity(ctx context.Context, userID int64, fi model.FederatedIdentity) error
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// RBACStore persists roles, permissions and their assignments.
type RBACStore interface {
	CreateRole(ctx context.Context, name, description string) (*model.Role, error)
	CreatePermission(ctx context.Context, name, description string) (*model.Permission, error)
	ListRoles(ctx context.Context) ([]model.Role, error)
	ListPermissions(ctx context.Context) ([]model.Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, names []string) (*model.Role, error)
	ReplaceUserRoles(ctx context.Context, userID int64, names []string) (*model.User, error)
}

// SessionCache holds refresh-token sessions and the access-token denylist.
// *cache.Redis implements it.
type SessionCache interface {
	SaveSession(ctx context.Context, refreshToken string, rec model.SessionRecord, ttl time.Duration) error
	TakeSession(ctx context.Context, refreshToken string) (*model.SessionRecord, error)
	DeleteSession(ctx context.Context, refreshToken string) error
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// UsernameGenerator is the remote name-service.
type UsernameGenerator interface {
	Generate(ctx context.Context, prefix, style string) (string, error)
}

// mapStoreError converts credential store errors into service errors.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}

	var conflict *db.ConflictError
	if errors.As(err, &conflict) {
		switch conflict.Field {
		case "email":
			return ErrDuplicateEmail
		case "username":
			return ErrDuplicateUsername
		case "name":
			return ErrDuplicateName
		default:
			return fmt.Errorf("%w: %s", ErrConflict, conflict.Field)
		}
	}

	var missing *db.MissingNamesError
	if errors.As(err, &missing) {
		target := ErrUnknownPermission
		if missing.Kind == "role" {
			target = ErrUnknownRole
		}
		return fmt.Errorf("%w: %v", target, missing.Names)
	}
	return err
}
