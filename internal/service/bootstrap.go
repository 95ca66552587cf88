package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// EnsureAdmin creates the admin role if needed and makes sure the account
// named username exists and holds it. Used at startup and by the CLI.
func EnsureAdmin(ctx context.Context, auth *AuthService, rbac RBACStore, username, email, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: ADMIN_USERNAME/ADMIN_PASSWORD are required", ErrMisconfigured)
	}

	if _, err := rbac.CreateRole(ctx, RoleAdmin, "Full administrative access"); err != nil {
		if err = mapStoreError(err); !errors.Is(err, ErrConflict) {
			return fmt.Errorf("failed to create admin role: %w", err)
		}
	}

	user, err := auth.users.GetUserByUsername(ctx, username)
	if err != nil {
		if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
			return err
		}
		user, err = auth.Register(ctx, RegisterInput{Username: username, Email: email, Password: password})
		if err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	}

	if user.HasRole(RoleAdmin) {
		return nil
	}
	if _, err := rbac.ReplaceUserRoles(ctx, user.ID, append(user.Roles, RoleAdmin)); err != nil {
		return fmt.Errorf("failed to grant admin role: %w", mapStoreError(err))
	}
	auth.log.WithField("user_id", user.ID).Info("admin role granted")
	return nil
}
