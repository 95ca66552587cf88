package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kube-rca/auth-service/internal/model"
	"github.com/sirupsen/logrus"
)

const maxNameLength = 50

// Registry administers roles and permissions. Every operation requires the
// caller to hold the admin role.
type Registry struct {
	store    RBACStore
	notifier Notifier
	log      logrus.FieldLogger
}

func NewRegistry(store RBACStore, notifier Notifier, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Registry{
		store:    store,
		notifier: notifier,
		log:      log.WithField("component", "registry"),
	}
}

func (r *Registry) ListRoles(ctx context.Context, actor *model.Principal) ([]model.Role, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	return r.store.ListRoles(ctx)
}

func (r *Registry) ListPermissions(ctx context.Context, actor *model.Principal) ([]model.Permission, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	return r.store.ListPermissions(ctx)
}

func (r *Registry) CreateRole(ctx context.Context, actor *model.Principal, name, description string) (*model.Role, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	name, err := cleanName("role", name)
	if err != nil {
		return nil, err
	}

	role, err := r.store.CreateRole(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return nil, mapStoreError(err)
	}
	r.audit(ctx, actor, "role_created", map[string]any{"role": role.Name})
	return role, nil
}

func (r *Registry) CreatePermission(ctx context.Context, actor *model.Principal, name, description string) (*model.Permission, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	name, err := cleanName("permission", name)
	if err != nil {
		return nil, err
	}

	perm, err := r.store.CreatePermission(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return nil, mapStoreError(err)
	}
	r.audit(ctx, actor, "permission_created", map[string]any{"permission": perm.Name})
	return perm, nil
}

// SetRolePermissions replaces the role's permission set with names. If any
// name is unknown nothing is changed and ErrUnknownPermission is returned.
func (r *Registry) SetRolePermissions(ctx context.Context, actor *model.Principal, roleID int64, names []string) (*model.Role, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	names, err := cleanNames("permission", names)
	if err != nil {
		return nil, err
	}

	role, err := r.store.ReplaceRolePermissions(ctx, roleID, names)
	if err != nil {
		return nil, mapStoreError(err)
	}
	r.audit(ctx, actor, "role_permissions_set", map[string]any{
		"role_id":     roleID,
		"permissions": strings.Join(role.Permissions, ","),
	})
	return role, nil
}

// SetUserRoles replaces the user's role set with the same all-or-nothing
// contract. The user's existing access tokens keep their old roles until they
// expire.
func (r *Registry) SetUserRoles(ctx context.Context, actor *model.Principal, userID int64, names []string) (*model.User, error) {
	if err := Authorize(actor, RoleAdmin); err != nil {
		return nil, err
	}
	names, err := cleanNames("role", names)
	if err != nil {
		return nil, err
	}

	user, err := r.store.ReplaceUserRoles(ctx, userID, names)
	if err != nil {
		return nil, mapStoreError(err)
	}
	r.audit(ctx, actor, "user_roles_set", map[string]any{
		"target_user_id": userID,
		"roles":          strings.Join(user.Roles, ","),
	})
	return user, nil
}

func (r *Registry) audit(ctx context.Context, actor *model.Principal, action string, meta map[string]any) {
	r.log.WithFields(logrus.Fields(meta)).WithField("user_id", actor.UserID).Info(action)
	r.notifier.Notify(ctx, model.AuditEvent{
		Level:    logrus.InfoLevel,
		Action:   action,
		Message:  "registry updated",
		UserID:   actor.UserID,
		Metadata: meta,
	})
}

func cleanName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", ErrValidation, kind)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: %s name longer than %d", ErrValidation, kind, maxNameLength)
	}
	return name, nil
}

// cleanNames trims and de-duplicates names, keeping first-seen order.
func cleanNames(kind string, names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n, err := cleanName(kind, n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}
