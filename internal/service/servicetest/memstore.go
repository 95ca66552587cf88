// Package servicetest provides in-memory stores for tests of the service and
// handler packages.
package servicetest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kube-rca/auth-service/internal/db"
	"github.com/kube-rca/auth-service/internal/model"
)

// MemStore is an in-memory credential and RBAC store that enforces the same
// uniqueness rules as the Postgres schema. Safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*model.User
	roles       map[int64]*model.Role
	permissions map[int64]*model.Permission
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       map[int64]*model.User{},
		roles:       map[int64]*model.Role{},
		permissions: map[int64]*model.Permission{},
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func copyUser(u *model.User) *model.User {
	out := *u
	out.Roles = slices.Clone(u.Roles)
	if u.Federated != nil {
		fi := *u.Federated
		out.Federated = &fi
	}
	return &out
}

func (m *MemStore) CreateUser(_ context.Context, user *model.User) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return nil, &db.ConflictError{Field: "username"}
		}
		if strings.EqualFold(u.Email, user.Email) {
			return nil, &db.ConflictError{Field: "email"}
		}
		if user.Federated != nil && u.Federated != nil &&
			u.Federated.Provider == user.Federated.Provider &&
			u.Federated.ProviderUserID == user.Federated.ProviderUserID {
			return nil, &db.ConflictError{Field: "oauth"}
		}
	}
	stored := copyUser(user)
	stored.ID = m.id()
	stored.CreatedAt = time.Now().UTC()
	m.users[stored.ID] = stored
	return copyUser(stored), nil
}

func (m *MemStore) findUser(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *MemStore) GetUserByID(_ context.Context, userID int64) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return u.ID == userID })
}

func (m *MemStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return u.Username == username })
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *MemStore) GetUserByProvider(_ context.Context, provider, providerUserID string) (*model.User, error) {
	return m.findUser(func(u *model.User) bool {
		return u.Federated != nil && u.Federated.Provider == provider && u.Federated.ProviderUserID == providerUserID
	})
}

func (m *MemStore) LinkFederatedIdentity(_ context.Context, userID int64, fi model.FederatedIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	u.Federated = &fi
	return nil
}

func (m *MemStore) UpdateLastLogin(_ context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	u.LastLogin = &at
	return nil
}

// SetActive flips the account flag the service layer cannot change itself.
func (m *MemStore) SetActive(userID int64, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID].IsActive = active
}

func (m *MemStore) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *MemStore) CreateRole(_ context.Context, name, description string) (*model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			return nil, &db.ConflictError{Field: "name"}
		}
	}
	role := &model.Role{ID: m.id(), Name: name, Description: description, Permissions: []string{}}
	m.roles[role.ID] = role
	out := *role
	return &out, nil
}

func (m *MemStore) CreatePermission(_ context.Context, name, description string) (*model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.permissions {
		if p.Name == name {
			return nil, &db.ConflictError{Field: "name"}
		}
	}
	perm := &model.Permission{ID: m.id(), Name: name, Description: description}
	m.permissions[perm.ID] = perm
	out := *perm
	return &out, nil
}

func (m *MemStore) ListRoles(context.Context) ([]model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Role, 0, len(m.roles))
	for _, r := range m.roles {
		role := *r
		role.Permissions = slices.Clone(r.Permissions)
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) ListPermissions(context.Context) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) ReplaceRolePermissions(_ context.Context, roleID int64, names []string) (*model.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return nil, db.ErrNotFound
	}
	known := map[string]bool{}
	for _, p := range m.permissions {
		known[p.Name] = true
	}
	if missing := missingNames(names, known); len(missing) > 0 {
		return nil, &db.MissingNamesError{Kind: "permission", Names: missing}
	}
	role.Permissions = sortedCopy(names)
	out := *role
	out.Permissions = slices.Clone(role.Permissions)
	return &out, nil
}

func (m *MemStore) ReplaceUserRoles(_ context.Context, userID int64, names []string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	known := map[string]bool{}
	for _, r := range m.roles {
		known[r.Name] = true
	}
	if missing := missingNames(names, known); len(missing) > 0 {
		return nil, &db.MissingNamesError{Kind: "role", Names: missing}
	}
	user.Roles = sortedCopy(names)
	return copyUser(user), nil
}

func missingNames(names []string, known map[string]bool) []string {
	var missing []string
	for _, n := range names {
		if !known[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

func sortedCopy(names []string) []string {
	out := slices.Clone(names)
	sort.Strings(out)
	return out
}
