package db

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/kube-rca/auth-service/internal/model"
)

const roleColumns = `
	r.id, r.name, r.description,
	COALESCE((
		SELECT array_agg(p.name ORDER BY p.name)
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = r.id
	), '{}') AS permissions
`

func (db *Postgres) CreateRole(ctx context.Context, name, description string) (*model.Role, error) {
	role := model.Role{Permissions: []string{}}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO roles (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description
	`, name, description).Scan(&role.ID, &role.Name, &role.Description)
	if err != nil {
		return nil, translate(err)
	}
	return &role, nil
}

func (db *Postgres) CreatePermission(ctx context.Context, name, description string) (*model.Permission, error) {
	var perm model.Permission
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO permissions (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description
	`, name, description).Scan(&perm.ID, &perm.Name, &perm.Description)
	if err != nil {
		return nil, translate(err)
	}
	return &perm, nil
}

func (db *Postgres) ListRoles(ctx context.Context) ([]model.Role, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []model.Role{}
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (db *Postgres) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []model.Permission{}
	for rows.Next() {
		var perm model.Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.Description); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions swaps the role's whole permission set. Nothing
// changes when the role or any of the names is missing.
func (db *Postgres) ReplaceRolePermissions(ctx context.Context, roleID int64, names []string) (*model.Role, error) {
	var role *model.Role
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID); err != nil {
			return err
		}

		ids, err := resolveNames(ctx, tx, "permissions", "permission", names)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, unnest($2::bigint[])
		`, roleID, ids); err != nil {
			return err
		}

		role = &model.Role{}
		return tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, roleID).
			Scan(&role.ID, &role.Name, &role.Description, &role.Permissions)
	})
	if err != nil {
		return nil, translate(err)
	}
	return role, nil
}

// ReplaceUserRoles swaps the user's whole role set with the same
// all-or-nothing contract as ReplaceRolePermissions.
func (db *Postgres) ReplaceUserRoles(ctx context.Context, userID int64, names []string) (*model.User, error) {
	var user *model.User
	err := db.withTx(ctx, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
			return err
		}

		ids, err := resolveNames(ctx, tx, "roles", "role", names)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, unnest($2::bigint[])
		`, userID, ids); err != nil {
			return err
		}

		user, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, userID))
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func lockRow(ctx context.Context, tx pgx.Tx, query string, id int64) error {
	var locked int64
	return tx.QueryRow(ctx, query, id).Scan(&locked)
}

// resolveNames maps names to ids in table, failing with MissingNamesError
// when any name is unknown.
func resolveNames(ctx context.Context, tx pgx.Tx, table, kind string, names []string) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id, name FROM `+table+` WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]int64, len(names))
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		found[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(found))
	var missing []string
	for _, name := range names {
		id, ok := found[name]
		if !ok {
			if !slices.Contains(missing, name) {
				missing = append(missing, name)
			}
			continue
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingNamesError{Kind: kind, Names: missing}
	}
	return ids, nil
}
