package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kube-rca/auth-service/internal/model"
)

func (db *Postgres) EnsureAuthSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			display_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			birth_date DATE,
			oauth_provider TEXT,
			oauth_id TEXT,
			oauth_payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_login TIMESTAMPTZ,
			CONSTRAINT users_username_key UNIQUE (username),
			CONSTRAINT users_oauth_key UNIQUE (oauth_provider, oauth_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS roles (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			CONSTRAINT roles_name_key UNIQUE (name)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS permissions (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			CONSTRAINT permissions_name_key UNIQUE (name)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS role_permissions (
			role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
			permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
			PRIMARY KEY (role_id, permission_id)
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS user_roles (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE RESTRICT,
			PRIMARY KEY (user_id, role_id)
		)
		`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_key ON users (lower(email))`,
		`CREATE INDEX IF NOT EXISTS user_roles_role_id_idx ON user_roles(role_id)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const userColumns = `
	u.id, u.username, u.email, u.password_hash, u.is_active, u.email_verified,
	u.display_name, u.phone, u.gender, u.birth_date,
	u.oauth_provider, u.oauth_id, u.oauth_payload,
	u.created_at, u.last_login,
	COALESCE((
		SELECT array_agg(r.name ORDER BY r.name)
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id
	), '{}') AS roles
`

func (db *Postgres) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	var provider, providerID *string
	var payload []byte
	if fi := user.Federated; fi != nil {
		provider, providerID = &fi.Provider, &fi.ProviderUserID
		payload = fi.Payload
	}

	query := `
		WITH inserted AS (
			INSERT INTO users (
				username, email, password_hash, is_active, email_verified,
				display_name, phone, gender, birth_date,
				oauth_provider, oauth_id, oauth_payload, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM inserted u
	`
	row := db.Pool.QueryRow(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.EmailVerified,
		user.Profile.DisplayName,
		user.Profile.Phone,
		user.Profile.Gender,
		user.Profile.BirthDate,
		provider,
		providerID,
		payload,
	)
	created, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

func (db *Postgres) GetUserByID(ctx context.Context, userID int64) (*model.User, error) {
	return db.getUser(ctx, `u.id = $1`, userID)
}

func (db *Postgres) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `u.username = $1`, username)
}

// GetUserByEmail matches case-insensitively, the same way users_email_lower_key
// enforces uniqueness.
func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `lower(u.email) = lower($1)`, email)
}

func (db *Postgres) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*model.User, error) {
	return db.getUser(ctx, `u.oauth_provider = $1 AND u.oauth_id = $2`, provider, providerUserID)
}

func (db *Postgres) LinkFederatedIdentity(ctx context.Context, userID int64, fi model.FederatedIdentity) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE users
		SET oauth_provider = $2, oauth_id = $3, oauth_payload = $4
		WHERE id = $1
	`, userID, fi.Provider, fi.ProviderUserID, []byte(fi.Payload))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *Postgres) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := db.Pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at)
	return err
}

func (db *Postgres) getUser(ctx context.Context, where string, args ...any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE ` + where
	user, err := scanUser(db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		user       model.User
		provider   *string
		providerID *string
		payload    []byte
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.EmailVerified,
		&user.Profile.DisplayName,
		&user.Profile.Phone,
		&user.Profile.Gender,
		&user.Profile.BirthDate,
		&provider,
		&providerID,
		&payload,
		&user.CreatedAt,
		&user.LastLogin,
		&user.Roles,
	)
	if err != nil {
		return nil, err
	}
	if provider != nil && providerID != nil {
		user.Federated = &model.FederatedIdentity{
			Provider:       *provider,
			ProviderUserID: *providerID,
			Payload:        payload,
		}
	}
	return &user, nil
}
