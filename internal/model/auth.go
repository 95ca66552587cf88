package model

import (
	"encoding/json"
	"slices"
	"time"
)

type User struct {
	ID            int64
	Username      string
	Email         string
	PasswordHash  *string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	LastLogin     *time.Time
	Profile       Profile
	Federated     *FederatedIdentity
	Roles         []string
}

type Profile struct {
	DisplayName string     `json:"displayName,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	BirthDate   *time.Time `json:"birthDate,omitempty"`
}

// FederatedIdentity links an account to an external OAuth/OIDC login.
type FederatedIdentity struct {
	Provider       string
	ProviderUserID string
	Payload        json.RawMessage
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Permissions []string `json:"permissions"`
}

type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Principal is the verified caller behind an access token.
type Principal struct {
	UserID  int64
	Roles   []string
	TokenID string
	Expiry  time.Time
}

func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

// SessionRecord is the cached value behind a refresh token.
type SessionRecord struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExternalIdentity is what an OAuth provider tells us about the user after a
// successful code exchange.
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Login          string
	Email          string
	EmailVerified  bool
	Name           string
	Raw            json.RawMessage
}
