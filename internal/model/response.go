package model

import "time"

type RegisterRequest struct {
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	DisplayName string     `json:"displayName"`
	Phone       string     `json:"phone"`
	Gender      string     `json:"gender"`
	BirthDate   *time.Time `json:"birthDate"`
	Prefix      string     `json:"prefix"`
	Style       string     `json:"style"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type OAuthCallbackRequest struct {
	Code string `json:"code"`
}

type CreateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreatePermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type UserRolesRequest struct {
	Roles []string `json:"roles"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type PingResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserResponse `json:"user,omitempty"`
}

type UserResponse struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	IsActive      bool       `json:"is_active"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     *time.Time `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
	Profile       Profile    `json:"profile"`
	Roles         []string   `json:"roles"`
}

type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	UserID int64    `json:"user_id,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

func NewUserResponse(u *User) *UserResponse {
	if u == nil {
		return nil
	}
	resp := &UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		LastLogin:     u.LastLogin,
		Profile:       u.Profile,
		Roles:         u.Roles,
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		resp.CreatedAt = &created
	}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	return resp
}
