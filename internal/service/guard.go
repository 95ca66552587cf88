package service

import (
	"context"
	"fmt"

	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/token"
	"github.com/sirupsen/logrus"
)

const RoleAdmin = "admin"

// Guard verifies access tokens and enforces role requirements. Roles come from
// the token's claims, so a role removed from a user keeps working until the
// token expires.
type Guard struct {
	issuer   *token.Issuer
	sessions SessionCache
	log      logrus.FieldLogger
}

// Validation is the answer given to other services asking whether a token is
// good.
type Validation struct {
	Valid  bool
	UserID int64
	Roles  []string
}

func NewGuard(issuer *token.Issuer, sessions SessionCache, log logrus.FieldLogger) *Guard {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guard{
		issuer:   issuer,
		sessions: sessions,
		log:      log.WithField("component", "guard"),
	}
}

// Authenticate verifies raw and checks it against the revocation set.
func (g *Guard) Authenticate(ctx context.Context, raw string) (*model.Principal, error) {
	claims, err := g.issuer.Verify(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := g.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, mapCacheError(err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	userID, _ := claims.UserID()
	return &model.Principal{
		UserID:  userID,
		Roles:   claims.Roles,
		TokenID: claims.ID,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}

// AuthenticateHeader is Authenticate for a raw Authorization header value.
func (g *Guard) AuthenticateHeader(ctx context.Context, header string) (*model.Principal, error) {
	raw, err := token.ParseBearer(header)
	if err != nil {
		return nil, err
	}
	return g.Authenticate(ctx, raw)
}

// RequireRole authenticates raw and fails with ErrForbidden unless the token
// carries role.
func (g *Guard) RequireRole(ctx context.Context, raw, role string) (*model.Principal, error) {
	principal, err := g.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := Authorize(principal, role); err != nil {
		g.log.WithFields(logrus.Fields{"user_id": principal.UserID, "role": role}).Info("role check failed")
		return nil, err
	}
	return principal, nil
}

// Validate reports validity without surfacing the failure reason.
func (g *Guard) Validate(ctx context.Context, raw string) Validation {
	principal, err := g.Authenticate(ctx, raw)
	if err != nil {
		g.log.WithError(err).Debug("token validation failed")
		return Validation{}
	}
	return Validation{Valid: true, UserID: principal.UserID, Roles: principal.Roles}
}

// Authorize checks an already verified principal for role.
func Authorize(principal *model.Principal, role string) error {
	if principal == nil {
		return ErrMissingAuthorization
	}
	if !principal.HasRole(role) {
		return fmt.Errorf("%w: %s role required", ErrForbidden, role)
	}
	return nil
}
