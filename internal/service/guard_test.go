package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	good, _, err := env.issuer.IssueAccess(1, []string{"viewer"})
	require.NoError(t, err)

	other, err := token.NewIssuer(strings.Repeat("x", 40), 15*time.Minute)
	require.NoError(t, err)
	forged, _, err := other.IssueAccess(1, []string{RoleAdmin})
	require.NoError(t, err)

	past, err := token.NewIssuer(testSecret, 15*time.Minute, token.WithClock(func() time.Time {
		return env.now.Add(-time.Hour)
	}))
	require.NoError(t, err)
	expired, _, err := past.IssueAccess(1, nil)
	require.NoError(t, err)

	principal, err := env.guard.Authenticate(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, principal.Roles)

	_, err = env.guard.Authenticate(ctx, forged)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = env.guard.Authenticate(ctx, expired)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = env.guard.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, ErrTokenMalformed)

	_, err = env.guard.AuthenticateHeader(ctx, "")
	require.ErrorIs(t, err, ErrMissingAuthorization)
	_, err = env.guard.AuthenticateHeader(ctx, "Basic abc")
	require.ErrorIs(t, err, ErrMissingAuthorization)
	_, err = env.guard.AuthenticateHeader(ctx, "Bearer "+good)
	require.NoError(t, err)

	for _, err := range []error{ErrTokenInvalid, ErrTokenExpired, ErrTokenMalformed, ErrMissingAuthorization, ErrInvalidCredentials} {
		assert.True(t, IsAuthFailure(err), err.Error())
	}
	assert.False(t, IsAuthFailure(ErrForbidden))
}

func TestGuardRequireRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	userToken, _, err := env.issuer.IssueAccess(1, []string{"viewer"})
	require.NoError(t, err)
	adminToken, _, err := env.issuer.IssueAccess(2, []string{"viewer", RoleAdmin})
	require.NoError(t, err)

	_, err = env.guard.RequireRole(ctx, userToken, RoleAdmin)
	require.ErrorIs(t, err, ErrForbidden)
	assert.False(t, IsAuthFailure(err))

	principal, err := env.guard.RequireRole(ctx, adminToken, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), principal.UserID)

	_, err = env.guard.RequireRole(ctx, "garbage", RoleAdmin)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestGuardValidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	raw, claims, err := env.issuer.IssueAccess(5, []string{"editor"})
	require.NoError(t, err)

	v := env.guard.Validate(ctx, raw)
	assert.Equal(t, Validation{Valid: true, UserID: 5, Roles: []string{"editor"}}, v)

	require.NoError(t, env.cache.RevokeToken(ctx, claims.ID, time.Minute))
	assert.Equal(t, Validation{}, env.guard.Validate(ctx, raw))
	assert.Equal(t, Validation{}, env.guard.Validate(ctx, "nope"))
}

func TestAuthorize(t *testing.T) {
	require.ErrorIs(t, Authorize(nil, RoleAdmin), ErrMissingAuthorization)
	require.ErrorIs(t, Authorize(&model.Principal{Roles: []string{"viewer"}}, RoleAdmin), ErrForbidden)
	require.NoError(t, Authorize(&model.Principal{Roles: []string{RoleAdmin}}, RoleAdmin))
}
