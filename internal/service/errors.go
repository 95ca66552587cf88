package service

import (
	"errors"
	"fmt"

	"github.com/kube-rca/auth-service/internal/token"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrForbidden           = errors.New("forbidden")
	ErrUnknownPermission   = errors.New("unknown permission")
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnavailable         = errors.New("service unavailable")
	ErrMisconfigured       = errors.New("auth config invalid")

	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrDuplicateUsername = fmt.Errorf("%w: username already taken", ErrConflict)
	ErrDuplicateName     = fmt.Errorf("%w: name already exists", ErrConflict)

	ErrMissingAuthorization = token.ErrMissingAuthorization
	ErrTokenMalformed       = token.ErrTokenMalformed
	ErrTokenExpired         = token.ErrTokenExpired
	ErrTokenInvalid         = token.ErrTokenInvalid
	ErrTokenRevoked         = fmt.Errorf("%w: token revoked", token.ErrTokenInvalid)
)

// IsAuthFailure reports whether err means the caller could not be
// authenticated, as opposed to being authenticated but not allowed.
func IsAuthFailure(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrInvalidRefreshToken,
		ErrMissingAuthorization,
		ErrTokenMalformed,
		ErrTokenExpired,
		ErrTokenInvalid,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
