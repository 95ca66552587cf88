// Package token mints and verifies the HS256 access tokens and the opaque
// refresh token values handed to clients.
package token

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	MinSecretLength    = 32
	refreshTokenLength = 43
	bearerPrefix       = "Bearer "
)

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrTokenMalformed       = errors.New("token malformed")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenInvalid         = errors.New("token signature invalid")
	ErrSecretTooShort       = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

// Claims is the fixed payload of an access token.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type Issuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(secret string, accessTTL time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if accessTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}

	i := &Issuer{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccess signs a short-lived access token for userID carrying a snapshot
// of its role names.
func (i *Issuer) IssueAccess(userID int64, roles []string) (string, *Claims, error) {
	now := i.now()
	claims := &Claims{
		Roles: normalizeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks structure, signature and expiry, in that order of reporting:
// undecodable input is ErrTokenMalformed, a bad signature or algorithm is
// ErrTokenInvalid and a well-signed but stale token is ErrTokenExpired.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classify(err)
	}

	if _, err := claims.UserID(); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingAuthorization
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return "", ErrMissingAuthorization
	}
	return raw, nil
}

// NewRefreshToken returns an opaque, URL-safe random value. It carries no
// claims; only the session cache decides whether it is still good.
func NewRefreshToken() (string, error) {
	return gonanoid.New(refreshTokenLength)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrTokenMalformed
	default:
		return ErrTokenInvalid
	}
}

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
