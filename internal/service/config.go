package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// NewIssuer builds the token issuer from the auth section of the config.
func NewIssuer(cfg config.AuthConfig, opts ...token.Option) (*token.Issuer, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET_KEY is required", ErrMisconfigured)
	}

	accessTTL, err := time.ParseDuration(cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JWT_ACCESS_TTL", ErrMisconfigured)
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, accessTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	return issuer, nil
}

// OptionsFromConfig fills the config-driven parts of AuthOptions.
func OptionsFromConfig(cfg config.AuthConfig) (AuthOptions, error) {
	refreshTTL, err := time.ParseDuration(cfg.JWTRefreshTTL)
	if err != nil || refreshTTL <= 0 {
		return AuthOptions{}, fmt.Errorf("%w: invalid JWT_REFRESH_TTL", ErrMisconfigured)
	}

	cost := bcrypt.DefaultCost
	if v := strings.TrimSpace(cfg.BcryptCost); v != "" {
		cost, err = strconv.Atoi(v)
		if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return AuthOptions{}, fmt.Errorf("%w: invalid BCRYPT_COST", ErrMisconfigured)
		}
	}

	return AuthOptions{
		RefreshTTL: refreshTTL,
		BcryptCost: cost,
	}, nil
}
