package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kube-rca/auth-service/internal/model"
	"github.com/sirupsen/logrus"
)

// IdentityProvider exchanges an authorization code for the external user's
// identity. Exchange failures caused by a bad code must wrap
// ErrInvalidCredentials; transport failures must wrap ErrUnavailable.
type IdentityProvider interface {
	Name() string
	Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

// OAuthService completes the token-exchange callback for federated logins:
// it maps the external identity onto a local account and issues our own
// token pair.
type OAuthService struct {
	auth      *AuthService
	providers map[string]IdentityProvider
}

var (
	usernameSanitizer = regexp.MustCompile(`[^a-z0-9_.-]+`)
	prefixSanitizer   = regexp.MustCompile(`[^a-z0-9]+`)
)

func NewOAuthService(auth *AuthService, providers ...IdentityProvider) *OAuthService {
	m := make(map[string]IdentityProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &OAuthService{auth: auth, providers: m}
}

func (s *OAuthService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *OAuthService) Callback(ctx context.Context, provider, code string) (*model.User, model.TokenPair, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.TokenPair{}, fmt.Errorf("%w: oauth provider %q", ErrNotFound, provider)
	}
	if strings.TrimSpace(code) == "" {
		return nil, model.TokenPair{}, fmt.Errorf("%w: code is required", ErrValidation)
	}

	ident, err := p.Exchange(ctx, code)
	if err != nil {
		s.auth.log.WithError(err).WithField("provider", provider).Warn("oauth exchange failed")
		return nil, model.TokenPair{}, err
	}

	user, err := s.auth.resolveFederated(ctx, ident)
	if err != nil {
		return nil, model.TokenPair{}, err
	}

	pair, err := s.auth.IssueTokenPair(ctx, user)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	s.auth.notify(ctx, logrus.InfoLevel, "oauth_login", "federated login", user.ID, map[string]any{"provider": provider})
	return user, pair, nil
}

// resolveFederated finds the local account for ident: by provider identity,
// then by verified email (linking it), else a new password-less account.
func (s *AuthService) resolveFederated(ctx context.Context, ident *model.ExternalIdentity) (*model.User, error) {
	user, err := s.users.GetUserByProvider(ctx, ident.Provider, ident.ProviderUserID)
	if err == nil {
		return s.checkActive(user)
	}
	if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(ident.Email))
	if email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", ErrValidation)
	}

	fi := model.FederatedIdentity{
		Provider:       ident.Provider,
		ProviderUserID: ident.ProviderUserID,
		Payload:        ident.Raw,
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err == nil {
		if !ident.EmailVerified {
			return nil, ErrDuplicateEmail
		}
		if err := s.users.LinkFederatedIdentity(ctx, existing.ID, fi); err != nil {
			return nil, mapStoreError(err)
		}
		existing.Federated = &fi
		return s.checkActive(existing)
	}
	if err = mapStoreError(err); !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	username, err := s.federatedUsername(ctx, ident)
	if err != nil {
		return nil, err
	}

	created, err := s.users.CreateUser(ctx, &model.User{
		Username:      username,
		Email:         email,
		IsActive:      true,
		EmailVerified: ident.EmailVerified,
		Profile:       model.Profile{DisplayName: ident.Name},
		Federated:     &fi,
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	s.notify(ctx, logrus.InfoLevel, "register", "federated user registered", created.ID, map[string]any{"provider": ident.Provider})
	return created, nil
}

// federatedUsername prefers the provider login and falls back to the name
// service when it is unusable or taken.
func (s *AuthService) federatedUsername(ctx context.Context, ident *model.ExternalIdentity) (string, error) {
	candidate := usernameSanitizer.ReplaceAllString(strings.ToLower(ident.Login), "")
	if len(candidate) > 64 {
		candidate = candidate[:64]
	}
	if len(candidate) >= 3 {
		_, err := s.users.GetUserByUsername(ctx, candidate)
		if err = mapStoreError(err); errors.Is(err, ErrNotFound) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}

	if s.names == nil {
		return "", ErrDuplicateUsername
	}
	prefix := prefixSanitizer.ReplaceAllString(candidate, "")
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	return s.generateUsername(ctx, prefix, DefaultNameStyle)
}

func (s *AuthService) checkActive(user *model.User) (*model.User, error) {
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
