package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIURL = "https://api.github.com"

// GitHubProvider completes the GitHub OAuth code exchange.
type GitHubProvider struct {
	oauth  *oauth2.Config
	apiURL string
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func NewGitHubProvider(cfg config.ProviderConfig) *GitHubProvider {
	return newGitHubProvider(cfg, github.Endpoint, githubAPIURL)
}

func newGitHubProvider(cfg config.ProviderConfig, endpoint oauth2.Endpoint, apiURL string) *GitHubProvider {
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiURL: apiURL,
	}
}

func (p *GitHubProvider) Name() string {
	return "github"
}

func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}
	httpClient := p.oauth.Client(ctx, tok)

	body, err := getJSON(ctx, httpClient, p.apiURL+"/user")
	if err != nil {
		return nil, err
	}
	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse github user: %w", err)
	}

	ident := &model.ExternalIdentity{
		Provider:       p.Name(),
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Login:          user.Login,
		Email:          user.Email,
		Name:           user.Name,
		Raw:            body,
	}

	// The profile email may be empty or unverified; prefer the primary
	// verified address from the emails endpoint.
	if emailsBody, err := getJSON(ctx, httpClient, p.apiURL+"/user/emails"); err == nil {
		var emails []githubEmail
		if json.Unmarshal(emailsBody, &emails) == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					ident.Email = e.Email
					ident.EmailVerified = true
					break
				}
			}
		}
	}
	return ident, nil
}

// OIDCProvider completes an OpenID Connect code exchange and verifies the
// returned ID token.
type OIDCProvider struct {
	name     string
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

type oidcClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// NewOIDCProvider discovers the issuer's endpoints and keys.
func NewOIDCProvider(ctx context.Context, cfg config.OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc issuer: %w", err)
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newOIDCProvider(cfg.Name, oauthCfg, verifier), nil
}

func newOIDCProvider(name string, oauthCfg *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{name: name, oauth: oauthCfg, verifier: verifier}
}

func (p *OIDCProvider) Name() string {
	return p.name
}

func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error) {
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, classifyExchangeError(err)
	}

	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", service.ErrInvalidCredentials)
	}
	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidCredentials, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrInvalidCredentials, err)
	}
	var raw json.RawMessage
	_ = idToken.Claims(&raw)

	return &model.ExternalIdentity{
		Provider:       p.name,
		ProviderUserID: idToken.Subject,
		Login:          claims.PreferredUsername,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		Name:           claims.Name,
		Raw:            raw,
	}, nil
}

// classifyExchangeError separates a rejected code from an unreachable
// provider.
func classifyExchangeError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", service.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", service.ErrInvalidCredentials, err)
}

func getJSON(ctx context.Context, httpClient *http.Client, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: provider rejected token", service.ErrInvalidCredentials)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: provider returned status %d", service.ErrUnavailable, resp.StatusCode)
	}
	return body, nil
}
