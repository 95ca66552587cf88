package client

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// tokenEndpoint accepts the code "good" and returns extra alongside the
// access token.
func tokenEndpoint(t *testing.T, extra map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_verification_code"})
			return
		}
		body := map[string]any{"access_token": "gho_test", "token_type": "bearer"}
		for k, v := range extra {
			body[k] = v
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func newGitHubTestServer(t *testing.T, emails []githubEmail) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", tokenEndpoint(t, nil))
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_test", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, githubUser{ID: 4242, Login: "Octo-Cat", Name: "Octo Cat", Email: "public@example.com"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testGitHubProvider(srv *httptest.Server) *GitHubProvider {
	endpoint := oauth2.Endpoint{
		AuthURL:   srv.URL + "/login/oauth/authorize",
		TokenURL:  srv.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return newGitHubProvider(config.ProviderConfig{ClientID: "id", ClientSecret: "secret"}, endpoint, srv.URL)
}

func TestGitHubExchange(t *testing.T) {
	srv := newGitHubTestServer(t, []githubEmail{
		{Email: "old@example.com", Primary: false, Verified: true},
		{Email: "octo@example.com", Primary: true, Verified: true},
	})
	p := testGitHubProvider(srv)

	ident, err := p.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "github", ident.Provider)
	assert.Equal(t, "4242", ident.ProviderUserID)
	assert.Equal(t, "Octo-Cat", ident.Login)
	assert.Equal(t, "octo@example.com", ident.Email)
	assert.True(t, ident.EmailVerified)
	assert.Contains(t, string(ident.Raw), `"login":"Octo-Cat"`)
}

func TestGitHubExchangeUnverifiedEmail(t *testing.T) {
	srv := newGitHubTestServer(t, []githubEmail{{Email: "octo@example.com", Primary: true, Verified: false}})
	p := testGitHubProvider(srv)

	ident, err := p.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "public@example.com", ident.Email)
	assert.False(t, ident.EmailVerified)
}

func TestGitHubExchangeBadCode(t *testing.T) {
	srv := newGitHubTestServer(t, nil)
	p := testGitHubProvider(srv)

	_, err := p.Exchange(context.Background(), "stolen")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestGitHubExchangeUnreachable(t *testing.T) {
	srv := newGitHubTestServer(t, nil)
	p := testGitHubProvider(srv)
	srv.Close()

	_, err := p.Exchange(context.Background(), "good")
	require.ErrorIs(t, err, service.ErrUnavailable)
}

const testIssuer = "https://issuer.example.com"

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func newOIDCTestProvider(t *testing.T, key *rsa.PrivateKey, idToken string) *OIDCProvider {
	t.Helper()
	extra := map[string]any{}
	if idToken != "" {
		extra["id_token"] = idToken
	}
	srv := httptest.NewServer(tokenEndpoint(t, extra))
	t.Cleanup(srv.Close)

	oauthCfg := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
		Scopes:       []string{oidc.ScopeOpenID},
	}
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: "client-id"})
	return newOIDCProvider("keycloak", oauthCfg, verifier)
}

func baseIDClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":                testIssuer,
		"aud":                "client-id",
		"sub":                "subject-1",
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"email":              "kc@example.com",
		"email_verified":     true,
		"name":               "Key Cloak",
		"preferred_username": "kcuser",
	}
}

func TestOIDCExchange(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := newOIDCTestProvider(t, key, signIDToken(t, key, baseIDClaims()))

	ident, err := p.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "keycloak", ident.Provider)
	assert.Equal(t, "subject-1", ident.ProviderUserID)
	assert.Equal(t, "kcuser", ident.Login)
	assert.Equal(t, "kc@example.com", ident.Email)
	assert.True(t, ident.EmailVerified)
	assert.Equal(t, "Key Cloak", ident.Name)
}

func TestOIDCExchangeRejectsBadIDToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	wrongAudience := baseIDClaims()
	wrongAudience["aud"] = "someone-else"
	expired := baseIDClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		idToken string
	}{
		{name: "missing id_token", idToken: ""},
		{name: "foreign key", idToken: signIDToken(t, other, baseIDClaims())},
		{name: "wrong audience", idToken: signIDToken(t, key, wrongAudience)},
		{name: "expired", idToken: signIDToken(t, key, expired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOIDCTestProvider(t, key, tt.idToken)
			_, err := p.Exchange(context.Background(), "good")
			require.ErrorIs(t, err, service.ErrInvalidCredentials)
		})
	}
}

func TestOIDCExchangeBadCode(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := newOIDCTestProvider(t, key, signIDToken(t, key, baseIDClaims()))

	_, err = p.Exchange(context.Background(), "bad")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}
