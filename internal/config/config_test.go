package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("NAME_SERVICE_URL", "")
	t.Setenv("NAME_SERVICE_HOST", "names")

	cfg := Load()

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "15m", cfg.Auth.JWTAccessTTL)
	assert.Equal(t, "720h", cfg.Auth.JWTRefreshTTL)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "http://names:8000", cfg.NameService.BaseURL)
	assert.Equal(t, "auth-service", cfg.LogSink.ServiceName)
}

func TestProviderConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProviderConfig
		want bool
	}{
		{name: "empty", cfg: ProviderConfig{}, want: false},
		{name: "id-only", cfg: ProviderConfig{ClientID: "id"}, want: false},
		{name: "blank-secret", cfg: ProviderConfig{ClientID: "id", ClientSecret: "  "}, want: false},
		{name: "complete", cfg: ProviderConfig{ClientID: "id", ClientSecret: "secret"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Configured(); got != tt.want {
				t.Fatalf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}
