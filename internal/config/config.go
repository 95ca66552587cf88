package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP        HTTPConfig
	Auth        AuthConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	NameService NameServiceConfig
	LogSink     LogSinkConfig
	OAuth       OAuthConfig
	Log         LogConfig
}

type HTTPConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret     string
	JWTAccessTTL  string
	JWTRefreshTTL string
	BcryptCost    string
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       string
}

type NameServiceConfig struct {
	BaseURL string
	Timeout string
}

type LogSinkConfig struct {
	Addr        string
	ServiceName string
}

type OAuthConfig struct {
	GitHub ProviderConfig
	OIDC   OIDCConfig
}

type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type OIDCConfig struct {
	ProviderConfig
	IssuerURL string
	Name      string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the environment, merging a .env file from the working directory
// when one exists. Variables already set in the process environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTP: HTTPConfig{
			Addr: getenv("HTTP_ADDR", ":8080"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET_KEY"),
			JWTAccessTTL:  getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL: getenv("JWT_REFRESH_TTL", "720h"),
			BcryptCost:    os.Getenv("BCRYPT_COST"),
			AdminUsername: os.Getenv("ADMIN_USERNAME"),
			AdminEmail:    os.Getenv("ADMIN_EMAIL"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", redisAddrFromHostPort()),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenv("REDIS_DB", "0"),
		},
		NameService: NameServiceConfig{
			BaseURL: nameServiceURL(),
			Timeout: getenv("NAME_SERVICE_TIMEOUT", "5s"),
		},
		LogSink: LogSinkConfig{
			Addr:        os.Getenv("LOG_SINK_ADDR"),
			ServiceName: getenv("LOG_SINK_SERVICE_NAME", "auth-service"),
		},
		OAuth: OAuthConfig{
			GitHub: ProviderConfig{
				ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
				ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
				RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
			},
			OIDC: OIDCConfig{
				ProviderConfig: ProviderConfig{
					ClientID:     os.Getenv("OIDC_CLIENT_ID"),
					ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
					RedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
				},
				IssuerURL: os.Getenv("OIDC_ISSUER_URL"),
				Name:      getenv("OIDC_PROVIDER_NAME", "oidc"),
			},
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "json"),
		},
	}
}

// Configured reports whether both client credentials are present.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

func redisAddrFromHostPort() string {
	return getenv("REDIS_HOST", "localhost") + ":" + getenv("REDIS_PORT", "6379")
}

func nameServiceURL() string {
	if url := os.Getenv("NAME_SERVICE_URL"); url != "" {
		return url
	}
	host := os.Getenv("NAME_SERVICE_HOST")
	if host == "" {
		return ""
	}
	return "http://" + host + ":" + getenv("NAME_SERVICE_PORT", "8000")
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
