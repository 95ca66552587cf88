package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kube-rca/auth-service/internal/cache"
	"github.com/kube-rca/auth-service/internal/client"
	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/db"
	"github.com/kube-rca/auth-service/internal/handler"
	"github.com/kube-rca/auth-service/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "auth-service",
		Short:         "Authentication and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(config.Load().Log)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "ensure-schema",
			Short: "Create the auth tables if they do not exist",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEnsureSchema(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "ensure-admin",
			Short: "Create the admin role and grant it to ADMIN_USERNAME",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runEnsureAdmin(cmd.Context())
			},
		},
	)
	return root
}

func setupLogger(cfg config.LogConfig) {
	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if level == logrus.DebugLevel || level == logrus.TraceLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg      config.Config
	pg       *db.Postgres
	redis    *redis.Client
	auth     *service.AuthService
	guard    *service.Guard
	registry *service.Registry
	sink     *client.LogSink
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log := logrus.StandardLogger()

	issuer, err := service.NewIssuer(cfg.Auth)
	if err != nil {
		return nil, err
	}
	opts, err := service.OptionsFromConfig(cfg.Auth)
	if err != nil {
		return nil, err
	}
	opts.Logger = log

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	a := &app{cfg: cfg, pg: db.NewPostgres(pool)}

	a.redis, err = cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	sessions := cache.NewRedis(a.redis)

	if cfg.NameService.BaseURL != "" {
		names, err := client.NewNameClient(cfg.NameService)
		if err != nil {
			a.close()
			return nil, err
		}
		opts.Names = names
	} else {
		log.Info("NAME_SERVICE_URL not set; usernames are required at sign-up")
	}

	if cfg.LogSink.Addr != "" {
		a.sink, err = client.NewLogSink(cfg.LogSink, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create log sink: %w", err)
		}
		opts.Notifier = a.sink
	}

	a.auth, err = service.NewAuthService(a.pg, sessions, issuer, opts)
	if err != nil {
		a.close()
		return nil, err
	}
	a.guard = service.NewGuard(issuer, sessions, log)
	a.registry = service.NewRegistry(a.pg, opts.Notifier, log)
	return a, nil
}

func (a *app) close() {
	if a.sink != nil {
		_ = a.sink.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pg != nil {
		a.pg.Pool.Close()
	}
}

func (a *app) identityProviders(ctx context.Context) []service.IdentityProvider {
	var providers []service.IdentityProvider
	if a.cfg.OAuth.GitHub.Configured() {
		providers = append(providers, client.NewGitHubProvider(a.cfg.OAuth.GitHub))
	}
	if a.cfg.OAuth.OIDC.Configured() && a.cfg.OAuth.OIDC.IssuerURL != "" {
		p, err := client.NewOIDCProvider(ctx, a.cfg.OAuth.OIDC)
		if err != nil {
			logrus.WithError(err).Warn("oidc provider disabled")
		} else {
			providers = append(providers, p)
		}
	}
	return providers
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		logrus.WithError(err).Error("startup failed")
		return err
	}
	defer a.close()

	if err := a.pg.EnsureAuthSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	if a.cfg.Auth.AdminUsername != "" {
		if err := service.EnsureAdmin(ctx, a.auth, a.pg, a.cfg.Auth.AdminUsername, a.cfg.Auth.AdminEmail, a.cfg.Auth.AdminPassword); err != nil {
			return err
		}
	}

	handlers := handler.Handlers{
		Auth:  handler.NewAuthHandler(a.auth, a.guard),
		Admin: handler.NewAdminHandler(a.registry),
		Guard: a.guard,
	}
	if providers := a.identityProviders(ctx); len(providers) > 0 {
		oauth := service.NewOAuthService(a.auth, providers...)
		handlers.OAuth = handler.NewOAuthHandler(oauth)
		logrus.WithField("providers", oauth.Providers()).Info("oauth enabled")
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler.NewRouter(handlers, logrus.StandardLogger()),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func runEnsureSchema(ctx context.Context) error {
	cfg := config.Load()
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.NewPostgres(pool).EnsureAuthSchema(ctx); err != nil {
		return err
	}
	logrus.Info("auth schema ready")
	return nil
}

func runEnsureAdmin(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pg.EnsureAuthSchema(ctx); err != nil {
		return err
	}
	cfg := a.cfg.Auth
	if err := service.EnsureAdmin(ctx, a.auth, a.pg, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}
	logrus.WithField("username", cfg.AdminUsername).Info("admin ensured")
	return nil
}
