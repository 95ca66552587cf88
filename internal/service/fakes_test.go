package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kube-rca/auth-service/internal/cache"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/kube-rca/auth-service/internal/service/servicetest"
	"github.com/kube-rca/auth-service/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-with-at-least-32-bytes!!"

type fakeNames struct {
	name  string
	err   error
	calls int
}

func (f *fakeNames) Generate(context.Context, string, string) (string, error) {
	f.calls++
	return f.name, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event model.AuditEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	store    *servicetest.MemStore
	cache    *cache.Redis
	redis    *miniredis.Miniredis
	issuer   *token.Issuer
	auth     *AuthService
	guard    *Guard
	registry *Registry
	notifier *recordingNotifier
	names    *fakeNames
	now      time.Time
}

func (e *testEnv) clock() time.Time {
	return e.now
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		store:    servicetest.NewMemStore(),
		cache:    cache.NewRedis(client),
		redis:    mr,
		notifier: &recordingNotifier{},
		names:    &fakeNames{name: "generated_fox"},
		now:      time.Now().Truncate(time.Second),
	}

	issuer, err := token.NewIssuer(testSecret, 15*time.Minute, token.WithClock(env.clock))
	require.NoError(t, err)
	env.issuer = issuer

	log := quietLogger()
	env.auth, err = NewAuthService(env.store, env.cache, issuer, AuthOptions{
		BcryptCost: bcrypt.MinCost,
		Names:      env.names,
		Notifier:   env.notifier,
		Logger:     log,
		Now:        env.clock,
	})
	require.NoError(t, err)
	env.guard = NewGuard(issuer, env.cache, log)
	env.registry = NewRegistry(env.store, env.notifier, log)
	return env
}

func (e *testEnv) register(t *testing.T, username, email, password string) *model.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: password})
	require.NoError(t, err)
	return user
}

// admin returns a principal holding the admin role.
func (e *testEnv) admin(t *testing.T) *model.Principal {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, EnsureAdmin(ctx, e.auth, e.store, "root", "root@example.com", "rootpassword"))
	_, pair, err := e.auth.Login(ctx, "root", "rootpassword")
	require.NoError(t, err)
	principal, err := e.guard.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	return principal
}

var errBoom = errors.New("boom")
