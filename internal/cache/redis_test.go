package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client), mr
}

func TestSessionLifecycle(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, c.SaveSession(ctx, "tok", model.SessionRecord{UserID: 7, CreatedAt: created}, 30*24*time.Hour))
	assert.True(t, mr.Exists("refresh_token:tok"))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("refresh_token:tok"))

	require.NoError(t, c.DeleteSession(ctx, "tok"))
	require.NoError(t, c.DeleteSession(ctx, "tok"))
	assert.False(t, mr.Exists("refresh_token:tok"))

	require.NoError(t, c.SaveSession(ctx, "tok", model.SessionRecord{UserID: 7, CreatedAt: created}, time.Hour))
	rec, err := c.TakeSession(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.UserID)
	assert.True(t, created.Equal(rec.CreatedAt))

	_, err = c.TakeSession(ctx, "tok")
	require.ErrorIs(t, err, ErrMiss)
}

func TestSessionExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SaveSession(ctx, "tok", model.SessionRecord{UserID: 1}, time.Hour))
	mr.FastForward(time.Hour + time.Second)

	_, err := c.TakeSession(ctx, "tok")
	require.ErrorIs(t, err, ErrMiss)
}

func TestTakeSessionSingleWinner(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.SaveSession(ctx, "race", model.SessionRecord{UserID: 3}, time.Hour))

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.TakeSession(ctx, "race")
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, ErrMiss)
	}
	assert.Equal(t, 1, winners)
}

func TestRevokeToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	revoked, err := c.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.RevokeToken(ctx, "jti-1", 15*time.Minute))
	revoked, err = c.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 15*time.Minute, mr.TTL(RevokedKeyPrefix+"jti-1"))

	require.NoError(t, c.RevokeToken(ctx, "jti-2", time.Minute))
	assert.Equal(t, 15*time.Minute, mr.TTL(RevokedKeyPrefix+"jti-1"))

	mr.FastForward(time.Minute + time.Second)
	revoked, err = c.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
	revoked, err = c.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Already expired tokens need no entry.
	require.NoError(t, c.RevokeToken(ctx, "jti-3", 0))
	assert.False(t, mr.Exists(RevokedKeyPrefix+"jti-3"))
}

func TestRevokeTokenConcurrent(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		short := fmt.Sprintf("short-%d", i)
		long := fmt.Sprintf("long-%d", i)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RevokeToken(ctx, short, 10*time.Minute))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RevokeToken(ctx, long, 14*time.Minute))
		}()
		wg.Wait()

		require.Equal(t, 10*time.Minute, mr.TTL(RevokedKeyPrefix+short))
		require.Equal(t, 14*time.Minute, mr.TTL(RevokedKeyPrefix+long))
	}
}

func TestCorruptSession(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("refresh_token:bad", "{not json"))

	_, err := c.TakeSession(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.False(t, mr.Exists("refresh_token:bad"))
}

func TestUnavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.TakeSession(context.Background(), "tok")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = c.IsRevoked(context.Background(), "jti")
	require.ErrorIs(t, err, ErrUnavailable)
}
