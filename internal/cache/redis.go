// Redis-backed session/token cache.
//
// Keys:
//   - refresh_token:<token> -> JSON session record, TTL = refresh window
//   - blacklisted_token:<jti> -> "1", TTL = access token's remaining lifetime

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/kube-rca/auth-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix = "refresh_token:"
	RevokedKeyPrefix = "blacklisted_token:"
)

var (
	ErrMiss        = errors.New("cache miss")
	ErrUnavailable = errors.New("cache unavailable")
)

type Redis struct {
	client redis.UniversalClient
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	db, err := strconv.Atoi(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB %q: %w", cfg.DB, err)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrap(r.client.Set(ctx, key, value, ttl).Err())
}

// Take reads and deletes key in one step. Of several concurrent callers at
// most one gets the value; the rest see ErrMiss.
func (r *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.GetDel(ctx, key).Bytes()
	if err != nil {
		return nil, wrap(err)
	}
	return val, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return wrap(r.client.Del(ctx, key).Err())
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap(err)
	}
	return n > 0, nil
}

// SaveSession stores the record behind a refresh token.
func (r *Redis) SaveSession(ctx context.Context, refreshToken string, rec model.SessionRecord, ttl time.Duration) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return r.Set(ctx, refreshKeyPrefix+refreshToken, payload, ttl)
}

// TakeSession atomically consumes the record behind a refresh token.
func (r *Redis) TakeSession(ctx context.Context, refreshToken string) (*model.SessionRecord, error) {
	payload, err := r.Take(ctx, refreshKeyPrefix+refreshToken)
	if err != nil {
		return nil, err
	}
	return decodeSession(payload)
}

func (r *Redis) DeleteSession(ctx context.Context, refreshToken string) error {
	return r.Delete(ctx, refreshKeyPrefix+refreshToken)
}

// RevokeToken denylists an access token id until its token would have
// expired. Each id is its own key, so entries age out independently.
func (r *Redis) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.Set(ctx, RevokedKeyPrefix+tokenID, []byte("1"), ttl)
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return r.Exists(ctx, RevokedKeyPrefix+tokenID)
}

func decodeSession(payload []byte) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &rec, nil
}

func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return ErrMiss
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
