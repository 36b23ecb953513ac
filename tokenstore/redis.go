package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "console:storage:"

// RedisProvider keeps each namespace in one Redis hash so several console replicas can
// share browser storage.
type RedisProvider struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Provider = (*RedisProvider)(nil)

// NewRedisProvider creates a provider on an existing client. A positive ttl is refreshed on every write.
func NewRedisProvider(client *redis.Client, ttl time.Duration) *RedisProvider {
	return &RedisProvider{client: client, ttl: ttl}
}

// NewRedisProviderFromURL parses a redis:// URL and pings the server.
func NewRedisProviderFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisProvider, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("[tokenstore NewRedisProviderFromURL] parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[tokenstore NewRedisProviderFromURL] ping: %w", err)
	}
	return NewRedisProvider(client, ttl), nil
}

func (p *RedisProvider) For(namespace string) Store {
	return &redisStore{provider: p, key: redisKeyPrefix + namespace}
}

// Close releases the underlying client.
func (p *RedisProvider) Close() error {
	return p.client.Close()
}

type redisStore struct {
	provider *RedisProvider
	key      string
}

func (s *redisStore) Get(ctx context.Context, kind Kind) (string, error) {
	v, err := s.provider.client.HGet(ctx, s.key, string(kind)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis_storage_get_failed: %w", err)
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, kind Kind, value string) error {
	pipe := s.provider.client.TxPipeline()
	pipe.HSet(ctx, s.key, string(kind), value)
	if s.provider.ttl > 0 {
		pipe.Expire(ctx, s.key, s.provider.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis_storage_set_failed: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context, kinds ...Kind) error {
	if len(kinds) == 0 {
		return nil
	}
	fields := make([]string, 0, len(kinds))
	for _, k := range kinds {
		fields = append(fields, string(k))
	}
	if err := s.provider.client.HDel(ctx, s.key, fields...).Err(); err != nil {
		return fmt.Errorf("redis_storage_clear_failed: %w", err)
	}
	return nil
}
