package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// DefaultRedisKey is the key the state document is stored under.
const DefaultRedisKey = "peakwatch:state"

// RedisBackend stores the state document under one Redis key. A single SET
// replaces the whole document, so readers never see a partial write.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to the Redis server at addr. It does not verify
// connectivity; call Ping for that.
func NewRedisBackend(addr, password string, db int, key string) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("redis backend: addr is required")
	}
	return NewRedisBackendWithOptions(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}, key), nil
}

// NewRedisBackendWithOptions builds a backend from explicit client options.
func NewRedisBackendWithOptions(opts *redis.Options, key string) *RedisBackend {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisBackend{client: redis.NewClient(opts), key: key}
}

func (r *RedisBackend) Name() string { return "redis" }

// Ping checks that the server is reachable.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Load(ctx context.Context) (*records.State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return Decode(data)
}

func (r *RedisBackend) Save(ctx context.Context, state records.State) error {
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
