package failfast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/testforge/portalsuite/internal/config"
)

// Flag is a one-way switch shared by every test of a session. Once tripped
// it stays tripped.
type Flag interface {
	Tripped(ctx context.Context) (bool, error)
	Trip(ctx context.Context, by string) error
}

// LocalFlag is an in-process Flag
type LocalFlag struct {
	mu      sync.Mutex
	tripped bool
	by      string
}

// Tripped reports whether the flag was tripped
func (f *LocalFlag) Tripped(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tripped, nil
}

// Trip sets the flag; the first caller is remembered
func (f *LocalFlag) Trip(_ context.Context, by string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.tripped {
		f.tripped = true
		f.by = by
	}
	return nil
}

// TrippedBy returns the test that tripped the flag, if any
func (f *LocalFlag) TrippedBy() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.by
}

// Key prefix for shared session flags
const redisKeyPrefix = "portalsuite:failfast:"

// RedisFlag shares the flag between worker processes running the same session
type RedisFlag struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewRedisFlag creates a flag stored under the session id. The key expires
// after ttl so abandoned sessions do not accumulate.
func NewRedisFlag(client *redis.Client, sessionID string, ttl time.Duration) *RedisFlag {
	return &RedisFlag{client: client, key: redisKeyPrefix + sessionID, ttl: ttl}
}

// Tripped reports whether any worker tripped the flag
func (f *RedisFlag) Tripped(ctx context.Context) (bool, error) {
	n, err := f.client.Exists(ctx, f.key).Result()
	if err != nil {
		return false, fmt.Errorf("reading fail-fast flag: %w", err)
	}
	return n > 0, nil
}

// Trip sets the shared flag; the first worker to trip it is recorded
func (f *RedisFlag) Trip(ctx context.Context, by string) error {
	if err := f.client.SetNX(ctx, f.key, by, f.ttl).Err(); err != nil {
		return fmt.Errorf("setting fail-fast flag: %w", err)
	}
	return nil
}

// TrippedBy returns the test recorded by the first Trip
func (f *RedisFlag) TrippedBy(ctx context.Context) (string, error) {
	v, err := f.client.Get(ctx, f.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading fail-fast flag: %w", err)
	}
	return v, nil
}
