package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis"
)

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(key string) *redis.StringCmd
	Set(key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(keys ...string) *redis.IntCmd
	Close() error
}

// RedisStore keeps JSON-encoded sessions in Redis, which lets several
// processes share session state. Sessions are stored without a TTL.
type RedisStore struct {
	client RedisClient
	prefix string

	mu     sync.RWMutex
	closed bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix for session keys.
// Default: "cinder:session:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed store over an existing client.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	cfg := &redisStoreConfig{
		prefix: "cinder:session:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
	}
}

// DialRedis connects to addr and checks the connection with PING.
func DialRedis(addr, password string, db int, opts ...RedisStoreOption) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis %s: %w", addr, err)
	}
	return NewRedisStore(client, opts...), nil
}

func (r *RedisStore) key(id string) string {
	return r.prefix + id
}

func (r *RedisStore) check(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed{}
	}
	return ctx.Err()
}

// GetOrCreate loads the session under id, creating and storing one on a miss.
func (r *RedisStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}

	data, err := r.client.Get(r.key(id)).Bytes()
	if err == redis.Nil {
		s := New(id)
		if err := r.Put(ctx, id, s); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get %s: %w", id, err)
	}
	return Decode(data)
}

// Put encodes s and stores it under id.
func (r *RedisStore) Put(ctx context.Context, id string, s *Session) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(r.key(id), data, 0).Err(); err != nil {
		return fmt.Errorf("session: redis set %s: %w", id, err)
	}
	return nil
}

// Contains reports whether id is stored.
func (r *RedisStore) Contains(ctx context.Context, id string) (bool, error) {
	if err := r.check(ctx); err != nil {
		return false, err
	}
	n, err := r.client.Exists(r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("session: redis exists %s: %w", id, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
