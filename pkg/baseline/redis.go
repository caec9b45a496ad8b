package baseline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tripflow/tripflow/pkg/errors"
)

// RedisConfig configures the Redis baseline backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all baseline keys
	Prefix string

	// TTL is the time-to-live for baseline keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "tripflow:baselines:",
		TTL:      24 * time.Hour,
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisStore keeps baselines in Redis for low-latency shared access
// across runs on different hosts.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore connects and verifies the server is reachable.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreInit, "failed to connect to Redis").
			WithContext("address", cfg.Address)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

// Name returns "redis".
func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) key(key string) string {
	return s.cfg.Prefix + key
}

func (s *RedisStore) indexKey() string {
	return s.cfg.Prefix + "index"
}

// Save persists the baseline and registers its key in the index set.
func (s *RedisStore) Save(ctx context.Context, b *Baseline) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to marshal baseline")
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(b.Key), data, s.cfg.TTL)
	pipe.SAdd(ctx, s.indexKey(), b.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to save baseline to Redis").
			WithContext("key", b.Key)
	}
	return nil
}

// Load retrieves a baseline by key.
func (s *RedisStore) Load(ctx context.Context, key string) (*Baseline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, errors.New(errors.CodeStoreNotFound, "baseline not found").
			WithContext("key", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to load baseline from Redis").
			WithContext("key", key)
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to decode baseline").
			WithContext("key", key)
	}
	return &b, nil
}

// Delete removes a baseline and its index entry.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.SRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, errors.CodeStoreWrite, "failed to delete baseline from Redis").
			WithContext("key", key)
	}
	return nil
}

// List returns all registered baseline keys.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStoreQuery, "failed to list baselines from Redis")
	}
	return keys, nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
