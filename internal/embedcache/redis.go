package embedcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the cache with a shared redis instance. Errors are
// returned to the Fallback wrapper, which absorbs them; RedisStore itself
// never logs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig holds redis backing-store configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration

	// KeyPrefix namespaces rankd entries on a shared instance.
	KeyPrefix string
}

// NewRedisStore creates a redis-backed store. The connection is verified
// lazily; an unreachable server surfaces as per-operation errors that the
// Fallback wrapper degrades on.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "rankd:embed:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		ttl:    cfg.TTL,
		prefix: prefix,
	}
}

// GetErr returns the vector or an error. Corrupt payloads are a miss, not
// an error.
func (s *RedisStore) GetErr(ctx context.Context, key Key) ([]float32, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, ok := decodeVector(raw)
	if !ok {
		return nil, false, nil
	}
	return vec, true, nil
}

// PutErr stores the vector with the configured TTL.
func (s *RedisStore) PutErr(ctx context.Context, key Key, vec []float32) error {
	return s.client.Set(ctx, s.prefix+key.String(), encodeVector(vec), s.ttl).Err()
}

// Ping checks connectivity; used by the Fallback circuit to probe recovery.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
