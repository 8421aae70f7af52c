package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the storage key of the analytics record.
const DefaultKey = "payment_analytics"

// Store persists the analytics record as JSON under a single key.
type Store interface {
	Load(ctx context.Context) (Analytics, error)
	Save(ctx context.Context, a Analytics) error
}

// redisKV is the subset of the Redis client used by RedisStore.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps analytics in Redis.
type RedisStore struct {
	client redisKV
	key    string
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return newRedisStore(client, key)
}

func newRedisStore(client redisKV, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Load reads the record. A missing key yields zero counters.
func (s *RedisStore) Load(ctx context.Context) (Analytics, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Analytics{}, nil
	}
	if err != nil {
		return Analytics{}, fmt.Errorf("load analytics: %w", err)
	}
	return decode(data)
}

// Save writes the record without expiry.
func (s *RedisStore) Save(ctx context.Context, a Analytics) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save analytics: %w", err)
	}
	return nil
}

// MemoryStore keeps the serialized record in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load reads the record.
func (s *MemoryStore) Load(_ context.Context) (Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return Analytics{}, nil
	}
	return decode(s.data)
}

// Save writes the record.
func (s *MemoryStore) Save(_ context.Context, a Analytics) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func decode(data []byte) (Analytics, error) {
	var a Analytics
	if err := json.Unmarshal(data, &a); err != nil {
		return Analytics{}, fmt.Errorf("decode analytics: %w", err)
	}
	return a, nil
}
