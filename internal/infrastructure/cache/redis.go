package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"horizon/internal/domain/aggregation"
)

const namespace = "aggregate"

// RedisStore shares views between API instances. Values are JSON encoded;
// diagnostics lose their wrapped error on the way through.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ aggregation.ViewStore = (*RedisStore)(nil)

// NewRedisStore creates a store on client. A zero ttl keeps entries until
// they are overwritten.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient connects to a single Redis node.
func NewRedisClient(addr, password string) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
}

func (s *RedisStore) Load(ctx context.Context, key string) (*aggregation.Result, error) {
	data, err := s.client.Get(ctx, namespace+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, aggregation.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var result aggregation.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode cached view: %w", err)
	}
	return &result, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, result *aggregation.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode view: %w", err)
	}
	return s.client.Set(ctx, namespace+":"+key, data, s.ttl).Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
