// File: internal/quota/redis.go
package quota

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soroscan/soroscan/pkg/utils"
)

// incrWithTTLScript increments a counter and sets its expiry only when the
// increment created the key. Running as a script keeps the pair atomic across
// concurrent clients.
var incrWithTTLScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return v
`)

// RedisCounterStore is a CounterStore backed by Redis, for deployments with
// multiple API nodes sharing quota state.
type RedisCounterStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NewRedisCounterStore creates a Redis-backed counter store
func NewRedisCounterStore(config *RedisConfig) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, utils.NewAppError(utils.ErrCodeExternal, "Failed to connect to Redis", err.Error())
	}

	return &RedisCounterStore{client: client}, nil
}

// Get returns the current counter value, 0 when absent
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeExternal, "Failed to read quota counter", err.Error())
	}
	return value, nil
}

// IncrWithTTL increments a counter, setting the TTL when newly created
func (s *RedisCounterStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	value, err := incrWithTTLScript.Run(ctx, s.client, []string{key}, int(ttl.Seconds())).Int64()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeExternal, "Failed to increment quota counter", err.Error())
	}
	return value, nil
}

// Close closes the Redis connection
func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}
