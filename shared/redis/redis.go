package redis

import (
	"context"
	"errors"
	"time"

	"provider-messaging/backend/pkg/resilience"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("redis: key not found")

// RedisClient is a thin string cache over go-redis. Calls are guarded by a
// circuit breaker so an unreachable Redis degrades to cache misses quickly.
type RedisClient struct {
	client  *redis.Client
	breaker *resilience.CircuitBreaker
}

// NewRedisClient connects using a redis:// URL or a bare host:port address.
func NewRedisClient(addr string, breaker *resilience.CircuitBreaker) (*RedisClient, error) {
	if addr == "" {
		return nil, errors.New("redis: empty address")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return NewFromOptions(opts, breaker), nil
}

func NewFromOptions(opts *redis.Options, breaker *resilience.CircuitBreaker) *RedisClient {
	return &RedisClient{client: redis.NewClient(opts), breaker: breaker}
}

func (r *RedisClient) do(fn func() error) error {
	if r.breaker == nil {
		return fn()
	}
	return r.breaker.Execute(fn)
}

func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.do(func() error {
		return r.client.Set(ctx, key, value, expiration).Err()
	})
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	var val string
	miss := false
	err := r.do(func() error {
		v, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		val = v
		return err
	})
	if err != nil {
		return "", err
	}
	if miss {
		return "", ErrMiss
	}
	return val, nil
}

// Ping is used by the health checker.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
