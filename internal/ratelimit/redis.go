package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type RedisOptions struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Options  string `mapstructure:"options"`
}

// NewRedisClient returns a client for options, or nil when no host is
// configured.
func NewRedisClient(options RedisOptions) (*redis.Client, error) {
	if options.Host == "" {
		return nil, nil
	}

	redisOptions, err := redis.ParseURL(fmt.Sprintf("redis://%s:%d?%s", options.Host, options.Port, options.Options))
	if err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	redisOptions.Username = options.Username
	redisOptions.Password = options.Password

	return redis.NewClient(redisOptions), nil
}

// RedisLimiter keeps counts in Redis so that every server process shares the
// same quota. Each key is a counter that expires at the end of its window.
type RedisLimiter struct {
	options Options
	client  *redis.Client
	prefix  string
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, name string, options Options) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &RedisLimiter{
		options: options,
		client:  client,
		prefix:  "rate:" + name + ":",
	}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	key = l.prefix + key

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)

	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit: %w", err)
	}

	count := int(incr.Val())
	ttl := pttl.Val()

	// a new window starts with the first increment, or when a previous
	// expiry was lost
	if count == 1 || ttl < 0 {
		if err := l.client.PExpire(ctx, key, l.options.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit: %w", err)
		}
		ttl = l.options.Window
	}

	if count <= l.options.MaxRequests {
		return Decision{Allowed: true}, nil
	}

	retryAfter := l.options.RetryAfter
	if retryAfter == 0 {
		retryAfter = ttl
	}

	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

func (l *RedisLimiter) Status(ctx context.Context, key string) (Status, error) {
	key = l.prefix + key

	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)

	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Status{}, fmt.Errorf("rate limit status: %w", err)
	}

	now := time.Now()

	count, err := get.Int()
	if err != nil || pttl.Val() < 0 {
		return Status{
			Remaining: l.options.MaxRequests,
			ResetTime: now.Add(l.options.Window),
		}, nil
	}

	if count > l.options.MaxRequests {
		count = l.options.MaxRequests
	}

	return Status{
		Count:     count,
		Remaining: remaining(l.options.MaxRequests, count),
		ResetTime: now.Add(pttl.Val()),
	}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
