package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings for the Redis-backed mail stores.
type Config struct {
	URL           string        `env:"MAIL_REDIS_URL"`
	PoolSize      int           `env:"MAIL_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns  int           `env:"MAIL_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout   time.Duration `env:"MAIL_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout   time.Duration `env:"MAIL_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout  time.Duration `env:"MAIL_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	RetryAttempts int           `env:"MAIL_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"MAIL_REDIS_RETRY_INTERVAL" envDefault:"1s"`
}

// Option adjusts a Config before connecting.
type Option func(*Config)

// WithPoolSize sets the maximum number of connections in the pool.
func WithPoolSize(n int) Option {
	return func(c *Config) {
		c.PoolSize = n
	}
}

// WithRetry sets the startup retry attempts and the base backoff interval.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(c *Config) {
		c.RetryAttempts = attempts
		c.RetryInterval = interval
	}
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		RetryAttempts: 3,
		RetryInterval: time.Second,
	}
}

// Open connects to url with default settings. Accepts redis:// and rediss:// URLs.
//
//	client, err := redis.Open(ctx, os.Getenv("MAIL_REDIS_URL"), redis.WithRetry(5, time.Second))
func Open(ctx context.Context, url string, opts ...Option) (redis.UniversalClient, error) {
	cfg := DefaultConfig()
	cfg.URL = url
	return OpenConfig(ctx, cfg, opts...)
}

// OpenConfig connects with cfg, retrying with linear backoff until the first PING succeeds.
func OpenConfig(ctx context.Context, cfg Config, opts ...Option) (redis.UniversalClient, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	ro, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	return connect(ctx, ro, cfg.RetryAttempts, cfg.RetryInterval)
}

func clientOptions(cfg Config) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if !strings.HasPrefix(cfg.URL, "redis://") && !strings.HasPrefix(cfg.URL, "rediss://") {
		return nil, ErrFailedToParseURL
	}

	ro, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}

	def := DefaultConfig()
	ro.PoolSize = positive(cfg.PoolSize, def.PoolSize)
	ro.MinIdleConns = max(cfg.MinIdleConns, 0)
	ro.DialTimeout = positive(cfg.DialTimeout, def.DialTimeout)
	ro.ReadTimeout = positive(cfg.ReadTimeout, def.ReadTimeout)
	ro.WriteTimeout = positive(cfg.WriteTimeout, def.WriteTimeout)
	return ro, nil
}

func connect(ctx context.Context, ro *redis.Options, attempts int, interval time.Duration) (redis.UniversalClient, error) {
	attempts = max(attempts, 1)

	var lastErr error
	for i := range attempts {
		client := redis.NewClient(ro)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		if err := wait(ctx, time.Duration(i+1)*interval); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	return nil, errors.Join(ErrConnectionFailed, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func positive[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}
