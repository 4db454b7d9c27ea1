package security

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	mailredis "github.com/dmitrymomot/mailing/pkg/redis"
)

// allowScript prunes the window, checks the count and records the send in one round trip.
// KEYS[1] bucket, ARGV: now ms, window ms, max, member.
var allowScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

// RedisRateLimiter keeps each bucket in a sorted set scored by send time, so
// every process sharing the Redis database sees the same window.
type RedisRateLimiter struct {
	client redis.UniversalClient
	limits Limits
	keys   mailredis.Keyspace
	now    func() time.Time
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter creates a limiter storing buckets under "<prefix>:ratelimit:<id>".
// An empty prefix means "mailing".
func NewRedisRateLimiter(client redis.UniversalClient, limits Limits, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "mailing"
	}
	return &RedisRateLimiter{
		client: client,
		limits: limits.normalize(),
		keys:   mailredis.Keyspace(prefix).Sub("ratelimit"),
		now:    time.Now,
	}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Join(ErrSecurity, ErrInvalidIdentifier)
	}

	now := l.now().UnixMilli()
	res, err := allowScript.Run(ctx, l.client, []string{l.keys.Key(id)},
		now, l.limits.Window.Milliseconds(), l.limits.MaxEmails,
		strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (l *RedisRateLimiter) Remaining(ctx context.Context, id string) (int, error) {
	key := l.keys.Key(id)
	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", l.cutoff())
		card = p.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max(0, l.limits.MaxEmails-int(card.Val())), nil
}

func (l *RedisRateLimiter) Reset(ctx context.Context, id string) error {
	return l.client.Del(ctx, l.keys.Key(id)).Err()
}

func (l *RedisRateLimiter) ResetIn(ctx context.Context, id string) (time.Duration, bool, error) {
	key := l.keys.Key(id)
	var oldest *redis.ZSliceCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, key, "-inf", l.cutoff())
		oldest = p.ZRangeWithScores(ctx, key, 0, 0)
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	entries := oldest.Val()
	if len(entries) == 0 {
		return 0, false, nil
	}
	sentAt := time.UnixMilli(int64(entries[0].Score))
	return max(0, sentAt.Add(l.limits.Window).Sub(l.now())), true, nil
}

func (l *RedisRateLimiter) cutoff() string {
	return strconv.FormatInt(l.now().Add(-l.limits.Window).UnixMilli(), 10)
}
