package security

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// RateLimiter counts sends per identifier (an address, user id or IP) over a sliding window.
type RateLimiter interface {
	// Allow records one send for id and reports whether it fits in the window.
	// A rejected send is not recorded.
	Allow(ctx context.Context, id string) (bool, error)
	// Remaining returns how many sends id has left in the current window.
	Remaining(ctx context.Context, id string) (int, error)
	// Reset forgets every send recorded for id.
	Reset(ctx context.Context, id string) error
	// ResetIn returns the time until the oldest recorded send leaves the
	// window; ok is false when nothing is recorded.
	ResetIn(ctx context.Context, id string) (d time.Duration, ok bool, err error)
}

// Limits holds the window configuration.
type Limits struct {
	MaxEmails int           `env:"MAIL_RATE_LIMIT_MAX" envDefault:"100"`
	Window    time.Duration `env:"MAIL_RATE_LIMIT_WINDOW" envDefault:"1h"`
}

// DefaultLimits allows 100 emails per hour.
func DefaultLimits() Limits {
	return Limits{MaxEmails: 100, Window: time.Hour}
}

func (l Limits) normalize() Limits {
	def := DefaultLimits()
	if l.MaxEmails <= 0 {
		l.MaxEmails = def.MaxEmails
	}
	if l.Window <= 0 {
		l.Window = def.Window
	}
	return l
}

// MemoryRateLimiter keeps send timestamps in process memory. One mutex guards
// all window bookkeeping. Use RedisRateLimiter when several processes send.
type MemoryRateLimiter struct {
	limits  Limits
	now     func() time.Time
	buckets map[string][]time.Time
	mu      sync.Mutex
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// NewMemoryRateLimiter creates an in-memory limiter. Zero limits take the defaults.
func NewMemoryRateLimiter(limits Limits) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limits:  limits.normalize(),
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Join(ErrSecurity, ErrInvalidIdentifier)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := l.prune(id, now)
	if len(bucket) >= l.limits.MaxEmails {
		return false, nil
	}
	l.buckets[id] = append(bucket, now)
	return true, nil
}

func (l *MemoryRateLimiter) Remaining(_ context.Context, id string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return max(0, l.limits.MaxEmails-len(l.prune(id, l.now()))), nil
}

func (l *MemoryRateLimiter) Reset(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, id)
	return nil
}

func (l *MemoryRateLimiter) ResetIn(_ context.Context, id string) (time.Duration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := l.prune(id, now)
	if len(bucket) == 0 {
		return 0, false, nil
	}
	return max(0, bucket[0].Add(l.limits.Window).Sub(now)), true, nil
}

// prune drops timestamps older than the window. Buckets are kept in
// insertion order, so the oldest entry is first. Caller holds mu.
func (l *MemoryRateLimiter) prune(id string, now time.Time) []time.Time {
	bucket := l.buckets[id]
	cutoff := now.Add(-l.limits.Window)
	i, _ := slices.BinarySearchFunc(bucket, cutoff, func(t, c time.Time) int {
		if t.After(c) {
			return 1
		}
		return -1
	})
	bucket = bucket[i:]

	if len(bucket) == 0 {
		delete(l.buckets, id)
		return nil
	}
	l.buckets[id] = bucket
	return bucket
}
