package checker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type mxEntry struct {
	expiresAt time.Time
	result    MXResult
	err       error
}

// mxCache remembers definitive answers (records, NXDOMAIN, no MX) for a TTL
// and collapses concurrent lookups of the same domain into one query.
// Lookup failures are never cached.
type mxCache struct {
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	entries map[string]mxEntry
	mu      sync.Mutex
}

func newMXCache(ttl time.Duration) *mxCache {
	return &mxCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]mxEntry),
	}
}

func (c *mxCache) get(domain string) (mxEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[domain]
	if !ok {
		return mxEntry{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, domain)
		return mxEntry{}, false
	}
	return e, true
}

func (c *mxCache) set(domain string, result MXResult, err error) {
	if c.ttl <= 0 {
		return
	}
	if err != nil && !errors.Is(err, ErrDomainNotFound) && !errors.Is(err, ErrNoMX) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[domain] = mxEntry{expiresAt: c.now().Add(c.ttl), result: result, err: err}
}

// do returns the cached answer for domain or runs lookup once for all concurrent callers.
func (c *mxCache) do(ctx context.Context, domain string, lookup func(context.Context, string) (MXResult, error)) (MXResult, error) {
	if e, ok := c.get(domain); ok {
		return e.result, e.err
	}

	v, err, _ := c.group.Do(domain, func() (any, error) {
		res, err := lookup(ctx, domain)
		c.set(domain, res, err)
		return res, err
	})
	res, _ := v.(MXResult)
	return res, err
}

func (c *mxCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
