package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(n int, window time.Duration) (*MemoryRateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryRateLimiter(Limits{MaxEmails: n, Window: window})
	l.now = clock.now
	return l, clock
}

func TestMemoryRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("allows up to the limit", func(t *testing.T) {
		t.Parallel()
		l, _ := newTestLimiter(3, time.Minute)

		for range 3 {
			ok, err := l.Allow(ctx, "user@example.com")
			require.NoError(t, err)
			assert.True(t, ok)
		}

		ok, err := l.Allow(ctx, "user@example.com")
		require.NoError(t, err)
		assert.False(t, ok)

		remaining, err := l.Remaining(ctx, "user@example.com")
		require.NoError(t, err)
		assert.Equal(t, 0, remaining)
	})

	t.Run("identifiers are independent", func(t *testing.T) {
		t.Parallel()
		l, _ := newTestLimiter(1, time.Minute)

		ok, err := l.Allow(ctx, "a@example.com")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "b@example.com")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("window slides", func(t *testing.T) {
		t.Parallel()
		l, clock := newTestLimiter(2, time.Minute)

		ok, _ := l.Allow(ctx, "id")
		assert.True(t, ok)
		clock.advance(30 * time.Second)
		ok, _ = l.Allow(ctx, "id")
		assert.True(t, ok)
		ok, _ = l.Allow(ctx, "id")
		assert.False(t, ok)

		d, found, err := l.ResetIn(ctx, "id")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 30*time.Second, d)

		// the first send expires exactly at the window edge
		clock.advance(30 * time.Second)
		remaining, err := l.Remaining(ctx, "id")
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)

		ok, _ = l.Allow(ctx, "id")
		assert.True(t, ok)
	})

	t.Run("empty identifier", func(t *testing.T) {
		t.Parallel()
		l, _ := newTestLimiter(1, time.Minute)

		ok, err := l.Allow(ctx, "")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrSecurity)
		assert.ErrorIs(t, err, ErrInvalidIdentifier)
	})
}

func TestMemoryRateLimiter_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLimiter(1, time.Hour)

	ok, _ := l.Allow(ctx, "id")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "id")
	require.False(t, ok)

	require.NoError(t, l.Reset(ctx, "id"))

	_, found, err := l.ResetIn(ctx, "id")
	require.NoError(t, err)
	assert.False(t, found)

	ok, _ = l.Allow(ctx, "id")
	assert.True(t, ok)
}

func TestLimits_Normalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultLimits(), Limits{}.normalize())
	assert.Equal(t, Limits{MaxEmails: 5, Window: time.Hour}, Limits{MaxEmails: 5}.normalize())
}
