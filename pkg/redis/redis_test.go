package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("empty URL", func(t *testing.T) {
		t.Parallel()

		client, err := Open(ctx, "")
		require.ErrorIs(t, err, ErrEmptyConnectionURL)
		require.Nil(t, client)
	})

	testCases := []struct {
		name string
		url  string
	}{
		{name: "http scheme", url: "http://localhost:6379"},
		{name: "no scheme", url: "localhost:6379"},
		{name: "invalid port", url: "redis://localhost:notaport"},
		{name: "invalid database", url: "redis://localhost:6379/notanumber"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := Open(ctx, tc.url)
			require.ErrorIs(t, err, ErrFailedToParseURL)
			require.Nil(t, client)
		})
	}
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	t.Run("zero fields take defaults", func(t *testing.T) {
		t.Parallel()

		ro, err := clientOptions(Config{URL: "redis://localhost:6379/2"})
		require.NoError(t, err)
		require.Equal(t, 10, ro.PoolSize)
		require.Equal(t, 0, ro.MinIdleConns)
		require.Equal(t, 5*time.Second, ro.DialTimeout)
		require.Equal(t, 2, ro.DB)
	})

	t.Run("options override config", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.URL = "rediss://localhost:6380/0"
		WithPoolSize(25)(&cfg)
		WithRetry(7, 2*time.Second)(&cfg)

		ro, err := clientOptions(cfg)
		require.NoError(t, err)
		require.Equal(t, 25, ro.PoolSize)
		require.NotNil(t, ro.TLSConfig)
		require.Equal(t, 7, cfg.RetryAttempts)
		require.Equal(t, 2*time.Second, cfg.RetryInterval)
	})
}

func TestPing_NilClient(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Ping(context.Background(), nil), ErrPingFailed)
}

func TestWait(t *testing.T) {
	t.Parallel()

	t.Run("cancelled context returns immediately", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := wait(ctx, 10*time.Second)
		require.ErrorIs(t, err, context.Canceled)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("waits the full duration", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		require.NoError(t, wait(context.Background(), 50*time.Millisecond))
		require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})
}

func TestKeyspace(t *testing.T) {
	t.Parallel()

	ks := Keyspace("mailing")
	require.Equal(t, "mailing:ratelimit:user@example.com", ks.Sub("ratelimit").Key("user@example.com"))
	require.Equal(t, "a:b", Keyspace("").Key("a", "b"))
}
