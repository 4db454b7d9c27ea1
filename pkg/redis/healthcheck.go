package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Ping reports whether the client can reach the server.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return ErrPingFailed
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Join(ErrPingFailed, err)
	}
	return nil
}
