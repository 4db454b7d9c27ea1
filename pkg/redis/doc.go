// Package redis opens go-redis clients for the Redis-backed stores of the
// mailing packages: the sliding-window rate limiter in pkg/security and the
// blocklist store in pkg/checker.
//
// Config carries env tags, so it can be parsed together with the mail settings:
//
//	cfg, err := env.ParseAs[redis.Config]()
//	client, err := redis.OpenConfig(ctx, cfg)
//
// Startup retries with a linear backoff until the first PING succeeds.
// Keyspace builds the colon-separated keys the stores use.
package redis
