// Package checker inspects recipient addresses before mail is sent.
//
// A Checker keeps three lists in a Store: blocked domains, blocked addresses
// and disposable (temporary) domains. MemoryStore is process-local;
// RedisStore shares the lists between processes:
//
//	client, err := redis.Open(ctx, os.Getenv("MAIL_REDIS_URL"))
//	c := checker.New(cfg, checker.WithStore(checker.NewRedisStore(client, "")))
//	if err := c.SeedTempDomains(ctx); err != nil { ... }
//
// CheckMX queries the domain's MX records directly over DNS. Definitive
// answers are cached for Config.MXTTL and concurrent lookups of one domain
// share a single query.
package checker
