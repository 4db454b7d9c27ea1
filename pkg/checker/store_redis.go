package checker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	mailredis "github.com/dmitrymomot/mailing/pkg/redis"
)

// RedisStore keeps each list in a hash under "<prefix>:<list>", so the lists
// are shared by every process using the same database. The hash value is the
// time the member was added.
type RedisStore struct {
	client redis.UniversalClient
	keys   mailredis.Keyspace
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store. An empty prefix means "mailing:checker".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mailing:checker"
	}
	return &RedisStore{client: client, keys: mailredis.Keyspace(prefix)}
}

func (s *RedisStore) Add(ctx context.Context, list List, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	key := s.keys.Key(string(list))
	now := time.Now().Unix()
	cmds := make([]*redis.BoolCmd, len(members))
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = p.HSetNX(ctx, key, m, now)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	added := 0
	for _, c := range cmds {
		if c.Val() {
			added++
		}
	}
	return added, nil
}

func (s *RedisStore) Remove(ctx context.Context, list List, member string) (bool, error) {
	n, err := s.client.HDel(ctx, s.keys.Key(string(list)), member).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Has(ctx context.Context, list List, member string) (bool, error) {
	return s.client.HExists(ctx, s.keys.Key(string(list)), member).Result()
}

func (s *RedisStore) Count(ctx context.Context, list List) (int, error) {
	n, err := s.client.HLen(ctx, s.keys.Key(string(list))).Result()
	return int(n), err
}
