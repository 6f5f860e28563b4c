package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// HashGetter is satisfied by *redis.Client and *redis.ClusterClient.
type HashGetter interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type RedisOpts struct {
	Addr, Password, Namespace string
	DB                        int
	Timeout                   time.Duration
}

// RedisStore keeps one hash per metadata key under "<namespace>:<key>".
type RedisStore struct {
	rdb      HashGetter
	nsPrefix string
}

func NewRedisClient(o RedisOpts) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.Timeout,
		ReadTimeout:  o.Timeout,
		WriteTimeout: o.Timeout,
	})
}

func NewRedisStore(rdb HashGetter, namespace string) *RedisStore {
	return &RedisStore{rdb: rdb, nsPrefix: firstNonEmpty(namespace, "sensor-meta")}
}

func (s *RedisStore) key(k string) string {
	return s.nsPrefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	k := s.key(key)
	val, err := s.rdb.HGetAll(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis hgetall %s: %w", k, err)
	}
	if len(val) == 0 {
		return nil, false, nil
	}
	return Record(val), true, nil
}

func firstNonEmpty(s, def string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	return def
}
