package secrets

import (
	"context"
	"errors"

	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

type redisStore struct {
	kv    redis.KV
	scope string
}

// NewRedis stores secrets under pos:secret:<scope>:<key>; scope is usually the machine id.
func NewRedis(kv redis.KV, scope string) Store {
	return &redisStore{kv: kv, scope: scope}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, s.kv.SecretKey(s.scope, key))
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, s.kv.SecretKey(s.scope, key), value, 0)
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.kv.Del(ctx, s.kv.SecretKey(s.scope, key))
}
