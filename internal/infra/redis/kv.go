package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// KV implements the store persistence port on top of Redis. Attempts and
// gate flags have no TTL: the result store is the local source of truth and
// only a full clear may drop it.
type KV struct {
	client *redis.Client
}

func NewKV(client *redis.Client) *KV {
	return &KV{client: client}
}

func (k *KV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := k.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	return k.client.Set(ctx, key, value, 0).Err()
}

func (k *KV) Remove(ctx context.Context, key string) error {
	return k.client.Del(ctx, key).Err()
}

func (k *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := k.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
